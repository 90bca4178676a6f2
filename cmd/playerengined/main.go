// Command playerengined runs the playback engine core as a standalone
// daemon: it loads a YAML configuration, exposes health/readiness over
// HTTP, and optionally binds an MQTT control plane in front of a
// player.Core using a GStreamer-backed demuxer.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/orioncore/playerengine/internal/config"
	"github.com/orioncore/playerengine/internal/control"
	"github.com/orioncore/playerengine/internal/demux"
	"github.com/orioncore/playerengine/internal/health"
	"github.com/orioncore/playerengine/internal/player"
)

const defaultConfigPath = "config/playerengine.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting playerengine daemon", "config", *configPath, "debug", *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Pipeline.ThreadPoolSize > 0 {
		runtime.GOMAXPROCS(cfg.Pipeline.ThreadPoolSize)
	}

	core := player.New(player.Options{
		DemuxFactory:      func() demux.Demuxer { return demux.NewGstDemuxer() },
		MaxQueueBytes:     cfg.Pipeline.MaxQueueBytes,
		BackpressureSleep: time.Duration(cfg.Pipeline.BackpressureSleepMS) * time.Millisecond,
		Signals:           daemonSignals(),
	})

	// The daemon exposes no rendering sink of its own; drain both frame
	// channels so the video/audio workers never block on delivery. A real
	// deployment would replace this with its own sink goroutines.
	go func() {
		for range core.VideoFrames() {
		}
	}()
	go func() {
		for range core.AudioFrames() {
		}
	}()

	healthServer := health.NewServer(core)
	if err := healthServer.Start(cfg.HealthPort); err != nil {
		slog.Error("failed to start health server", "error", err)
		os.Exit(1)
	}

	var controlHandler *control.Handler
	var mqttClient mqtt.Client
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MQTT.Broker != "" {
		mqttClient, controlHandler, err = startControlPlane(ctx, cfg, core)
		if err != nil {
			slog.Error("failed to start control plane", "error", err)
			os.Exit(1)
		}
	}

	if cfg.Source.URL != "" {
		core.SetSource(cfg.Source.URL)
		if cfg.Source.Autoplay {
			core.Play()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	slog.Info("shutting down playerengine daemon")
	core.Close()
	if controlHandler != nil {
		if err := controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
	if err := healthServer.Stop(); err != nil {
		slog.Error("failed to stop health server", "error", err)
	}
	slog.Info("playerengine daemon stopped")
}

// startControlPlane connects to the configured MQTT broker and binds a
// control.Handler to core's operations.
func startControlPlane(ctx context.Context, cfg *config.Config, core *player.Core) (mqtt.Client, *control.Handler, error) {
	// A random suffix keeps the client ID unique across daemon restarts and
	// concurrent instances sharing one instance_id during a rolling deploy.
	clientID := "playerengine-" + cfg.InstanceID + "-" + uuid.NewString()[:8]
	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTT.Broker).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, token.Error()
	}

	handler := control.NewHandler(cfg, client, control.CommandCallbacks{
		OnGetStatus: func() map[string]interface{} {
			return map[string]interface{}{
				"instance_id":  cfg.InstanceID,
				"generation":   core.Generation(),
				"state":        core.State().String(),
				"media_status": core.MediaStatus().String(),
				"position_ms":  core.Position(),
				"speed":        core.Speed(),
			}
		},
		OnSetSource: func(url string) error { core.SetSource(url); return nil },
		OnPlay:      func() error { core.Play(); return nil },
		OnPause:     func() error { core.Pause(); return nil },
		OnStop:      func() error { core.Stop(); return nil },
		OnSeek:      func(posMs int64) error { core.Seek(posMs); return nil },
		OnSetSpeed:  func(speed float64) error { core.SetSpeed(speed); return nil },
	})

	if err := handler.Start(ctx); err != nil {
		client.Disconnect(250)
		return nil, nil, err
	}
	return client, handler, nil
}

// daemonSignals logs every player signal at info level, giving the daemon
// visibility into state transitions without a dedicated event bus.
func daemonSignals() player.Signals {
	return player.Signals{
		SourceChanged:         func(url string) { slog.Info("source changed", "url", url) },
		MediaStatusChanged:    func(s player.MediaStatus) { slog.Info("media status changed", "status", s.String()) },
		StateChanged:          func(s player.State) { slog.Info("state changed", "state", s.String()) },
		SeekableChanged:       func(v bool) { slog.Info("seekable changed", "seekable", v) },
		DurationChanged:       func(ms int64) { slog.Info("duration changed", "duration_ms", ms) },
		VideoFrameRateChanged: func(fps float64) { slog.Info("video frame rate changed", "fps", fps) },
		ErrorOccurred:         func(kind player.ErrorKind, msg string) { slog.Error("player error", "kind", kind.String(), "message", msg) },
		Played:                func(ms int64) { slog.Info("played", "position_ms", ms) },
		Paused:                func(ms int64) { slog.Info("paused", "position_ms", ms) },
		Stopped:               func(ms int64) { slog.Info("stopped", "position_ms", ms) },
		Seeked:                func(ms int64) { slog.Info("seeked", "position_ms", ms) },
		SpeedChanged:          func(speed float64) { slog.Info("speed changed", "speed", speed) },
	}
}
