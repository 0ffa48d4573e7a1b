package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mrsingh-rishi/meeting-transcriber/capture"
	"github.com/mrsingh-rishi/meeting-transcriber/config"
	"github.com/mrsingh-rishi/meeting-transcriber/logging"
	"github.com/mrsingh-rishi/meeting-transcriber/metrics"
	"github.com/mrsingh-rishi/meeting-transcriber/output"
	"github.com/mrsingh-rishi/meeting-transcriber/power"
	"github.com/mrsingh-rishi/meeting-transcriber/server"
	"github.com/mrsingh-rishi/meeting-transcriber/session"
	"github.com/mrsingh-rishi/meeting-transcriber/stt"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("TRANSCRIBER_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	logger.Info("starting meeting transcriber",
		"address", cfg.HTTP.Address,
		"language", cfg.Speech.Language,
		"capture_backend", cfg.Capture.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := output.NewHub(output.DefaultClientBuffer, logging.Component(logger, "events"))
	notifier := output.NewNotifier(cfg.Notifications.Enabled, logging.Component(logger, "notify"))

	source, err := capture.New(cfg.Capture.Backend, cfg.Capture.FramesPerBuffer)
	if err != nil {
		logger.Error("failed to set up screen capture", "error", err)
		os.Exit(1)
	}

	sttLogger := logging.Component(logger, "stt")
	manager := session.NewManager(session.ManagerOptions{
		Speech:     cfg.Speech,
		Audio:      cfg.Audio,
		Tokens:     stt.NewTokenClient(cfg.Speech.TokenURL, cfg.Speech.APIKey, cfg.Speech.TokenTTL, sttLogger),
		Dial:       session.DialSTT(sttLogger),
		WakeLocker: power.Nop{},
		Capture:    source,
		Sink:       output.Multi(hub, notifier),
		Metrics:    m,
		Logger:     logging.Component(logger, "session"),
	})

	srv := server.New(server.Options{
		Recorder: manager,
		Hub:      hub,
		Gatherer: reg,
		Metrics:  m,
		Logger:   logging.Component(logger, "http"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Listen(cfg.HTTP.Address)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warn("failed to stop recording cleanly", "error", err)
	}
	if err := srv.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("failed to shut down http server", "error", err)
	}
	logger.Info("meeting transcriber stopped")
}
