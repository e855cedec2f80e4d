package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgallion1/imgnamer/internal/api"
	"github.com/dgallion1/imgnamer/internal/config"
	"github.com/dgallion1/imgnamer/internal/llm"
	"github.com/dgallion1/imgnamer/internal/pipeline"
	"github.com/dgallion1/imgnamer/internal/presets"
)

func main() {
	cfg := config.Load()

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		defer rotator.Close()
		out = io.MultiWriter(os.Stdout, rotator)
	}
	log := slog.New(slog.NewJSONHandler(out, nil))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Preset store: remote KV when configured, else the YAML file.
	var store presets.Store
	if cfg.PresetsURL != "" {
		hs := presets.NewHTTPStore(cfg.PresetsURL, cfg.PresetsAPIKey, "")
		defer hs.Close()
		store = hs
	} else {
		store = presets.NewFileStore(cfg.PresetsFile)
	}

	engine := pipeline.NewEngine(
		pipeline.WithAIDefaults(cfg.AI),
		pipeline.WithWindows(cfg.Windows),
		pipeline.WithMaxPromptChars(cfg.MaxPromptChars),
		pipeline.WithPresets(store),
		pipeline.WithStats(llm.NewStats(time.Hour)),
		pipeline.WithLogger(log),
	)

	orch := pipeline.NewOrchestrator(engine, cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// Synchronous previews wait on every model call.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		// Stop accepting requests before closing the job queue.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	log.Info("starting imgnamer", "port", cfg.Port, "model", cfg.AI.Model, "workers", cfg.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
	log.Info("stopped")
}
