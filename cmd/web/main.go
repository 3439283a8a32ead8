package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"audiolyrics/internal/config"
	"audiolyrics/internal/extractor"
	"audiolyrics/internal/handlers"
	"audiolyrics/internal/lyrics"
	"audiolyrics/internal/store"
)

func main() {
	cfg, dotenv := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	if dotenv {
		logger.Info("loaded environment from .env")
	}

	audio := store.New(logger, cfg.AudioDir, cfg.AudioExt)
	if err := audio.EnsureDir(); err != nil {
		logger.Error("failed to prepare audio dir", "error", err)
		os.Exit(1)
	}

	ex := extractor.NewService(logger, extractor.ExecRunner{}, audio, extractor.Options{
		Binary:         cfg.YtDlpPath,
		Format:         cfg.AudioFormat,
		Quality:        cfg.AudioQuality,
		ProbeTimeout:   cfg.ProbeTimeout,
		ExtractTimeout: cfg.ExtractTimeout,
	})

	var cache lyrics.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis not available, lyrics cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			cache = lyrics.NewRedisCache(rdb, cfg.LyricsCacheTTL)
			logger.Info("lyrics cache enabled", "addr", cfg.RedisAddr)
		}
		pingCancel()
	}
	resolver := lyrics.NewResolver(logger, lyrics.NewLRCLibClient(cfg.LyricsBaseURL, cfg.LyricsTimeout), cache)

	requestTimeout := cfg.ProbeTimeout + cfg.ExtractTimeout + time.Minute
	app := handlers.NewApp(logger, ex, resolver, handlers.Options{
		AudioDir:       cfg.AudioDir,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RequestTimeout: requestTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audio.Sweep(store.Retention)
	sweeper := audio.StartSweeper(ctx, store.SweepInterval, store.Retention)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      requestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.Addr, "audio_dir", cfg.AudioDir, "ytdlp", cfg.YtDlpPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	sweeper.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	logger.Info("server stopped")
}
