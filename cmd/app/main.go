package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/inkcost/internal/analyzer"
	cfgpkg "github.com/local/inkcost/internal/config"
	"github.com/local/inkcost/internal/filetype"
	"github.com/local/inkcost/internal/ink"
	"github.com/local/inkcost/internal/limiter"
	logpkg "github.com/local/inkcost/internal/logger"
	"github.com/local/inkcost/internal/metrics"
	"github.com/local/inkcost/internal/mupdf"
	"github.com/local/inkcost/internal/progress"
	"github.com/local/inkcost/internal/statuscheck"
	"github.com/local/inkcost/internal/storage"
	web "github.com/local/inkcost/internal/web"
)

func main() {
	cfg := cfgpkg.Load()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		FileLevel:    cfg.Logging.FileLevel,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
		AxiomLevel:   cfg.Axiom.Level,
	})
	defer logpkg.Close()

	metrics.Init()

	tiers, err := ink.TiersByName(cfg.Render.Pricing)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PRICING_TABLE")
	}

	uploads, err := storage.NewUploads(cfg.Server.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init upload dir")
	}
	uploads.CleanupStale(cfg.Server.StaleUploadAge)

	// Progress broker: Redis when configured so any instance can serve the
	// websocket, otherwise in process.
	var (
		broker progress.Broker
		pinger statuscheck.RedisPinger
	)
	if cfg.Progress.RedisURL != "" {
		rb, err := progress.NewRedisBroker(cfg.Progress.RedisURL, cfg.Progress.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rb.Close()
		broker, pinger = rb, rb
	} else {
		broker = progress.NewHub(cfg.Progress.TTL)
	}

	s3opts := storage.S3Options{
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Endpoint:        cfg.S3.Endpoint,
	}
	checker := statuscheck.New(statuscheck.Options{
		Redis:    pinger,
		S3Bucket: cfg.S3.Bucket,
		S3Config: statuscheck.S3Options(s3opts),
		Renderer: mupdf.Probe,
	})

	opener := mupdf.NewOpener(cfg.Render.DPI)
	mux := http.NewServeMux()
	web.New(web.Dependencies{
		Analyzer:       analyzer.New(analyzer.Options{Opener: opener, Tiers: tiers}),
		Inspector:      filetype.New(),
		Uploads:        uploads,
		Fetcher:        storage.NewFetcher(uploads, storage.FetcherOptions{S3: s3opts, MaxBytes: cfg.Server.MaxUploadBytes()}),
		Broker:         broker,
		Gate:           limiter.New(cfg.Server.MaxConcurrent),
		Status:         checker,
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
	}).RegisterRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweepUploads(ctx, uploads, cfg.Server.StaleUploadAge)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Float64("dpi", opener.DPI()).
			Str("pricing", tiers.Name).
			Int("max_concurrent", cfg.Server.MaxConcurrent).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown did not complete cleanly")
	}
	log.Info().Msg("shutdown complete")
}

// sweepUploads removes staged files abandoned by crashed requests.
func sweepUploads(ctx context.Context, uploads *storage.Uploads, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uploads.CleanupStale(maxAge)
		}
	}
}
