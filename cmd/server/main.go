package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"ytdl-relay/internal/api"
	"ytdl-relay/internal/config"
	"ytdl-relay/internal/downloader"
	"ytdl-relay/internal/jobs"
	"ytdl-relay/internal/ratelimit"
	"ytdl-relay/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, notices, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	for _, n := range notices {
		logger.Warn("Config adjusted", zap.String("notice", n))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Filesystem
	if err := storage.PrepareFilesystem(cfg); err != nil {
		return err
	}
	files := storage.NewArtifacts(cfg.DownloadDir, cfg.TempDir)

	// 2. Resolver with optional cookies
	jar, n, err := downloader.LoadCookies(cfg.CookiesFile)
	if err != nil {
		logger.Warn("Ignoring cookie file", zap.String("path", cfg.CookiesFile), zap.Error(err))
	}
	if n > 0 {
		logger.Info("Cookies loaded", zap.String("path", cfg.CookiesFile), zap.Int("count", n))
	}
	resolver := downloader.NewYouTube(&http.Client{Jar: jar})
	engine := downloader.NewEngine(resolver, downloader.NewFFmpeg(cfg.FFmpegPath), cfg.TempDir, logger)

	// 3. Jobs
	store := jobs.NewStore()
	manager := jobs.NewManager(ctx, store, engine, files, cfg, logger)
	janitor := jobs.NewJanitor(store, files, cfg, logger)

	// 4. HTTP
	limiter := newLimiter(ctx, cfg, logger)
	handler := api.NewHandler(manager, engine, limiter, files, cfg, logger)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(handler, cfg.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("YTDL relay started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()
	manager.Wait()
	return err
}

// newLimiter uses Redis when configured and reachable, the in-process
// window otherwise.
func newLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) ratelimit.Limiter {
	if cfg.RedisAddr != "" {
		client, err := ratelimit.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			logger.Info("Rate limiter backed by redis", zap.String("addr", cfg.RedisAddr))
			return ratelimit.NewRedis(client, cfg.RateLimit, cfg.RateWindow, "")
		}
		logger.Warn("Redis unavailable, using in-memory rate limiter", zap.Error(err))
	}
	return ratelimit.NewWindow(cfg.RateLimit, cfg.RateWindow)
}
