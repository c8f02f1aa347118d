package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/divvy/internal/auth"
	"github.com/mmynk/divvy/internal/cache"
	"github.com/mmynk/divvy/internal/calculator"
	"github.com/mmynk/divvy/internal/config"
	"github.com/mmynk/divvy/internal/httpapi"
	"github.com/mmynk/divvy/internal/ocr"
	"github.com/mmynk/divvy/internal/rpc"
	"github.com/mmynk/divvy/internal/service"
	"github.com/mmynk/divvy/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the HTTP and Connect server",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	secret := cfg.JWTSecret
	if secret == "" {
		if secret, err = auth.RandomSecret(); err != nil {
			return err
		}
		slog.Warn("JWT_SECRET not set, owner tokens will not survive a restart")
	}
	gate, err := auth.NewPasswordGate(cfg.AppPassword)
	if err != nil {
		return err
	}
	jwtManager := auth.NewJWTManager(secret, cfg.TokenTTL)

	extractor, err := ocr.New(cfg.OCR())
	if err != nil {
		return err
	}
	slog.Info("OCR engine selected", "engine", extractor.Name())

	svc := service.NewBillService(store, cache.New(),
		service.WithCachePolicy(cache.Policy{AlwaysFresh: cfg.CacheAlwaysFresh}),
		service.WithPaymentLinks(calculator.PaymentLinks{
			BaseURL:       cfg.PaymentLinkBase,
			DefaultHandle: cfg.FintocUsername,
		}),
		service.WithExtractor(extractor),
	)
	if n, err := svc.RefreshAll(ctx); err != nil {
		slog.Warn("Failed to warm bill cache", "error", err)
	} else {
		slog.Info("Bill cache warmed", "bills", n)
	}

	api := httpapi.New(svc, gate, jwtManager, httpapi.Options{
		StaticDir:      cfg.StaticPath,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	router := api.Router()
	rpcPath, rpcHandler := rpc.NewHandler(svc, api.Guard())
	router.Handle(rpcPath+"*", rpcHandler)

	// h2c serves HTTP/2 without TLS for Connect clients.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.CacheResyncSchedule != "" {
		resync, err := startResync(ctx, svc, cfg.CacheResyncSchedule)
		if err != nil {
			return err
		}
		defer func() { <-resync.Stop().Done() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting",
			"address", srv.Addr,
			"password_required", cfg.PasswordRequired(),
			"storage", store.Mode(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// startResync reloads every bill into the cache on the given cron schedule,
// picking up edits made by other instances sharing the database.
func startResync(ctx context.Context, svc *service.BillService, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := svc.RefreshAll(ctx)
		if err != nil {
			slog.Warn("Cache resync failed", "error", err)
			return
		}
		slog.Debug("Cache resynced", "bills", n)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_RESYNC_SCHEDULE %q: %w", schedule, err)
	}
	c.Start()
	slog.Info("Cache resync scheduled", "schedule", schedule)
	return c, nil
}
