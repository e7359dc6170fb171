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

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gopkg.in/gomail.v2"

	"scriptrelay/auth"
	"scriptrelay/availability"
	"scriptrelay/config"
	"scriptrelay/db"
	"scriptrelay/directory"
	"scriptrelay/dispute"
	"scriptrelay/negotiation"
	"scriptrelay/notify"
	"scriptrelay/payment"
	"scriptrelay/presence"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	tracker := presence.NewRedisTracker(rdb)

	hub := notify.NewHub(tracker, logger)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	dirRepo := directory.NewRepository(pool)
	dirSvc := directory.NewService(dirRepo, tracker)

	coordinator := availability.NewCoordinator()
	outbox := notify.NewOutboxRepository(pool)

	negRepo := negotiation.NewRepository(pool)
	payRepo := payment.NewRepository(pool)

	negSvc := negotiation.NewService(pool, negRepo, dirSvc, outbox, coordinator, payRepo, dirRepo, cfg.CanonicalCurrency, logger)

	paystack := payment.NewPaystack(&http.Client{Timeout: cfg.ProviderTimeout}, cfg.PaystackSecretKey, cfg.PaymentCallback)
	providers := payment.NewRegistry(paystack)

	rates := payment.NewRates(cfg.CanonicalCurrency, cfg.FXRates)
	split, err := payment.NewSplit(cfg.PayoutSplit)
	if err != nil {
		return err
	}
	paySvc := payment.NewService(pool, payRepo, negRepo, coordinator, outbox, providers, rates, split, logger)

	dispSvc := dispute.NewService(dispute.NewRepository(pool))

	sinks := []notify.Sink{hub}
	if cfg.SMTPHost != "" {
		dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
		sinks = append(sinks, notify.NewEmailSink(dialer, dirRepo, cfg.SMTPUser))
	}
	dispatcher := notify.NewDispatcher(pool, outbox, logger, sinks...)

	server := NewServer(logger, authSvc, dirSvc, negSvc, paySvc, dispSvc, hub, paystack)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
