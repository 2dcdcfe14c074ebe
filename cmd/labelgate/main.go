package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelgate/internal/api"
	"github.com/orrn/labelgate/internal/api/handlers"
	"github.com/orrn/labelgate/internal/api/middleware"
	"github.com/orrn/labelgate/internal/config"
	"github.com/orrn/labelgate/internal/core"
	"github.com/orrn/labelgate/internal/db"
	"github.com/orrn/labelgate/internal/logging"
	"github.com/orrn/labelgate/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "labelgate: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		return err
	}
	log := logging.WithComponent("main")

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pool := core.NewBackgroundPool(core.PoolConfig{
		WorkerCount: cfg.Dispatch.WorkerCount,
		QueueSize:   cfg.Dispatch.QueueSize,
	})
	pool.Start()

	notifier := webhook.NewWebhookSender(webhookEndpoints(cfg.Webhooks), webhook.WebhookConfig{})
	notifier.Start()

	serialCap := core.NewSystemSerial()
	spoolerCap := core.NewSystemSpooler()
	proxy := core.NewProxyTransport(cfg.Proxy.URL, cfg.Proxy.Timeout)

	router := core.NewRouter(pool,
		core.WithRecorder(db.Dispatches),
		core.WithNotifier(notifier),
		core.WithMinTimeout(cfg.Dispatch.MinTimeout),
	)
	router.Register(core.NewNetworkTransport())
	router.Register(proxy)
	if cfg.Serial.Enabled {
		router.Register(core.NewSerialTransport(serialCap, cfg.Serial.PortPrefixes))
	}
	if cfg.Spooler.Enabled {
		router.Register(core.NewSpoolerTransport(spoolerCap, core.WithDocumentName(cfg.Spooler.DocumentName)))
	}

	auth, err := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Enabled:       cfg.Auth.Enabled,
		PasswordHash:  cfg.Auth.PasswordHash,
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenDuration: cfg.Auth.TokenDuration,
	}, db.Audit)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := api.New(api.Deps{
		Auth: auth,
		Print: handlers.NewPrintHandler(router,
			core.NewEnumerator(serialCap, spoolerCap, core.NewSystemUSB()),
			proxy,
			handlers.Defaults{Port: cfg.Dispatch.DefaultPort, Timeout: cfg.Dispatch.DefaultTimeout}),
		Dispatches: handlers.NewDispatchHandler(db.Dispatches),
		Audit:      handlers.NewAuditHandler(db.Audit),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("serial", cfg.Serial.Enabled).Bool("spooler", cfg.Spooler.Enabled).
			Str("proxy", proxy.URL()).Msg("labelgate listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		pool.Stop()
		notifier.Stop()
		return fmt.Errorf("server error: %w", err)
	case s := <-sig:
		log.Warn().Str("signal", s.String()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// In-flight spooler jobs finish before their webhooks stop.
	pool.Stop()
	notifier.Stop()
	log.Info().Msg("labelgate stopped")
	return nil
}

func webhookEndpoints(cfgs []config.WebhookConfig) []webhook.Endpoint {
	out := make([]webhook.Endpoint, 0, len(cfgs))
	for _, w := range cfgs {
		out = append(out, webhook.Endpoint{Name: w.Name, URL: w.URL, Secret: w.Secret, Events: w.Events})
	}
	return out
}
