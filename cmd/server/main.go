package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"nms-backend/internal/api"
	"nms-backend/internal/app"
	"nms-backend/internal/auth"
	"nms-backend/internal/config"
	"nms-backend/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to app.yaml (default: search . and ../..)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. Logger
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	// 3. Database, schema, engine
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// 4. HTTP
	server := api.NewApp(log)
	api.RegisterRoutes(server,
		api.NewHandler(a.Engine, a.Migrations, log),
		auth.AuthMiddleware(cfg.JWTSecret, a.Engine),
		auth.RequireAdmin(),
	)

	go func() {
		<-ctx.Done()
		log.Infow("shutting down")
		if err := server.Shutdown(); err != nil {
			log.Errorw("shutdown failed", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infow("starting server", "addr", addr)
	return server.Listen(addr)
}
