// Package main - Entry point for the estimator API server
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"car-edition/internal/app"
	"car-edition/internal/config"
	"car-edition/internal/logging"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	addr := flag.String("addr", "", "Server address (overrides config)")
	uiPath := flag.String("ui", "", "Path to UI files to serve under /")
	flag.Parse()

	if err := run(*configPath, *addr, *uiPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr, uiPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	go a.RunJanitor(ctx)

	apiServer := a.Server(version)

	var handler http.Handler = apiServer
	if uiPath != "" {
		mux := http.NewServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiServer))
		mux.Handle("/", http.FileServer(http.Dir(uiPath)))
		handler = mux
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("car-edition server starting",
			zap.String("version", version),
			zap.String("addr", cfg.Server.Addr),
			zap.String("environment", cfg.Environment),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
