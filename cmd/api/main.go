package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"subforge-go/internal/app"
	"subforge-go/internal/config"
	"subforge-go/internal/logger"
)

func main() {
	_ = godotenv.Load() // loads .env

	configPath := flag.String("config", os.Getenv("SUBFORGE_CONFIG"), "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{Environment: cfg.Environment, Level: cfg.Log.Level, File: cfg.Log.File})
	log.WithField("service", "subforge-api").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, log.Entry, reg, app.Options{Speech: true})
	if err != nil {
		log.WithError(err).Fatal("failed to build processor")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      newServer(a.Processor, a.Decode, cfg.Server.MediaRoot, reg, log).routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute, // a full generation run answers in one response
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if cfg.Server.MediaRoot == "" {
		log.Warn("server.media_root is not set; any media_path readable by this process is accepted, bind to a trusted interface only")
	}
	log.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("server stopped")
}
