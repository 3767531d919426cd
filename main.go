package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ptscore/internal"
	"ptscore/internal/api"
	"ptscore/internal/config"
	"ptscore/internal/container"
	apperrors "ptscore/internal/errors"
	"ptscore/internal/metrics"

	"github.com/joho/godotenv"
)

func main() {
	cfgFile := flag.String("config", "", "Optional YAML configuration file")
	flag.Parse()

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load(*cfgFile)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(apperrors.ExitCode(err))
	}
	if appConfig.Database.URL == "" {
		log.Println("DATABASE_URL is required to serve reports")
		os.Exit(3)
	}

	logger := internal.NewLogger(internal.ParseLogLevel(appConfig.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	if err := appContainer.InitWithDatabase(ctx); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// The server only reads stored reports; evaluation counters stay at zero here.
	metrics.RegisterRuntimeCollectors(appContainer.Registry)

	server := api.NewServer(api.Config{
		Reports: appContainer.Reports,
		Metrics: metrics.Handler(appContainer.Registry),
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown: %v", err)
		}
	}()

	logger.Info("serving reports on port %s", appConfig.Server.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}
