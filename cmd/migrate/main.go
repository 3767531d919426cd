package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"ptscore/adapters/sqlstore"
	"ptscore/internal"
	"ptscore/internal/config"
	"ptscore/internal/errors"
	"ptscore/internal/migration"

	"github.com/joho/godotenv"
)

func main() {
	cfgFile := flag.String("config", "", "Optional YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(errors.ExitCode(err))
	}
	if cfg.Database.URL == "" {
		log.Println("DATABASE_URL is required")
		os.Exit(3)
	}

	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Printf("Failed to open database: %v", err)
		os.Exit(errors.ExitCode(err))
	}
	defer db.Close()

	runner := migration.NewRunner(cfg.Database.Driver, logger)
	log.Printf("Applying schema version %s (%s)", runner.Version(), cfg.Database.Driver)
	if err := runner.Run(ctx, db); err != nil {
		log.Printf("Migration failed: %v", err)
		db.Close()
		os.Exit(errors.ExitCode(err))
	}
	log.Println("Migration complete")
}
