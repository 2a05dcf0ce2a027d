package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/database"
	"github.com/stemsi/ieltsmock-backend/internal/docstore"
	"github.com/stemsi/ieltsmock-backend/internal/logger"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

func main() {
	var path string
	flag.StringVar(&path, "file", "data/database.json", "Path to the legacy JSON database")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	doc, err := docstore.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load legacy document")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate schema")
		}
	}

	stats, err := docstore.NewImporter(repository.NewPostgresStore(pool), log).Import(ctx, doc)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d admins, %d students, %d variants, %d tests, %d keys, %d attempts, %d queue entries (%d skipped)\n",
		stats.Admins, stats.Students, stats.MocTests, stats.Tests, stats.Keys, stats.Attempts, stats.Queue, stats.Skipped)
}
