package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"librarycatalog/internal/config"
	"librarycatalog/internal/database"
	"librarycatalog/internal/importer"
	"librarycatalog/internal/logging"
)

func main() {
	csvPath := flag.String("csv", filepath.Join("data", "Books.csv"), "path to Books.csv")
	limit := flag.Int("limit", importer.DefaultBookLimit, "maximum number of books to import")
	users := flag.Int("users", 100, "number of sample users to create")
	checkouts := flag.Int("checkouts", 500, "number of sample checkouts to create")
	booksOnly := flag.Bool("books-only", false, "only import books, skip users and checkouts")
	reset := flag.Bool("reset", false, "delete existing checkouts, books and users first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	db, err := database.Open(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := database.Migrate(db); err != nil {
		logging.Fatal().Err(err).Msg("failed to migrate schema")
	}

	ctx := context.Background()
	im := importer.New(db)

	if *reset {
		if err := im.Reset(ctx); err != nil {
			logging.Fatal().Err(err).Msg("reset failed")
		}
		logging.Info().Msg("cleared existing data")
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", *csvPath).
			Msg("CSV not found; download Books.csv from the book-recommendation dataset on Kaggle")
	}
	stats, err := im.ImportBooks(ctx, f, *limit)
	f.Close()
	if err != nil {
		logging.Fatal().Err(err).Msg("book import failed")
	}
	logging.Info().
		Int("read", stats.Read).
		Int("skipped", stats.Skipped).
		Int64("inserted", stats.Inserted).
		Msg("books imported")

	if *booksOnly {
		return
	}

	created, err := im.CreateSampleUsers(ctx, *users)
	if err != nil {
		logging.Fatal().Err(err).Msg("creating sample users failed")
	}
	logging.Info().Int64("created", created).Int("requested", *users).Msg("sample users ready (userN/passN)")

	n, err := im.CreateSampleCheckouts(ctx, *checkouts)
	if err != nil {
		logging.Fatal().Err(err).Msg("creating sample checkouts failed")
	}
	logging.Info().Int("created", n).Msg("sample checkouts created")
}
