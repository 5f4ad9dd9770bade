package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/domain/models"
	"github.com/mamadbah2/recordshop/internal/repository/mongodb"
	"github.com/mamadbah2/recordshop/pkg/logger"
)

func main() {
	file := flag.String("file", "data.json", "JSON array of records to insert")
	clean := flag.Bool("clean", false, "delete existing records before inserting")
	envFile := flag.String("env", "", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	log := logger.Must(logger.New("recordshop-seed"))
	defer func() { _ = log.Sync() }()

	records, err := loadRecords(*file)
	if err != nil {
		log.Fatal("failed to load seed data", zap.String("file", *file), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		log.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() { _ = repo.Close(context.Background()) }()

	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to ensure mongodb indexes", zap.Error(err))
	}

	if *clean {
		deleted, err := repo.DeleteAllRecords(ctx)
		if err != nil {
			log.Fatal("failed to clean records", zap.Error(err))
		}
		log.Info("existing records deleted", zap.Int64("count", deleted))
	}

	inserted, err := repo.InsertRecords(ctx, records)
	if err != nil {
		log.Error("some records were not inserted", zap.Int("inserted", inserted), zap.Int("total", len(records)), zap.Error(err))
		os.Exit(1)
	}
	log.Info("records inserted", zap.Int("count", inserted))
}

func loadRecords(path string) ([]models.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []models.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for i, r := range records {
		switch {
		case r.Artist == "" || r.Album == "":
			return nil, fmt.Errorf("record %d: artist and album are required", i)
		case !r.Format.Valid():
			return nil, fmt.Errorf("record %d: invalid format %q", i, r.Format)
		case !r.Category.Valid():
			return nil, fmt.Errorf("record %d: invalid category %q", i, r.Category)
		case r.Price < 0 || r.Qty < 0:
			return nil, fmt.Errorf("record %d: price and qty must not be negative", i)
		}
	}
	return records, nil
}
