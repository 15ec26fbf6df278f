package main

import (
	"fmt"
	"log/slog"

	"questgraph/pkg/asset"
	"questgraph/pkg/config"
	"questgraph/pkg/db"
	"questgraph/pkg/quest"
	"questgraph/pkg/store"
)

func writeDefaultConfig(path string) error {
	return config.GenerateDefault(path)
}

// loadConfig reads the config and applies command-line overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.asset != "" {
		cfg.Story.Asset = opts.asset
	}
	if opts.seed != 0 {
		cfg.Story.Seed = opts.seed
	}
	return cfg, nil
}

// assetOptions turns the story settings into loader options. A zero seed
// picks events at random.
func assetOptions(cfg *config.Config) asset.Options {
	o := asset.Options{DefaultWait: cfg.Story.DefaultWait.Std()}
	if cfg.Story.Seed != 0 {
		o.Selector = quest.NewSeededSelector(cfg.Story.Seed)
	}
	return o
}

func loadQuest(cfg *config.Config) (*quest.Quest, error) {
	q, err := asset.Load(cfg.Story.Asset, assetOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to load quest: %w", err)
	}
	slog.Info("Quest loaded", "quest", q.Name, "asset", cfg.Story.Asset, "pools", len(q.Pools()))
	return q, nil
}

// initDB opens the journal. It returns nil, nil when the journal is disabled.
func initDB(cfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	if !cfg.DB.Enabled {
		return nil, nil, nil
	}
	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}
