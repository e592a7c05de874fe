package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/frontiertower/guest-portal/internal/config"
	"github.com/frontiertower/guest-portal/internal/db"
	"github.com/frontiertower/guest-portal/internal/settings"
)

// stores bundles the persistence the portal runs on.
type stores struct {
	db       *db.DB
	settings settings.Store
	closers  []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s := &stores{db: database, closers: []func() error{database.Close}}

	switch cfg.Settings.Backend {
	case "redis":
		rs, err := settings.NewRedisStore(ctx, cfg.Settings.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.settings = rs
		s.closers = append(s.closers, rs.Close)
	case "memory":
		s.settings = settings.NewMemoryStore(nil)
	default:
		s.settings = database.Settings()
	}

	logger.Info("stores opened",
		zap.String("database", cfg.Database.Path),
		zap.String("settings_backend", cfg.Settings.Backend),
	)
	return s, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "production" {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = level

	return zcfg.Build()
}
