package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/fishlens/fishlens/pkg/audit"
	cachepkg "github.com/fishlens/fishlens/pkg/cache/sqlite"
	"github.com/fishlens/fishlens/pkg/config"
	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
	"github.com/fishlens/fishlens/pkg/normalize"
)

// app wires the engine to its snapshot store and audit log for one
// command invocation.
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	store   *cachepkg.Store
	auditor *audit.Logger
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func loadNormalizer(cfg *config.Config) (*normalize.Normalizer, error) {
	if cfg.VocabularyPath == "" {
		return normalize.Default(), nil
	}
	vocab, err := normalize.LoadVocabulary(cfg.VocabularyPath)
	if err != nil {
		return nil, err
	}
	return normalize.New(vocab)
}

// openApp builds the engine and restores the persisted cache snapshot. New
// results are written through to the store as they are cached.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	norm, err := loadNormalizer(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	opts := []engine.Option{engine.WithNormalizer(norm)}
	if verbose {
		opts = append(opts, engine.WithLogger(log.New(os.Stderr, "", log.LstdFlags)))
	}
	if cfg.Persist {
		a.store, err = cachepkg.New(cfg.DBPath, cfg.Engine.TTL())
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		opts = append(opts, engine.WithWriteThrough(a.store.Put))
	}
	a.engine = engine.New(cfg.EngineConfig(), opts...)

	if a.store != nil {
		entries, err := a.store.LoadAll()
		if err != nil {
			_ = a.store.Close()
			return nil, err
		}
		a.engine.Restore(entries)
	}

	if cfg.Audit.Enabled {
		a.auditor, err = audit.New(cfg.Audit)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("init audit: %w", err)
		}
	}
	return a, nil
}

// record writes an audit entry when auditing is enabled. Audit failures are
// logged and never fail the command.
func (a *app) record(ctx context.Context, entry models.AuditEntry) {
	if a.auditor == nil {
		return
	}
	if err := a.auditor.Log(ctx, entry); err != nil {
		log.Printf("audit: %v", err)
	}
}

// Close saves the cache snapshot and releases both databases.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.SaveAll(a.engine.Snapshot()); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.auditor.Close())
	return errors.Join(errs...)
}
