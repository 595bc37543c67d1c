package main

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/eventgate/pkg/cli"
	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/security/sealbox"
	"mercator-hq/eventgate/pkg/security/secrets"
	"mercator-hq/eventgate/pkg/store"
	"mercator-hq/eventgate/pkg/store/memory"
	"mercator-hq/eventgate/pkg/store/sqlite"
	"mercator-hq/eventgate/pkg/usage/storage"
)

// loadConfig initializes the configuration singleton from --config.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%s: %w", cfgFile, err)
		}
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load %s: %v", cfgFile, err))
	}
	return config.GetConfig(), nil
}

// openSealBox fetches the catalog sealing key through the secret providers.
func openSealBox(ctx context.Context, cfg *config.Config, mgr *secrets.Manager) (*sealbox.Box, error) {
	key, err := mgr.GetSecret(ctx, cfg.Store.SealingKeySecret)
	if err != nil {
		return nil, cli.NewConfigError("store.sealing_key_secret",
			fmt.Sprintf("sealing key %q unavailable (create one with 'eventgate keys generate'): %v", cfg.Store.SealingKeySecret, err))
	}
	box, err := sealbox.New(key)
	if err != nil {
		return nil, cli.NewConfigError("store.sealing_key_secret", err.Error())
	}
	return box, nil
}

// openLedger opens the SQLite usage ledger described by the usage section.
func openLedger(cfg *config.Config) (*storage.Ledger, error) {
	ledger, err := storage.NewLedger(&storage.Config{
		Path:          cfg.Usage.Path,
		MaxOpenConns:  cfg.Usage.MaxOpenConns,
		MaxIdleConns:  cfg.Usage.MaxIdleConns,
		WALMode:       cfg.Usage.WALMode,
		BusyTimeout:   cfg.Usage.BusyTimeout,
		RetryAttempts: cfg.Usage.RetryAttempts,
		RetryBackoff:  cfg.Usage.RetryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open usage ledger: %w", err)
	}
	return ledger, nil
}

// backend is an opened catalog store with the usage recorder it meters to.
type backend struct {
	store    store.Store
	recorder store.UsageRecorder
	ledger   *storage.Ledger
}

func (b *backend) Close() error {
	var errs []error
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	if b.ledger != nil {
		errs = append(errs, b.ledger.Close())
	}
	return errors.Join(errs...)
}

// openBackend opens the configured catalog store. The memory backend meters
// into itself; the sqlite backend meters into the usage ledger, which also
// answers the daily request counts.
func openBackend(ctx context.Context, cfg *config.Config, mgr *secrets.Manager) (*backend, error) {
	switch cfg.Store.Backend {
	case "memory":
		st := memory.New()
		return &backend{store: st, recorder: st}, nil

	case "sqlite", "":
		box, err := openSealBox(ctx, cfg, mgr)
		if err != nil {
			return nil, err
		}
		ledger, err := openLedger(cfg)
		if err != nil {
			return nil, err
		}
		st, err := sqlite.Open(sqlite.Config{
			Path:        cfg.Store.Path,
			BusyTimeout: cfg.Store.BusyTimeout,
			Box:         box,
			Counter:     ledger,
		})
		if err != nil {
			_ = ledger.Close()
			return nil, fmt.Errorf("failed to open catalog store: %w", err)
		}
		return &backend{store: st, recorder: ledger, ledger: ledger}, nil

	default:
		return nil, cli.NewConfigError("store.backend", fmt.Sprintf("unsupported backend %q", cfg.Store.Backend))
	}
}
