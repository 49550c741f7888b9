package main

import (
	"log/slog"

	"github.com/vango-dev/statekit/internal/config"
	"github.com/vango-dev/statekit/pkg/configstore"
	"github.com/vango-dev/statekit/pkg/server"
	"github.com/vango-dev/statekit/pkg/state"
)

// loadConfig reads path, or the working directory when path is empty, and
// validates the result.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Load(".")
	} else {
		cfg, err = config.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// storeFactory builds stores configured by cfg.
func storeFactory(cfg *config.Config, logger *slog.Logger, observers ...state.Observer) server.StoreFactory {
	specs := cfg.Specs()
	return func() (*state.Manager, *configstore.Store) {
		cs := configstore.New(logger)
		cfg.Apply(cs)

		opts := []state.Option{state.WithConfig(cs), state.WithLogger(logger)}
		for _, obs := range observers {
			opts = append(opts, state.WithObserver(obs))
		}
		m := state.New(opts...)
		if err := m.AddConfig(specs); err != nil {
			logger.Error("invalid param config", "error", err)
		}
		return m, cs
	}
}
