package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/config"
	_ "github.com/autom8ter/querylens/store/embedded"
	_ "github.com/autom8ter/querylens/store/mongodb"
)

type globalFlags struct {
	configPath *string
	logLevel   *string
}

// app is a loaded config with its logger, store and service
type app struct {
	cfg    *config.Config
	logger querylens.Logger
	store  querylens.Store
	svc    *querylens.Service
}

func (f *globalFlags) loadConfig() (*config.Config, querylens.Logger, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, nil, err
	}
	if *f.logLevel != "" {
		cfg.Log.Level = *f.logLevel
	}
	logger, err := querylens.NewLogger(cfg.Log.Level, map[string]any{"service": "querylens"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (f *globalFlags) open(ctx context.Context) (*app, error) {
	cfg, logger, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "opening store", map[string]any{
		"provider": cfg.Store.Provider,
		"uri":      cfg.MaskedURI(),
		"database": cfg.MongoDB.Database,
	})
	store, err := querylens.OpenStore(ctx, cfg.Store.Provider, cfg.StoreParams())
	if err != nil {
		logger.Error(ctx, "failed to open store", map[string]any{"error": err})
		return nil, err
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		svc:    querylens.New(store, cfg.ServiceOptions(logger)...),
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error(ctx, "failed to close store", map[string]any{"error": err})
	}
	a.logger.Sync(ctx)
}

func printJSON(v any) error {
	bits, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(bits))
	return nil
}
