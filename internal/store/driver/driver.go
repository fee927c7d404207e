// Package driver opens the store selected by configuration.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/config"
	"github.com/Alcatamy/Mercato/internal/store"
	"github.com/Alcatamy/Mercato/internal/store/memstore"
	"github.com/Alcatamy/Mercato/internal/store/pgstore"
)

func Open(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return memstore.New(memstore.WithClock(clk)), nil

	case "postgres":
		if err := pgstore.Migrate(cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
		openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		st, err := pgstore.Open(openCtx, pgstore.Options{DSN: cfg.DatabaseURL, Logger: logger, Clock: clk})
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
