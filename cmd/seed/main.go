// Command seed creates the league roster and imports a catalog file.
//
//	seed -catalog players.json
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/bootstrap"
	"github.com/Alcatamy/Mercato/internal/config"
	"github.com/Alcatamy/Mercato/internal/logging"
	"github.com/Alcatamy/Mercato/internal/store/driver"
)

func main() {
	catalogPath := flag.String("catalog", "", "JSON file of catalog players to import")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	clk := clock.New()

	st, err := driver.Open(ctx, cfg, clk, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	created, err := bootstrap.EnsureManagers(ctx, st, clk, logger)
	if err != nil {
		logger.Fatal("create roster", zap.Error(err))
	}
	if !created {
		logger.Info("roster already present")
	}

	if *catalogPath == "" {
		return
	}
	f, err := os.Open(*catalogPath)
	if err != nil {
		logger.Fatal("open catalog", zap.Error(err))
	}
	defer f.Close()

	if _, err := bootstrap.ImportCatalog(ctx, st, f, clk, logger); err != nil {
		logger.Fatal("import catalog", zap.Error(err))
	}
}
