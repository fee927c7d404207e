package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Alcatamy/Mercato/internal/bootstrap"
	"github.com/Alcatamy/Mercato/internal/cache"
	"github.com/Alcatamy/Mercato/internal/config"
	"github.com/Alcatamy/Mercato/internal/events"
	"github.com/Alcatamy/Mercato/internal/httpapi"
	"github.com/Alcatamy/Mercato/internal/logging"
	"github.com/Alcatamy/Mercato/internal/market"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/squad"
	"github.com/Alcatamy/Mercato/internal/standings"
	"github.com/Alcatamy/Mercato/internal/store/driver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.LogEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	st, err := driver.Open(ctx, cfg, clk, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if _, err := bootstrap.EnsureManagers(ctx, st, clk, logger); err != nil {
		return err
	}

	c, err := cache.Start(ctx, st, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	select {
	case <-c.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}

	pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer pub.Close()

	gate := session.NewGate(ctx, session.Options{
		Keys:      session.Keys(cfg.ManagerKeys),
		Directory: c,
		Tokens:    session.NewTokens(cfg.JWTSecret, clk),
		Clock:     clk,
		TTL:       cfg.SessionTTL,
		Logger:    logger,
	})
	defer gate.Shutdown()

	// Build the router *with* the services injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Gate:           gate,
		Cache:          c,
		Market:         market.New(st, c, pub, clk, logger),
		Squad:          squad.New(st, pub, clk, logger),
		Standings:      standings.New(st, c, pub, clk, logger),
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop() // Release the cache pumps too.
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := c.Wait(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
