// Package bootstrap creates the league roster on first boot and imports the
// public player catalog.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/store"
)

// EnsureManagers writes the roster when the managers collection is empty.
// It reports whether anything was created.
func EnsureManagers(ctx context.Context, st store.Store, clk clock.Clock, logger *zap.Logger) (bool, error) {
	existing, err := st.Query(ctx, store.Managers, store.Query{Limit: 1})
	if err != nil {
		return false, domain.ErrRemote("could not read managers", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	now := clk.Now().UTC()
	writes := make([]store.Write, 0, len(domain.Roster))
	for _, name := range domain.Roster {
		m := domain.Manager{ID: domain.Slug(name), Name: name, CreatedAt: now}
		writes = append(writes, store.Write{Collection: store.Managers, ID: m.ID, Data: m})
	}
	if err := store.Batch(ctx, st, writes); err != nil {
		return false, domain.ErrRemote("could not create managers", err)
	}

	logger.Info("league roster created", zap.Int("managers", len(writes)))
	return true, nil
}

// CatalogEntry is one player of the catalog import file.
type CatalogEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
	Team     string `json:"team"`
	Value    int64  `json:"value"`
}

// ImportCatalog reads a JSON array of catalog entries and writes them as
// unowned catalog players. Entries with an id overwrite the player of that
// id, so imports can be repeated.
func ImportCatalog(ctx context.Context, st store.Store, r io.Reader, clk clock.Clock, logger *zap.Logger) (int, error) {
	var entries []CatalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode catalog: %w", err)
	}

	now := clk.Now().UTC()
	writes := make([]store.Write, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		pos, ok := domain.ParsePosition(e.Position)
		if name == "" || !ok {
			skipped++
			continue
		}
		team := strings.TrimSpace(e.Team)
		if team == "" {
			team = "N/A"
		}
		p := domain.Player{
			Name:          name,
			Position:      pos,
			Team:          team,
			Value:         e.Value,
			Source:        domain.CatalogSource,
			NameLowercase: strings.ToLower(name),
			TeamLowercase: strings.ToLower(team),
			AddedAt:       now,
		}
		writes = append(writes, store.Write{Collection: store.Players, ID: e.ID, Data: p})
	}

	if err := store.Batch(ctx, st, writes); err != nil {
		return 0, domain.ErrRemote("could not import catalog", err)
	}

	logger.Info("catalog imported",
		zap.Int("players", len(writes)),
		zap.Int("skipped", skipped),
		zap.Int("batches", (len(writes)+store.MaxBatchSize-1)/store.MaxBatchSize))
	return len(writes), nil
}
