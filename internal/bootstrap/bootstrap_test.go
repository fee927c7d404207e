package bootstrap

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/store"
	"github.com/Alcatamy/Mercato/internal/store/memstore"
)

func testClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	return clk
}

func TestEnsureManagers_CreatesRosterOnce(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	created, err := EnsureManagers(ctx, st, testClock(), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, created)

	docs, err := st.Query(ctx, store.Managers, store.Query{})
	require.NoError(t, err)
	require.Len(t, docs, len(domain.Roster))

	d, err := st.Get(ctx, store.Managers, "alcatamy-esports-by-rolex")
	require.NoError(t, err)
	var m domain.Manager
	require.NoError(t, d.Decode(&m))
	assert.Equal(t, "Alcatamy eSports by Rolex", m.Name)

	created, err = EnsureManagers(ctx, st, testClock(), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSlug_RosterIDs(t *testing.T) {
	want := []string{
		"alcatamy-esports-by-rolex",
		"vigar-fc",
		"baena10",
		"dubai-city-fc",
		"visite-la-manga-fc",
		"morenazos-fc",
	}
	var got []string
	for _, name := range domain.Roster {
		got = append(got, domain.Slug(name))
	}
	assert.Equal(t, want, got)
}

const catalogJSON = `[
	{"id": "ff-1", "name": "Pedri", "position": "MED", "team": "FC Barcelona", "value": 75000000},
	{"id": "ff-2", "name": "Oblak", "position": "por", "team": "", "value": 40000000},
	{"id": "ff-3", "name": "", "position": "DEL", "team": "Betis", "value": 1},
	{"id": "ff-4", "name": "Ghost", "position": "GK", "team": "Betis", "value": 1}
]`

func TestImportCatalog(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	n, err := ImportCatalog(ctx, st, strings.NewReader(catalogJSON), testClock(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d, err := st.Get(ctx, store.Players, "ff-2")
	require.NoError(t, err)
	var p domain.Player
	require.NoError(t, d.Decode(&p))
	assert.Equal(t, domain.PositionPOR, p.Position)
	assert.Equal(t, "N/A", p.Team)
	assert.Equal(t, "oblak", p.NameLowercase)
	assert.Equal(t, domain.CatalogSource, p.Source)
	assert.Nil(t, p.OwnerID)

	// importing again overwrites instead of duplicating
	_, err = ImportCatalog(ctx, st, strings.NewReader(catalogJSON), testClock(), zap.NewNop())
	require.NoError(t, err)
	docs, err := st.Query(ctx, store.Players, store.Query{})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestImportCatalog_BadInput(t *testing.T) {
	_, err := ImportCatalog(context.Background(), memstore.New(), strings.NewReader("{"), testClock(), zap.NewNop())
	assert.Error(t, err)
}
