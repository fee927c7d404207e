package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alcatamy/Mercato/internal/domain"
)

func owner(id string) *string { return &id }

func TestBuildStatusIndex_FirstMatchWins(t *testing.T) {
	listings := []domain.Listing{{ID: "p1", PlayerID: "p1"}}
	auctions := []domain.Auction{{ID: "a1", PlayerID: "p1"}, {ID: "a2", PlayerID: "p2"}}
	trades := []domain.Trade{
		{ID: "t1", Status: domain.TradePending, ProposerPlayers: []string{"p2", "p3"}, ReceiverPlayers: []string{"p4"}},
		{ID: "t2", Status: domain.TradeAccepted, ProposerPlayers: []string{"p5"}},
	}

	idx := BuildStatusIndex(listings, auctions, trades)

	assert.Equal(t, domain.StatusMarket, idx.Of("p1"))
	assert.Equal(t, domain.StatusAuction, idx.Of("p2"))
	assert.Equal(t, domain.StatusTrade, idx.Of("p3"))
	assert.Equal(t, domain.StatusTrade, idx.Of("p4"))
	assert.Equal(t, domain.StatusNone, idx.Of("p5"))
	assert.Equal(t, domain.StatusNone, idx.Of("unknown"))
}

func TestBuildSquads_GroupsSortsAndTotals(t *testing.T) {
	managers := []domain.Manager{{ID: "vigar-fc", Name: "Vigar FC"}, {ID: "baena10", Name: "Baena10"}}
	players := []domain.Player{
		{ID: "d1", Name: "Araujo", Position: domain.PositionDEF, Value: 40, OwnerID: owner("vigar-fc")},
		{ID: "m1", Name: "Pedri", Position: domain.PositionMED, Value: 75, OwnerID: owner("vigar-fc")},
		{ID: "d2", Name: "Kounde", Position: domain.PositionDEF, Value: 55, OwnerID: owner("vigar-fc")},
		{ID: "g1", Name: "Ter Stegen", Position: domain.PositionPOR, Value: 20, OwnerID: owner("vigar-fc")},
		{ID: "f1", Name: "Free Agent", Position: domain.PositionDEL, Value: 90},
	}
	idx := StatusIndex{"m1": domain.StatusMarket}

	squads := BuildSquads(managers, players, idx)

	require.Len(t, squads, 2)
	vigar := squads["vigar-fc"]
	assert.Equal(t, "Vigar FC", vigar.ManagerName)
	assert.Equal(t, int64(190), vigar.TotalValue)

	var order []string
	for _, p := range vigar.Players {
		order = append(order, p.ID)
	}
	assert.Equal(t, []string{"g1", "d2", "d1", "m1"}, order)
	assert.Equal(t, domain.StatusMarket, vigar.Players[3].Status)
	assert.Equal(t, domain.StatusNone, vigar.Players[0].Status)

	baena := squads["baena10"]
	assert.Empty(t, baena.Players)
	assert.Zero(t, baena.TotalValue)
}

func TestBuildMarket_NewestFirst(t *testing.T) {
	t0 := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	listings := []domain.Listing{
		{ID: "old", CreatedAt: t0},
		{ID: "new", CreatedAt: t0.Add(2 * time.Hour)},
		{ID: "mid", CreatedAt: t0.Add(time.Hour)},
	}

	got := BuildMarket(listings)

	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "mid", got[1].ID)
	assert.Equal(t, "old", got[2].ID)
	assert.Equal(t, "old", listings[0].ID, "input must not be reordered")
}
