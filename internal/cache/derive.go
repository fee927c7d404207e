package cache

import (
	"sort"

	"github.com/Alcatamy/Mercato/internal/domain"
)

// StatusIndex maps player ids to their derived status. Players with no
// entry are StatusNone.
type StatusIndex map[string]domain.PlayerStatus

func (s StatusIndex) Of(playerID string) domain.PlayerStatus {
	if st, ok := s[playerID]; ok {
		return st
	}
	return domain.StatusNone
}

// BuildStatusIndex applies first-match-wins: market, then auction, then a
// pending trade.
func BuildStatusIndex(listings []domain.Listing, auctions []domain.Auction, trades []domain.Trade) StatusIndex {
	idx := make(StatusIndex)
	for _, t := range trades {
		if t.Status != domain.TradePending {
			continue
		}
		for _, id := range t.Players() {
			idx[id] = domain.StatusTrade
		}
	}
	// Later passes overwrite earlier ones.
	for _, a := range auctions {
		idx[a.PlayerID] = domain.StatusAuction
	}
	for _, l := range listings {
		idx[l.PlayerID] = domain.StatusMarket
	}
	return idx
}

type SquadPlayer struct {
	domain.Player
	Status domain.PlayerStatus `json:"status"`
}

type SquadView struct {
	ManagerID   string        `json:"managerId"`
	ManagerName string        `json:"managerName"`
	Players     []SquadPlayer `json:"players"`
	TotalValue  int64         `json:"totalValue"`
}

// BuildSquads groups owned players by manager. Every known manager gets a
// view, even with an empty squad.
func BuildSquads(managers []domain.Manager, players []domain.Player, idx StatusIndex) map[string]SquadView {
	squads := make(map[string]SquadView, len(managers))
	for _, m := range managers {
		squads[m.ID] = SquadView{ManagerID: m.ID, ManagerName: m.Name, Players: []SquadPlayer{}}
	}
	for _, p := range players {
		if p.OwnerID == nil {
			continue
		}
		v, ok := squads[*p.OwnerID]
		if !ok {
			v = SquadView{ManagerID: *p.OwnerID, ManagerName: p.OwnerName}
		}
		v.Players = append(v.Players, SquadPlayer{Player: p, Status: idx.Of(p.ID)})
		v.TotalValue += p.Value
		squads[*p.OwnerID] = v
	}
	for id, v := range squads {
		sort.SliceStable(v.Players, func(i, j int) bool {
			a, b := v.Players[i], v.Players[j]
			if a.Position.Rank() != b.Position.Rank() {
				return a.Position.Rank() < b.Position.Rank()
			}
			return a.Value > b.Value
		})
		squads[id] = v
	}
	return squads
}

// BuildMarket returns the listings newest first.
func BuildMarket(listings []domain.Listing) []domain.Listing {
	out := append([]domain.Listing(nil), listings...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
