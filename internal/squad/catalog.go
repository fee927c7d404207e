package squad

import (
	"context"
	"sort"
	"strings"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/store"
)

const (
	// Queries at least this long narrow the store read by name prefix.
	minPrefixQuery  = 3
	prefixReadLimit = 50
	broadReadLimit  = 100
	maxResults      = 50
	unknownTeam     = "N/A"
)

type CatalogFilter struct {
	Query    string
	Team     string
	MinValue int64
	MaxValue int64 // 0 means no upper bound
}

// catalogFilters selects catalog entries. Squad copies share the source tag
// but carry an owner.
func catalogFilters() []store.Filter {
	return []store.Filter{
		store.Where("source", store.OpEq, domain.CatalogSource),
		store.Where("ownerId", store.OpEq, nil),
	}
}

// SearchCatalog returns catalog players matching f, most valuable first.
func (s *Service) SearchCatalog(ctx context.Context, f CatalogFilter) ([]domain.Player, error) {
	q := strings.ToLower(strings.TrimSpace(f.Query))

	read := store.Query{
		Filters: catalogFilters(),
		Limit:   broadReadLimit,
	}
	if len(q) >= minPrefixQuery {
		read.Filters = append(read.Filters, store.Where("name_lowercase", store.OpPrefix, q))
		read.Limit = prefixReadLimit
	}

	docs, err := s.store.Query(ctx, store.Players, read)
	if err != nil {
		return nil, s.fail("search catalog", err)
	}

	out := make([]domain.Player, 0, len(docs))
	for _, d := range docs {
		var p domain.Player
		if err := d.Decode(&p); err != nil {
			return nil, s.fail("search catalog", err)
		}
		if p.OwnerID != nil || !matches(p, q, f) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func matches(p domain.Player, q string, f CatalogFilter) bool {
	if q != "" {
		name := p.NameLowercase
		if name == "" {
			name = strings.ToLower(p.Name)
		}
		team := p.TeamLowercase
		if team == "" {
			team = strings.ToLower(p.Team)
		}
		if !strings.Contains(name, q) && !strings.Contains(team, q) {
			return false
		}
	}
	if f.Team != "" && p.Team != f.Team {
		return false
	}
	if p.Value < f.MinValue {
		return false
	}
	if f.MaxValue > 0 && p.Value > f.MaxValue {
		return false
	}
	return true
}

// CatalogTeams lists the distinct catalog teams in alphabetical order.
func (s *Service) CatalogTeams(ctx context.Context) ([]string, error) {
	docs, err := s.store.Query(ctx, store.Players, store.Query{
		Filters: catalogFilters(),
	})
	if err != nil {
		return nil, s.fail("list catalog teams", err)
	}

	seen := map[string]bool{}
	teams := []string{}
	for _, d := range docs {
		var p domain.Player
		if err := d.Decode(&p); err != nil {
			return nil, s.fail("list catalog teams", err)
		}
		if p.OwnerID != nil || p.Team == "" || p.Team == unknownTeam || seen[p.Team] {
			continue
		}
		seen[p.Team] = true
		teams = append(teams, p.Team)
	}
	sort.Strings(teams)
	return teams, nil
}
