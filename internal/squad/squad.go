// Package squad adds players to a manager's squad, removes them, and searches
// the public player catalog.
package squad

import (
	"context"
	"errors"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/events"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/store"
)

// DefaultTeam is used for custom players entered without a team.
const DefaultTeam = "Personalizado"

var (
	ErrInvalidName     = domain.ErrValidation("INVALID_NAME", "player name is required")
	ErrInvalidPosition = domain.ErrValidation("INVALID_POSITION", "position must be one of POR, DEF, MED, DEL")
	ErrInvalidValue    = domain.ErrValidation("INVALID_VALUE", "value must be greater than zero")
	ErrAlreadyInSquad  = domain.ErrValidation("ALREADY_IN_SQUAD", "player is already in the squad")
	ErrNotCatalog      = domain.ErrValidation("NOT_IN_CATALOG", "player is not a catalog entry")
	ErrPlayerListed    = domain.ErrValidation("PLAYER_LISTED", "player is on the market")
	ErrNotOwner        = domain.ErrAuth("NOT_OWNER", "player belongs to another manager")
)

type Service struct {
	store  store.Store
	events events.Publisher
	clock  clock.Clock
	logger *zap.Logger
}

func New(st store.Store, pub events.Publisher, clk clock.Clock, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{store: st, events: pub, clock: clk, logger: logger.Named("squad")}
}

type CustomPlayer struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	Team     string `json:"team"`
	Value    int64  `json:"value"`
}

// AddCustomPlayer creates a hand-entered player owned by the session manager.
func (s *Service) AddCustomPlayer(ctx context.Context, sess *session.Session, in CustomPlayer) (domain.Player, error) {
	if err := session.Require(sess); err != nil {
		return domain.Player{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Player{}, ErrInvalidName
	}
	pos, ok := domain.ParsePosition(in.Position)
	if !ok {
		return domain.Player{}, ErrInvalidPosition
	}
	if in.Value <= 0 {
		return domain.Player{}, ErrInvalidValue
	}
	team := strings.TrimSpace(in.Team)
	if team == "" {
		team = DefaultTeam
	}

	owner := sess.ManagerID
	p := domain.Player{
		Name:      name,
		Position:  pos,
		Team:      team,
		Value:     in.Value,
		OwnerID:   &owner,
		OwnerName: sess.ManagerName,
		IsCustom:  true,
		AddedAt:   s.clock.Now().UTC(),
	}
	id, err := s.store.Create(ctx, store.Players, p)
	if err != nil {
		return domain.Player{}, s.fail("add custom player", err)
	}
	p.ID = id

	s.logger.Info("custom player added", zap.String("player_id", id), zap.String("manager_id", owner))
	s.publish(ctx, events.PlayerAdded, id, owner, p)
	return p, nil
}

// AddCatalogPlayer copies a catalog entry into the session manager's squad.
// The same name and team cannot be added twice to one squad.
func (s *Service) AddCatalogPlayer(ctx context.Context, sess *session.Session, catalogID string) (domain.Player, error) {
	if err := session.Require(sess); err != nil {
		return domain.Player{}, err
	}

	var entry domain.Player
	if err := s.get(ctx, s.store, catalogID, &entry); err != nil {
		return domain.Player{}, s.fail("add catalog player", err)
	}
	if entry.Source != domain.CatalogSource || entry.OwnerID != nil {
		return domain.Player{}, ErrNotCatalog
	}

	dupes, err := s.store.Query(ctx, store.Players, store.Query{
		Filters: []store.Filter{
			store.Where("ownerId", store.OpEq, sess.ManagerID),
			store.Where("name", store.OpEq, entry.Name),
			store.Where("team", store.OpEq, entry.Team),
		},
		Limit: 1,
	})
	if err != nil {
		return domain.Player{}, s.fail("add catalog player", err)
	}
	if len(dupes) > 0 {
		return domain.Player{}, ErrAlreadyInSquad
	}

	owner := sess.ManagerID
	p := domain.Player{
		Name:      entry.Name,
		Position:  entry.Position,
		Team:      entry.Team,
		Value:     entry.Value,
		OwnerID:   &owner,
		OwnerName: sess.ManagerName,
		Source:    domain.CatalogSource,
		CatalogID: entry.ID,
		AddedAt:   s.clock.Now().UTC(),
	}
	id, err := s.store.Create(ctx, store.Players, p)
	if err != nil {
		return domain.Player{}, s.fail("add catalog player", err)
	}
	p.ID = id

	s.logger.Info("catalog player added",
		zap.String("player_id", id),
		zap.String("catalog_id", catalogID),
		zap.String("manager_id", owner))
	s.publish(ctx, events.PlayerAdded, id, owner, p)
	return p, nil
}

// RemovePlayer deletes a player from the session manager's squad. Listed
// players must be taken off the market first.
func (s *Service) RemovePlayer(ctx context.Context, sess *session.Session, playerID string) error {
	if err := session.Require(sess); err != nil {
		return err
	}

	err := s.store.RunTx(ctx, func(tx store.Tx) error {
		var p domain.Player
		if err := s.get(ctx, tx, playerID, &p); err != nil {
			return err
		}
		if !p.OwnedBy(sess.ManagerID) {
			return ErrNotOwner
		}
		// Listings are keyed by player id.
		if _, err := tx.Get(ctx, store.Market, playerID); err == nil {
			return ErrPlayerListed
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.Delete(ctx, store.Players, playerID)
	})
	if err != nil {
		return s.fail("remove player", err)
	}

	s.logger.Info("player removed", zap.String("player_id", playerID), zap.String("manager_id", sess.ManagerID))
	s.publish(ctx, events.PlayerRemoved, playerID, sess.ManagerID, nil)
	return nil
}

func (s *Service) get(ctx context.Context, r store.Reader, id string, p *domain.Player) error {
	d, err := r.Get(ctx, store.Players, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrNotFound("player", id)
	}
	if err != nil {
		return err
	}
	return d.Decode(p)
}

func (s *Service) fail(op string, err error) error {
	var ae *domain.AppError
	if errors.As(err, &ae) {
		return err
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return domain.ErrRemote(op+" failed", err)
}

func (s *Service) publish(ctx context.Context, t events.Type, aggregateID, managerID string, payload any) {
	err := s.events.Publish(ctx, events.Event{
		Type:        t,
		AggregateID: aggregateID,
		ManagerID:   managerID,
		Payload:     payload,
		OccurredAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("event not published", zap.String("type", string(t)), zap.Error(err))
	}
}
