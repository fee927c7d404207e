// Package standings records the ranking of each league round and the
// penalty payments owed for it.
package standings

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/events"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/store"
)

const (
	FirstRound = 1
	LastRound  = 38
)

var (
	ErrRoundOutOfRange  = domain.ErrValidation("INVALID_ROUND", fmt.Sprintf("jornada must be between %d and %d", FirstRound, LastRound))
	ErrNoPoints         = domain.ErrValidation("NO_POINTS", "at least one manager needs points above zero")
	ErrDuplicateManager = domain.ErrValidation("DUPLICATE_MANAGER", "a manager appears twice")
	ErrNegativeAmount   = domain.ErrValidation("INVALID_AMOUNT", "amount cannot be negative")
	ErrMissingManager   = domain.ErrValidation("MISSING_MANAGER", "manager name is required")
)

func errUnknownManager(id string) error {
	return domain.ErrValidation("UNKNOWN_MANAGER", fmt.Sprintf("manager %q is not in the league", id))
}

// Roster lists the league managers. Every one of them is ranked in each
// round.
type Roster interface {
	Managers(ctx context.Context) ([]domain.Manager, error)
}

// Penalties owed by the bottom two of a round. They are only the default
// amounts offered when recording a payment.
var (
	LastPlacePenalty         = decimal.NewFromInt(3)
	SecondToLastPlacePenalty = decimal.NewFromInt(2)
)

// SaveMode decides what happens to recorded payments when a round is saved
// again.
type SaveMode string

const (
	// Replace rewrites the round and clears its payments.
	Replace SaveMode = "replace"
	// MergePayments keeps the payments of managers that are still ranked.
	MergePayments SaveMode = "merge"
)

func ParseSaveMode(s string) (SaveMode, error) {
	switch SaveMode(s) {
	case "", Replace:
		return Replace, nil
	case MergePayments:
		return MergePayments, nil
	}
	return "", domain.ErrValidation("INVALID_MODE", fmt.Sprintf("unknown save mode %q", s))
}

type ManagerPoints struct {
	ManagerID string  `json:"managerId"`
	Manager   string  `json:"manager,omitempty"`
	Puntos    float64 `json:"puntos"`
}

// JornadaID is the record id of round n.
func JornadaID(n int) string { return fmt.Sprintf("jornada-%d", n) }

type Ledger struct {
	store  store.Store
	roster Roster
	events events.Publisher
	clock  clock.Clock
	logger *zap.Logger
}

func New(st store.Store, roster Roster, pub events.Publisher, clk clock.Clock, logger *zap.Logger) *Ledger {
	if clk == nil {
		clk = clock.New()
	}
	return &Ledger{store: st, roster: roster, events: pub, clock: clk, logger: logger.Named("standings")}
}

// Rank orders scores by points descending, keeping input order on ties, and
// numbers positions from 1.
func Rank(points []ManagerPoints) []domain.Standing {
	ranked := make([]domain.Standing, len(points))
	for i, p := range points {
		ranked[i] = domain.Standing{Manager: p.Manager, ManagerID: p.ManagerID, Puntos: p.Puntos}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Puntos > ranked[j].Puntos })
	for i := range ranked {
		ranked[i].Posicion = i + 1
	}
	return ranked
}

func validate(numero int, points []ManagerPoints) error {
	if numero < FirstRound || numero > LastRound {
		return ErrRoundOutOfRange
	}
	seen := make(map[string]bool, len(points))
	positive := false
	for _, p := range points {
		if seen[p.ManagerID] {
			return ErrDuplicateManager
		}
		seen[p.ManagerID] = true
		if p.Puntos > 0 {
			positive = true
		}
	}
	if !positive {
		return ErrNoPoints
	}
	return nil
}

// complete names every entry from the roster and appends the managers with no
// entry at zero points, in id order, after the supplied ones.
func complete(points []ManagerPoints, roster []domain.Manager) ([]ManagerPoints, error) {
	byID := make(map[string]domain.Manager, len(roster))
	for _, m := range roster {
		byID[m.ID] = m
	}

	out := make([]ManagerPoints, 0, len(roster))
	seen := make(map[string]bool, len(points))
	for _, p := range points {
		m, ok := byID[p.ManagerID]
		if !ok {
			return nil, errUnknownManager(p.ManagerID)
		}
		p.Manager = m.Name
		seen[p.ManagerID] = true
		out = append(out, p)
	}

	missing := make([]domain.Manager, 0, len(roster))
	for _, m := range roster {
		if !seen[m.ID] {
			missing = append(missing, m)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].ID < missing[j].ID })
	for _, m := range missing {
		out = append(out, ManagerPoints{ManagerID: m.ID, Manager: m.Name})
	}
	return out, nil
}

// SaveJornada ranks the whole roster for the round and writes it under
// "jornada-{numero}". Managers without an entry score zero.
func (l *Ledger) SaveJornada(ctx context.Context, sess *session.Session, numero int, points []ManagerPoints, mode SaveMode) (domain.Jornada, error) {
	if err := session.Require(sess); err != nil {
		return domain.Jornada{}, err
	}
	if err := validate(numero, points); err != nil {
		return domain.Jornada{}, err
	}

	roster, err := l.roster.Managers(ctx)
	if err != nil {
		return domain.Jornada{}, l.fail("save jornada", err)
	}
	named, err := complete(points, roster)
	if err != nil {
		return domain.Jornada{}, err
	}

	j := domain.Jornada{
		ID:            JornadaID(numero),
		Numero:        numero,
		Clasificacion: Rank(named),
		FechaCreacion: l.clock.Now().UTC(),
		Completada:    true,
		Pagos:         map[string]domain.Payment{},
	}

	err = l.store.RunTx(ctx, func(tx store.Tx) error {
		if mode == MergePayments {
			var prev domain.Jornada
			err := getJornada(ctx, tx, j.ID, &prev)
			switch {
			case err == nil:
				for _, s := range j.Clasificacion {
					if p, ok := prev.Pagos[s.Manager]; ok {
						j.Pagos[s.Manager] = p
					}
				}
			case !domain.IsKind(err, domain.KindNotFound):
				return err
			}
		}
		return tx.Set(ctx, store.Jornadas, j.ID, j)
	})
	if err != nil {
		return domain.Jornada{}, l.fail("save jornada", err)
	}

	l.logger.Info("jornada saved",
		zap.Int("numero", numero),
		zap.String("mode", string(mode)),
		zap.String("manager_id", sess.ManagerID))
	l.publish(ctx, events.JornadaSaved, j.ID, sess.ManagerID, j)
	return j, nil
}

// SetPaymentStatus records whether a manager paid for a round. Other
// managers' entries are left alone.
func (l *Ledger) SetPaymentStatus(ctx context.Context, sess *session.Session, jornadaID, managerName string, defaultAmount decimal.Decimal, paid bool) (domain.Payment, error) {
	if err := session.Require(sess); err != nil {
		return domain.Payment{}, err
	}
	if managerName == "" {
		return domain.Payment{}, ErrMissingManager
	}
	if defaultAmount.IsNegative() {
		return domain.Payment{}, ErrNegativeAmount
	}

	p := domain.Payment{Pagado: paid, Cantidad: defaultAmount}
	if paid {
		now := l.clock.Now().UTC()
		p.FechaPago = &now
	}
	if err := l.update(ctx, jornadaID, managerName, store.Set(p, "pagos", managerName)); err != nil {
		return domain.Payment{}, l.fail("set payment status", err)
	}

	l.logger.Info("payment status set",
		zap.String("jornada_id", jornadaID),
		zap.String("manager", managerName),
		zap.Bool("paid", paid))
	l.publish(ctx, events.PaymentUpdated, jornadaID, sess.ManagerID, map[string]any{"manager": managerName, "payment": p})
	return p, nil
}

// SetPaymentAmount changes only the amount owed by a manager for a round.
func (l *Ledger) SetPaymentAmount(ctx context.Context, sess *session.Session, jornadaID, managerName string, amount decimal.Decimal) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	if managerName == "" {
		return ErrMissingManager
	}
	if amount.IsNegative() {
		return ErrNegativeAmount
	}

	if err := l.update(ctx, jornadaID, managerName, store.Set(amount, "pagos", managerName, "cantidad")); err != nil {
		return l.fail("set payment amount", err)
	}

	l.logger.Info("payment amount set",
		zap.String("jornada_id", jornadaID),
		zap.String("manager", managerName),
		zap.String("amount", amount.StringFixed(2)))
	l.publish(ctx, events.PaymentUpdated, jornadaID, sess.ManagerID, map[string]any{"manager": managerName, "cantidad": amount})
	return nil
}

// update applies u to a round's record. managerName must be ranked in the
// round.
func (l *Ledger) update(ctx context.Context, jornadaID, managerName string, u store.FieldUpdate) error {
	return l.store.RunTx(ctx, func(tx store.Tx) error {
		var j domain.Jornada
		if err := getJornada(ctx, tx, jornadaID, &j); err != nil {
			return err
		}
		if !ranked(j, managerName) {
			return domain.ErrValidation("NOT_RANKED", fmt.Sprintf("%s is not ranked in %s", managerName, jornadaID))
		}
		return tx.Update(ctx, store.Jornadas, jornadaID, u)
	})
}

func ranked(j domain.Jornada, managerName string) bool {
	for _, s := range j.Clasificacion {
		if s.Manager == managerName {
			return true
		}
	}
	return false
}

// ListJornadas returns every saved round ordered by number.
func (l *Ledger) ListJornadas(ctx context.Context) ([]domain.Jornada, error) {
	docs, err := l.store.Query(ctx, store.Jornadas, store.Query{OrderBy: "numero"})
	if err != nil {
		return nil, l.fail("list jornadas", err)
	}
	out := make([]domain.Jornada, 0, len(docs))
	for _, d := range docs {
		var j domain.Jornada
		if err := d.Decode(&j); err != nil {
			return nil, l.fail("list jornadas", err)
		}
		out = append(out, j)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Numero < out[k].Numero })
	return out, nil
}

func (l *Ledger) GetJornada(ctx context.Context, id string) (domain.Jornada, error) {
	var j domain.Jornada
	if err := getJornada(ctx, l.store, id, &j); err != nil {
		return domain.Jornada{}, l.fail("get jornada", err)
	}
	return j, nil
}

func getJornada(ctx context.Context, r store.Reader, id string, j *domain.Jornada) error {
	d, err := r.Get(ctx, store.Jornadas, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrNotFound("jornada", id)
	}
	if err != nil {
		return err
	}
	return d.Decode(j)
}

// Penalties returns the default amount owed per manager name: the last
// ranked owes LastPlacePenalty and the one above SecondToLastPlacePenalty.
func Penalties(j domain.Jornada) map[string]decimal.Decimal {
	ranked := append([]domain.Standing(nil), j.Clasificacion...)
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].Posicion < ranked[b].Posicion })

	out := map[string]decimal.Decimal{}
	n := len(ranked)
	if n >= 1 {
		out[ranked[n-1].Manager] = LastPlacePenalty
	}
	if n >= 2 {
		out[ranked[n-2].Manager] = SecondToLastPlacePenalty
	}
	return out
}

// CalculateTotalCollected sums the amounts of paid entries.
func CalculateTotalCollected(pagos map[string]domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range pagos {
		if p.Pagado {
			total = total.Add(p.Cantidad)
		}
	}
	return total
}

// FormatAmount renders money with two decimals, e.g. "3.00".
func FormatAmount(d decimal.Decimal) string { return d.StringFixed(2) }

func (l *Ledger) fail(op string, err error) error {
	var ae *domain.AppError
	if errors.As(err, &ae) {
		return err
	}
	l.logger.Error(op+" failed", zap.Error(err))
	return domain.ErrRemote(op+" failed", err)
}

func (l *Ledger) publish(ctx context.Context, t events.Type, aggregateID, managerID string, payload any) {
	err := l.events.Publish(ctx, events.Event{
		Type:        t,
		AggregateID: aggregateID,
		ManagerID:   managerID,
		Payload:     payload,
		OccurredAt:  l.clock.Now().UTC(),
	})
	if err != nil {
		l.logger.Warn("event not published", zap.String("type", string(t)), zap.Error(err))
	}
}
