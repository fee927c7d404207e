package standings

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/events"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/store"
	"github.com/Alcatamy/Mercato/internal/store/memstore"
)

type roster []domain.Manager

func (r roster) Managers(context.Context) ([]domain.Manager, error) { return r, nil }

var (
	league = roster{
		{ID: "m3", Name: "Morenazos FC"},
		{ID: "m1", Name: "Vigar FC"},
		{ID: "m2", Name: "Baena10"},
	}
	admin  = &session.Session{ID: "s1", ManagerID: "m1", ManagerName: "Vigar FC"}
)

func newLedger(t *testing.T) (*Ledger, *memstore.Store, *events.Recorder, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 10, 5, 20, 0, 0, 0, time.UTC))
	st := memstore.New(memstore.WithClock(clk))
	rec := &events.Recorder{}
	return New(st, league, rec, clk, zap.NewNop()), st, rec, clk
}

func round5() []ManagerPoints {
	return []ManagerPoints{
		{ManagerID: "m1", Puntos: 10},
		{ManagerID: "m2", Puntos: 30},
		{ManagerID: "m3", Puntos: 20},
	}
}

func TestRank_StableDescending(t *testing.T) {
	ranked := Rank([]ManagerPoints{
		{ManagerID: "a", Manager: "A", Puntos: 5},
		{ManagerID: "b", Manager: "B", Puntos: 9},
		{ManagerID: "c", Manager: "C", Puntos: 5},
	})

	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{ranked[0].ManagerID, ranked[1].ManagerID, ranked[2].ManagerID})
	for i, s := range ranked {
		assert.Equal(t, i+1, s.Posicion)
	}
}

func TestSaveJornada_RanksAndStores(t *testing.T) {
	ctx := context.Background()
	l, _, rec, clk := newLedger(t)

	j, err := l.SaveJornada(ctx, admin, 5, round5(), Replace)
	require.NoError(t, err)
	assert.Equal(t, "jornada-5", j.ID)
	assert.True(t, j.Completada)
	assert.Equal(t, clk.Now().UTC(), j.FechaCreacion)
	assert.Empty(t, j.Pagos)

	want := []domain.Standing{
		{Manager: "Baena10", ManagerID: "m2", Puntos: 30, Posicion: 1},
		{Manager: "Morenazos FC", ManagerID: "m3", Puntos: 20, Posicion: 2},
		{Manager: "Vigar FC", ManagerID: "m1", Puntos: 10, Posicion: 3},
	}
	assert.Equal(t, want, j.Clasificacion)

	stored, err := l.GetJornada(ctx, "jornada-5")
	require.NoError(t, err)
	assert.Equal(t, want, stored.Clasificacion)
	assert.Len(t, rec.OfType(events.JornadaSaved), 1)
}

func TestSaveJornada_Validation(t *testing.T) {
	ctx := context.Background()
	l, st, _, _ := newLedger(t)

	cases := []struct {
		name    string
		numero  int
		points  []ManagerPoints
		wantErr error
	}{
		{name: "round zero", numero: 0, points: round5(), wantErr: ErrRoundOutOfRange},
		{name: "round 39", numero: 39, points: round5(), wantErr: ErrRoundOutOfRange},
		{name: "all zero", numero: 1, points: []ManagerPoints{{ManagerID: "m1"}, {ManagerID: "m2"}}, wantErr: ErrNoPoints},
		{name: "empty", numero: 1, wantErr: ErrNoPoints},
		{name: "duplicate", numero: 1, points: []ManagerPoints{{ManagerID: "m1", Puntos: 1}, {ManagerID: "m1", Puntos: 2}}, wantErr: ErrDuplicateManager},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.SaveJornada(ctx, admin, tc.numero, tc.points, Replace)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.True(t, domain.IsKind(err, domain.KindValidation))
		})
	}

	_, err := l.SaveJornada(ctx, nil, 5, round5(), Replace)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	_, err = l.SaveJornada(ctx, admin, 5, []ManagerPoints{{ManagerID: "ghost", Puntos: 3}}, Replace)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	docs, err := st.Query(ctx, store.Jornadas, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSaveJornada_RanksOmittedManagersAtZero(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newLedger(t)

	j, err := l.SaveJornada(ctx, admin, 7, []ManagerPoints{
		{ManagerID: "m1", Puntos: 10},
		{ManagerID: "m2", Puntos: 30},
	}, Replace)
	require.NoError(t, err)

	want := []domain.Standing{
		{Manager: "Baena10", ManagerID: "m2", Puntos: 30, Posicion: 1},
		{Manager: "Vigar FC", ManagerID: "m1", Puntos: 10, Posicion: 2},
		{Manager: "Morenazos FC", ManagerID: "m3", Puntos: 0, Posicion: 3},
	}
	assert.Equal(t, want, j.Clasificacion)

	p := Penalties(j)
	assert.True(t, p["Morenazos FC"].Equal(LastPlacePenalty))
	assert.True(t, p["Vigar FC"].Equal(SecondToLastPlacePenalty))
}

func TestSaveJornada_ZeroTiesKeepSuppliedOrderFirst(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newLedger(t)

	// m3 is supplied with zero, m1 is omitted: the supplied entry ranks first.
	j, err := l.SaveJornada(ctx, admin, 8, []ManagerPoints{
		{ManagerID: "m2", Puntos: 4},
		{ManagerID: "m3", Puntos: 0},
	}, Replace)
	require.NoError(t, err)
	require.Len(t, j.Clasificacion, 3)
	assert.Equal(t, []string{"m2", "m3", "m1"},
		[]string{j.Clasificacion[0].ManagerID, j.Clasificacion[1].ManagerID, j.Clasificacion[2].ManagerID})
}

func TestSaveJornada_RejectsManagersOutsideTheLeague(t *testing.T) {
	ctx := context.Background()
	l, st, _, _ := newLedger(t)

	_, err := l.SaveJornada(ctx, admin, 7, []ManagerPoints{
		{ManagerID: "m1", Puntos: 10},
		{ManagerID: "m2", Puntos: 30},
		{ManagerID: "ghost", Manager: "Ghost FC", Puntos: 5},
	}, Replace)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = st.Get(ctx, store.Jornadas, JornadaID(7))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveJornada_NamesComeFromTheRoster(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newLedger(t)

	j, err := l.SaveJornada(ctx, admin, 9, []ManagerPoints{{ManagerID: "m1", Manager: "Someone Else", Puntos: 1}}, Replace)
	require.NoError(t, err)
	assert.Equal(t, "Vigar FC", j.Clasificacion[0].Manager)
}

func TestSaveJornada_BoundaryRounds(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newLedger(t)

	for _, n := range []int{FirstRound, LastRound} {
		_, err := l.SaveJornada(ctx, admin, n, round5(), Replace)
		assert.NoError(t, err)
	}
}

func TestSaveJornada_ResaveModes(t *testing.T) {
	ctx := context.Background()

	t.Run("replace clears payments", func(t *testing.T) {
		l, _, _, _ := newLedger(t)
		_, err := l.SaveJornada(ctx, admin, 5, round5(), Replace)
		require.NoError(t, err)
		_, err = l.SetPaymentStatus(ctx, admin, "jornada-5", "Vigar FC", LastPlacePenalty, true)
		require.NoError(t, err)

		j, err := l.SaveJornada(ctx, admin, 5, round5(), Replace)
		require.NoError(t, err)
		assert.Empty(t, j.Pagos)

		stored, err := l.GetJornada(ctx, "jornada-5")
		require.NoError(t, err)
		assert.Empty(t, stored.Pagos)
	})

	t.Run("merge keeps payments", func(t *testing.T) {
		l, _, _, _ := newLedger(t)
		_, err := l.SaveJornada(ctx, admin, 5, round5(), Replace)
		require.NoError(t, err)
		_, err = l.SetPaymentStatus(ctx, admin, "jornada-5", "Vigar FC", LastPlacePenalty, true)
		require.NoError(t, err)
		_, err = l.SetPaymentStatus(ctx, admin, "jornada-5", "Morenazos FC", SecondToLastPlacePenalty, false)
		require.NoError(t, err)

		// Morenazos FC has no entry in the corrected round and scores zero.
		corrected := []ManagerPoints{{ManagerID: "m1", Puntos: 12}, {ManagerID: "m2", Puntos: 30}}
		j, err := l.SaveJornada(ctx, admin, 5, corrected, MergePayments)
		require.NoError(t, err)

		assert.Equal(t, "Morenazos FC", j.Clasificacion[2].Manager)
		require.Contains(t, j.Pagos, "Vigar FC")
		assert.True(t, j.Pagos["Vigar FC"].Pagado)
		require.Contains(t, j.Pagos, "Morenazos FC")
		assert.False(t, j.Pagos["Morenazos FC"].Pagado)
	})
}

func TestSetPayment_PartialUpdates(t *testing.T) {
	ctx := context.Background()
	l, st, rec, clk := newLedger(t)
	_, err := l.SaveJornada(ctx, admin, 5, round5(), Replace)
	require.NoError(t, err)

	p, err := l.SetPaymentStatus(ctx, admin, "jornada-5", "Vigar FC", LastPlacePenalty, true)
	require.NoError(t, err)
	assert.True(t, p.Pagado)
	require.NotNil(t, p.FechaPago)
	assert.Equal(t, clk.Now().UTC(), *p.FechaPago)

	_, err = l.SetPaymentStatus(ctx, admin, "jornada-5", "Morenazos FC", SecondToLastPlacePenalty, false)
	require.NoError(t, err)

	require.NoError(t, l.SetPaymentAmount(ctx, admin, "jornada-5", "Vigar FC", decimal.RequireFromString("4.50")))

	j, err := l.GetJornada(ctx, "jornada-5")
	require.NoError(t, err)
	require.Len(t, j.Pagos, 2)

	vigar := j.Pagos["Vigar FC"]
	assert.True(t, vigar.Pagado)
	assert.NotNil(t, vigar.FechaPago)
	assert.True(t, vigar.Cantidad.Equal(decimal.RequireFromString("4.5")))

	morenazos := j.Pagos["Morenazos FC"]
	assert.False(t, morenazos.Pagado)
	assert.Nil(t, morenazos.FechaPago)
	assert.True(t, morenazos.Cantidad.Equal(SecondToLastPlacePenalty))

	assert.Len(t, j.Clasificacion, 3, "payments must not touch the ranking")

	d, err := st.Get(ctx, store.Jornadas, "jornada-5")
	require.NoError(t, err)
	assert.Contains(t, string(d.Data), `"cantidad":4.5`)
	assert.Len(t, rec.OfType(events.PaymentUpdated), 3)
}

func TestSetPayment_Errors(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newLedger(t)
	_, err := l.SaveJornada(ctx, admin, 5, round5(), Replace)
	require.NoError(t, err)

	_, err = l.SetPaymentStatus(ctx, admin, "jornada-6", "Vigar FC", LastPlacePenalty, true)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	err = l.SetPaymentAmount(ctx, admin, "jornada-6", "Vigar FC", LastPlacePenalty)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = l.SetPaymentStatus(ctx, admin, "jornada-5", "", LastPlacePenalty, true)
	assert.ErrorIs(t, err, ErrMissingManager)

	err = l.SetPaymentAmount(ctx, admin, "jornada-5", "Vigar FC", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = l.SetPaymentStatus(ctx, nil, "jornada-5", "Vigar FC", LastPlacePenalty, true)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	_, err = l.SetPaymentStatus(ctx, admin, "jornada-5", "Ghost FC", LastPlacePenalty, true)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	err = l.SetPaymentAmount(ctx, admin, "jornada-5", "Ghost FC", LastPlacePenalty)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	j, err := l.GetJornada(ctx, "jornada-5")
	require.NoError(t, err)
	assert.NotContains(t, j.Pagos, "Ghost FC")
}

func TestListJornadas_OrderedByNumber(t *testing.T) {
	ctx := context.Background()
	l, _, _, _ := newLedger(t)
	for _, n := range []int{12, 3, 7} {
		_, err := l.SaveJornada(ctx, admin, n, round5(), Replace)
		require.NoError(t, err)
	}

	js, err := l.ListJornadas(ctx)
	require.NoError(t, err)
	require.Len(t, js, 3)
	assert.Equal(t, []int{3, 7, 12}, []int{js[0].Numero, js[1].Numero, js[2].Numero})
}

func TestPenalties(t *testing.T) {
	j := domain.Jornada{Clasificacion: Rank([]ManagerPoints{
		{ManagerID: "m1", Manager: "Vigar FC", Puntos: 10},
		{ManagerID: "m2", Manager: "Baena10", Puntos: 30},
		{ManagerID: "m3", Manager: "Morenazos FC", Puntos: 20},
	})}

	p := Penalties(j)
	require.Len(t, p, 2)
	assert.True(t, p["Vigar FC"].Equal(LastPlacePenalty))
	assert.True(t, p["Morenazos FC"].Equal(SecondToLastPlacePenalty))

	single := Penalties(domain.Jornada{Clasificacion: []domain.Standing{{Manager: "Solo", Posicion: 1}}})
	assert.Len(t, single, 1)
	assert.Empty(t, Penalties(domain.Jornada{}))
}

func TestCalculateTotalCollected(t *testing.T) {
	pagos := map[string]domain.Payment{
		"Vigar FC":     {Pagado: true, Cantidad: decimal.NewFromInt(2)},
		"Baena10":      {Pagado: false, Cantidad: decimal.NewFromInt(5)},
		"Morenazos FC": {Pagado: true, Cantidad: decimal.NewFromInt(1)},
	}
	assert.Equal(t, "3.00", FormatAmount(CalculateTotalCollected(pagos)))
	assert.Equal(t, "0.00", FormatAmount(CalculateTotalCollected(nil)))
}

func TestParseSaveMode(t *testing.T) {
	m, err := ParseSaveMode("")
	require.NoError(t, err)
	assert.Equal(t, Replace, m)

	m, err = ParseSaveMode("merge")
	require.NoError(t, err)
	assert.Equal(t, MergePayments, m)

	_, err = ParseSaveMode("append")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}
