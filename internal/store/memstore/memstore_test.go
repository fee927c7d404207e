package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alcatamy/Mercato/internal/store"
)

type player struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	OwnerID *string `json:"ownerId"`
	Value   int64   `json:"value"`
}

func recvSnapshot(t *testing.T, sub *store.Subscription, within time.Duration) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return store.Snapshot{} // unreachable
	}
}

func ids(docs []store.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, store.Players, player{Name: "Pedri", Value: 75})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	d, err := s.Get(ctx, store.Players, id)
	require.NoError(t, err)
	var p player
	require.NoError(t, d.Decode(&p))
	assert.Equal(t, player{ID: id, Name: "Pedri", Value: 75}, p)

	require.NoError(t, s.Update(ctx, store.Players, id, store.Set("vigar-fc", "ownerId")))
	d, _ = s.Get(ctx, store.Players, id)
	require.NoError(t, d.Decode(&p))
	require.NotNil(t, p.OwnerID)
	assert.Equal(t, "vigar-fc", *p.OwnerID)
	assert.Equal(t, "Pedri", p.Name)

	require.NoError(t, s.Delete(ctx, store.Players, id))
	require.NoError(t, s.Delete(ctx, store.Players, id))
	_, err = s.Get(ctx, store.Players, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, store.Players, "missing", store.Set(1, "value"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscribe_InitialSnapshotThenOnePerWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()
	require.NoError(t, s.Set(ctx, store.Market, "b", map[string]any{"price": 2}))

	sub, err := s.Subscribe(ctx, store.Market)
	require.NoError(t, err)

	first := recvSnapshot(t, sub, time.Second)
	assert.Equal(t, store.Market, first.Collection)
	assert.Equal(t, []string{"b"}, ids(first.Docs))

	require.NoError(t, s.Set(ctx, store.Market, "a", map[string]any{"price": 1}))
	require.NoError(t, s.Delete(ctx, store.Market, "b"))
	require.NoError(t, s.Set(ctx, store.Market, "c", map[string]any{"price": 3}))

	assert.Equal(t, []string{"a", "b"}, ids(recvSnapshot(t, sub, time.Second).Docs))
	assert.Equal(t, []string{"a"}, ids(recvSnapshot(t, sub, time.Second).Docs))
	assert.Equal(t, []string{"a", "c"}, ids(recvSnapshot(t, sub, time.Second).Docs))
}

func TestSubscribe_OtherCollectionsDoNotNotify(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()

	sub, err := s.Subscribe(ctx, store.Trades)
	require.NoError(t, err)
	recvSnapshot(t, sub, time.Second)

	require.NoError(t, s.Set(ctx, store.Players, "p1", map[string]any{"name": "Gavi"}))

	select {
	case snap := <-sub.C():
		t.Fatalf("unexpected snapshot: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunTx_FailureAppliesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, store.Players, "p1", player{Name: "Koke"}))
	require.NoError(t, s.Set(ctx, store.Market, "p1", map[string]any{"playerId": "p1"}))

	boom := errors.New("boom")
	s.SetFault(func(op, collection string) error {
		if op == "delete" && collection == store.Market {
			return boom
		}
		return nil
	})

	err := s.RunTx(ctx, func(tx store.Tx) error {
		if err := tx.Update(ctx, store.Players, "p1", store.Set("baena10", "ownerId")); err != nil {
			return err
		}
		return tx.Delete(ctx, store.Market, "p1")
	})
	assert.ErrorIs(t, err, boom)

	d, err := s.Get(ctx, store.Players, "p1")
	require.NoError(t, err)
	var p player
	require.NoError(t, d.Decode(&p))
	assert.Nil(t, p.OwnerID)

	_, err = s.Get(ctx, store.Market, "p1")
	assert.NoError(t, err)
}

func TestRunTx_ReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub := store.OffersPath("p1")

	err := s.RunTx(ctx, func(tx store.Tx) error {
		id, err := tx.Create(ctx, sub, map[string]any{"amount": 10})
		if err != nil {
			return err
		}
		if _, err := tx.Get(ctx, sub, id); err != nil {
			return err
		}
		docs, err := tx.List(ctx, sub)
		if err != nil {
			return err
		}
		if len(docs) != 1 {
			return errors.New("staged create not listed")
		}
		return tx.Delete(ctx, sub, id)
	})
	require.NoError(t, err)

	docs, err := s.Query(ctx, sub, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestClose_RejectsCalls(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), store.Players, "x")
	assert.Error(t, err)
	_, err = s.Subscribe(context.Background(), store.Players)
	assert.Error(t, err)
}
