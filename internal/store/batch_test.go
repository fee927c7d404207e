package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alcatamy/Mercato/internal/store"
	"github.com/Alcatamy/Mercato/internal/store/memstore"
)

type countingStore struct {
	*memstore.Store
	txs int
}

func (c *countingStore) RunTx(ctx context.Context, fn func(tx store.Tx) error) error {
	c.txs++
	return c.Store.RunTx(ctx, fn)
}

func TestBatch_ChunksAtMaxBatchSize(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{Store: memstore.New()}

	writes := make([]store.Write, 0, 1201)
	for i := 0; i < 1201; i++ {
		writes = append(writes, store.Write{Collection: store.Players, ID: fmt.Sprintf("p%04d", i), Data: map[string]any{"n": i}})
	}
	require.NoError(t, store.Batch(ctx, s, writes))

	assert.Equal(t, 3, s.txs)
	docs, err := s.Query(ctx, store.Players, store.Query{})
	require.NoError(t, err)
	assert.Len(t, docs, 1201)
}

func TestBatch_FailedChunkKeepsEarlierChunks(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("quota exceeded")
	calls := 0
	ms := memstore.New(memstore.WithFault(func(op, collection string) error {
		calls++
		if calls > store.MaxBatchSize {
			return boom
		}
		return nil
	}))

	writes := make([]store.Write, 0, store.MaxBatchSize+10)
	for i := 0; i < store.MaxBatchSize+10; i++ {
		writes = append(writes, store.Write{Collection: store.Players, Data: map[string]any{"n": i}})
	}
	err := store.Batch(ctx, ms, writes)
	assert.ErrorIs(t, err, boom)

	docs, err := ms.Query(ctx, store.Players, store.Query{})
	require.NoError(t, err)
	assert.Len(t, docs, store.MaxBatchSize)
}
