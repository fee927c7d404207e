package store

import (
	"context"
	"fmt"
)

// MaxBatchSize is the largest number of writes committed in one transaction
// by Batch.
const MaxBatchSize = 500

type Write struct {
	Collection string
	ID         string
	Data       any
	Delete     bool
}

// Batch commits writes in chunks of MaxBatchSize. Chunks are independent: a
// failure leaves earlier chunks applied. It is meant for seeding, never for
// league operations.
func Batch(ctx context.Context, s Store, writes []Write) error {
	for start := 0; start < len(writes); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(writes))
		chunk := writes[start:end]

		err := s.RunTx(ctx, func(tx Tx) error {
			for _, w := range chunk {
				var err error
				switch {
				case w.Delete:
					err = tx.Delete(ctx, w.Collection, w.ID)
				case w.ID == "":
					_, err = tx.Create(ctx, w.Collection, w.Data)
				default:
					err = tx.Set(ctx, w.Collection, w.ID, w.Data)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}
