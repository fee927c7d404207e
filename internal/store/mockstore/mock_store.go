package mockstore

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Alcatamy/Mercato/internal/store"
)

type Store struct {
	mock.Mock
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	args := s.Called(ctx, collection, id)
	return args.Get(0).(store.Document), args.Error(1)
}

func (s *Store) Create(ctx context.Context, collection string, data any) (string, error) {
	args := s.Called(ctx, collection, data)
	return args.String(0), args.Error(1)
}

func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	args := s.Called(ctx, collection, id, data)
	return args.Error(0)
}

func (s *Store) Update(ctx context.Context, collection, id string, updates ...store.FieldUpdate) error {
	args := s.Called(ctx, collection, id, updates)
	return args.Error(0)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	args := s.Called(ctx, collection, id)
	return args.Error(0)
}

func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	args := s.Called(ctx, collection, q)

	var r []store.Document
	if args.Get(0) != nil {
		r = args.Get(0).([]store.Document)
	}
	return r, args.Error(1)
}

func (s *Store) Subscribe(ctx context.Context, collection string) (*store.Subscription, error) {
	args := s.Called(ctx, collection)

	var sub *store.Subscription
	if args.Get(0) != nil {
		sub = args.Get(0).(*store.Subscription)
	}
	return sub, args.Error(1)
}

// RunTx returns the configured error without calling fn.
func (s *Store) RunTx(ctx context.Context, fn func(tx store.Tx) error) error {
	args := s.Called(ctx)
	return args.Error(0)
}

func (s *Store) Close() error {
	args := s.Called()
	return args.Error(0)
}
