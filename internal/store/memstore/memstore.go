// Package memstore is an in-process store.Store. Every committed write pushes
// a fresh snapshot to the subscribers of the collections it touched.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/Alcatamy/Mercato/internal/store"
)

// Fault lets tests fail a write. It is called with the operation name
// ("create", "set", "update", "delete") and the collection.
type Fault func(op, collection string) error

type Option func(*Store)

func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

func WithFault(f Fault) Option { return func(s *Store) { s.fault = f } }

type Store struct {
	mu     sync.Mutex
	colls  map[string]map[string]store.Document
	subs   map[string]map[*store.Subscription]struct{}
	clock  clock.Clock
	fault  Fault
	closed bool
}

var errClosed = errors.New("memstore: closed")

func New(opts ...Option) *Store {
	s := &Store{
		colls: make(map[string]map[string]store.Document),
		subs:  make(map[string]map[*store.Subscription]struct{}),
		clock: clock.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetFault replaces the fault hook; nil clears it.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Document{}, errClosed
	}
	d, ok := s.colls[collection][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) Create(ctx context.Context, collection string, data any) (string, error) {
	var id string
	err := s.RunTx(ctx, func(tx store.Tx) error {
		var err error
		id, err = tx.Create(ctx, collection, data)
		return err
	})
	return id, err
}

func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	return s.RunTx(ctx, func(tx store.Tx) error { return tx.Set(ctx, collection, id, data) })
}

func (s *Store) Update(ctx context.Context, collection, id string, updates ...store.FieldUpdate) error {
	return s.RunTx(ctx, func(tx store.Tx) error { return tx.Update(ctx, collection, id, updates...) })
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.RunTx(ctx, func(tx store.Tx) error { return tx.Delete(ctx, collection, id) })
}

func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}
	return store.Apply(s.snapshotLocked(collection), q), nil
}

func (s *Store) Subscribe(ctx context.Context, collection string) (*store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}

	var sub *store.Subscription
	sub = store.NewSubscription(ctx, collection, func() {
		s.mu.Lock()
		delete(s.subs[collection], sub)
		s.mu.Unlock()
	})
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[*store.Subscription]struct{})
	}
	s.subs[collection][sub] = struct{}{}
	sub.Publish(store.Snapshot{Collection: collection, Docs: s.snapshotLocked(collection)})
	return sub, nil
}

// RunTx holds the store lock while fn runs; fn must only use tx.
func (s *Store) RunTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	tx := &memTx{s: s, staged: make(map[string]map[string]*store.Document)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for coll, docs := range tx.staged {
		if s.colls[coll] == nil {
			s.colls[coll] = make(map[string]store.Document)
		}
		for id, d := range docs {
			if d == nil {
				delete(s.colls[coll], id)
				continue
			}
			s.colls[coll][id] = *d
		}
	}
	for coll := range tx.staged {
		s.publishLocked(coll)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, subs := range s.subs {
		for sub := range subs {
			sub.Close()
		}
	}
	return nil
}

func (s *Store) publishLocked(collection string) {
	subs := s.subs[collection]
	if len(subs) == 0 {
		return
	}
	snap := store.Snapshot{Collection: collection, Docs: s.snapshotLocked(collection)}
	for sub := range subs {
		sub.Publish(snap)
	}
}

func (s *Store) snapshotLocked(collection string) []store.Document {
	docs := make([]store.Document, 0, len(s.colls[collection]))
	for _, d := range s.colls[collection] {
		docs = append(docs, d)
	}
	slices.SortFunc(docs, func(a, b store.Document) int { return strings.Compare(a.ID, b.ID) })
	return docs
}

type memTx struct {
	s      *Store
	staged map[string]map[string]*store.Document
}

func (t *memTx) lookup(collection, id string) (store.Document, bool) {
	if docs, ok := t.staged[collection]; ok {
		if d, ok := docs[id]; ok {
			if d == nil {
				return store.Document{}, false
			}
			return *d, true
		}
	}
	d, ok := t.s.colls[collection][id]
	return d, ok
}

func (t *memTx) stage(collection, id string, d *store.Document) {
	if t.staged[collection] == nil {
		t.staged[collection] = make(map[string]*store.Document)
	}
	t.staged[collection][id] = d
}

func (t *memTx) check(op, collection string) error {
	if t.s.fault == nil {
		return nil
	}
	return t.s.fault(op, collection)
}

func (t *memTx) Get(_ context.Context, collection, id string) (store.Document, error) {
	d, ok := t.lookup(collection, id)
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (t *memTx) List(_ context.Context, collection string) ([]store.Document, error) {
	seen := map[string]bool{}
	var docs []store.Document
	for id, d := range t.staged[collection] {
		seen[id] = true
		if d != nil {
			docs = append(docs, *d)
		}
	}
	for id, d := range t.s.colls[collection] {
		if !seen[id] {
			docs = append(docs, d)
		}
	}
	slices.SortFunc(docs, func(a, b store.Document) int { return strings.Compare(a.ID, b.ID) })
	return docs, nil
}

func (t *memTx) Create(ctx context.Context, collection string, data any) (string, error) {
	id := uuid.NewString()
	if err := t.write("create", collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (t *memTx) Set(_ context.Context, collection, id string, data any) error {
	return t.write("set", collection, id, data)
}

func (t *memTx) write(op, collection, id string, data any) error {
	if err := t.check(op, collection); err != nil {
		return err
	}
	body, err := store.Encode(data)
	if err != nil {
		return err
	}
	t.stage(collection, id, &store.Document{ID: id, Data: body, UpdatedAt: t.s.clock.Now().UTC()})
	return nil
}

func (t *memTx) Update(_ context.Context, collection, id string, updates ...store.FieldUpdate) error {
	if err := t.check("update", collection); err != nil {
		return err
	}
	d, ok := t.lookup(collection, id)
	if !ok {
		return store.ErrNotFound
	}
	body, err := store.ApplyUpdates(d.Data, updates)
	if err != nil {
		return err
	}
	t.stage(collection, id, &store.Document{ID: id, Data: json.RawMessage(body), UpdatedAt: t.s.clock.Now().UTC()})
	return nil
}

func (t *memTx) Delete(_ context.Context, collection, id string) error {
	if err := t.check("delete", collection); err != nil {
		return err
	}
	t.stage(collection, id, nil)
	return nil
}
