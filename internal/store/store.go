package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	Managers = "managers"
	Players  = "players"
	Market   = "market"
	Auctions = "auctions"
	Trades   = "trades"
	Jornadas = "jornadas"
)

// OffersPath is the sub-collection holding the offers made against a listing.
func OffersPath(listingID string) string {
	return Market + "/" + listingID + "/offers"
}

var ErrNotFound = errors.New("document not found")

type Document struct {
	ID        string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Decode unmarshals the document body into v and then sets v's "id" field
// to the document id.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.ID, err)
	}
	idJSON, _ := json.Marshal(map[string]string{"id": d.ID})
	return json.Unmarshal(idJSON, v)
}

type FieldUpdate struct {
	Path  []string
	Value any
}

// Set builds a FieldUpdate for a nested path.
func Set(value any, path ...string) FieldUpdate {
	return FieldUpdate{Path: path, Value: value}
}

type Op string

const (
	OpEq     Op = "=="
	OpGte    Op = ">="
	OpLte    Op = "<="
	OpPrefix Op = "prefix"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Snapshot is the complete membership of a collection after a change.
type Snapshot struct {
	Collection string
	Docs       []Document
}

// Reader and Writer are the operations shared by stores and transactions.
type Reader interface {
	Get(ctx context.Context, collection, id string) (Document, error)
}

type Writer interface {
	Create(ctx context.Context, collection string, data any) (string, error)
	Set(ctx context.Context, collection, id string, data any) error
	Update(ctx context.Context, collection, id string, updates ...FieldUpdate) error
	Delete(ctx context.Context, collection, id string) error
}

// Tx is a unit of work; its writes become visible together when the
// transaction function returns nil.
type Tx interface {
	Reader
	Writer
	// List returns every document of a collection, used for cascading deletes.
	List(ctx context.Context, collection string) ([]Document, error)
}

type Store interface {
	Reader
	Writer
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Subscribe(ctx context.Context, collection string) (*Subscription, error)
	RunTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Encode turns a record into the JSON object stored for it. The "id" key is
// dropped because the id lives outside the body.
func Encode(data any) (json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("document must be an object: %w", err)
	}
	delete(m, "id")
	return json.Marshal(m)
}
