// Package pgstore keeps every collection in one PostgreSQL table of JSONB
// documents. A trigger announces each change on a notification channel;
// the store listens on it and pushes fresh collection snapshots to
// subscribers.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Alcatamy/Mercato/internal/store"
)

const notifyChannel = "mercato_documents"

type documentRow struct {
	Collection string         `gorm:"primaryKey"`
	ID         string         `gorm:"primaryKey"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string { return "documents" }

func (r documentRow) document() store.Document {
	return store.Document{ID: r.ID, Data: json.RawMessage(r.Data), UpdatedAt: r.UpdatedAt}
}

type Options struct {
	DSN    string
	Logger *zap.Logger
	Clock  clock.Clock
}

type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	clock  clock.Clock
	feed   *changeFeed
	cancel context.CancelFunc
}

// Open connects to PostgreSQL and starts the change listener. Migrations are
// applied separately with Migrate.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:     db,
		logger: opts.Logger.Named("pgstore"),
		clock:  opts.Clock,
		cancel: cancel,
	}
	s.feed = newChangeFeed(s, s.logger)
	go s.feed.dispatch(runCtx)
	go s.feed.listen(runCtx, opts.DSN)

	// Changes made before the listener is up would never be announced.
	select {
	case <-s.feed.ready:
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("wait for change listener: %w", ctx.Err())
	}
	return s, nil
}

func (s *Store) ops(ctx context.Context) docOps {
	return docOps{db: s.db.WithContext(ctx), clock: s.clock}
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return s.ops(ctx).get(collection, id)
}

func (s *Store) Create(ctx context.Context, collection string, data any) (string, error) {
	return s.ops(ctx).create(collection, data)
}

func (s *Store) Set(ctx context.Context, collection, id string, data any) error {
	return s.ops(ctx).set(collection, id, data)
}

func (s *Store) Update(ctx context.Context, collection, id string, updates ...store.FieldUpdate) error {
	return s.RunTx(ctx, func(tx store.Tx) error { return tx.Update(ctx, collection, id, updates...) })
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.ops(ctx).delete(collection, id)
}

func (s *Store) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	db := s.db.WithContext(ctx).Where("collection = ?", collection)

	for _, f := range q.Filters {
		switch f.Op {
		case store.OpEq:
			raw, err := json.Marshal(map[string]any{f.Field: f.Value})
			if err != nil {
				return nil, fmt.Errorf("encode filter: %w", err)
			}
			db = db.Where("data @> ?::jsonb", string(raw))
		case store.OpGte, store.OpLte:
			if isNumber(f.Value) {
				db = db.Where(fmt.Sprintf("(data->>?)::numeric %s ?", f.Op), f.Field, f.Value)
			} else {
				db = db.Where(fmt.Sprintf("data->>? %s ?", f.Op), f.Field, f.Value)
			}
		case store.OpPrefix:
			db = db.Where("starts_with(data->>?, ?)", f.Field, fmt.Sprint(f.Value))
		default:
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		db = db.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "data -> ? " + dir + " NULLS LAST",
			Vars:               []any{q.OrderBy},
			WithoutParentheses: true,
		}})
	}
	db = db.Order("id")
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []documentRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs := make([]store.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	return docs, nil
}

func (s *Store) Subscribe(ctx context.Context, collection string) (*store.Subscription, error) {
	return s.feed.subscribe(ctx, collection)
}

// RunTx runs fn in a database transaction. Reads made through the
// transaction lock the rows they return until commit.
func (s *Store) RunTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&pgTx{ops: docOps{db: gtx, clock: s.clock, lock: true}})
	})
}

func (s *Store) Close() error {
	s.cancel()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	}
	return false
}

type docOps struct {
	db    *gorm.DB
	clock clock.Clock
	lock  bool
}

func (o docOps) get(collection, id string) (store.Document, error) {
	db := o.db
	if o.lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row documentRow
	err := db.Where("collection = ? AND id = ?", collection, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return row.document(), nil
}

func (o docOps) list(collection string) ([]store.Document, error) {
	var rows []documentRow
	if err := o.db.Where("collection = ?", collection).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	docs := make([]store.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	return docs, nil
}

func (o docOps) create(collection string, data any) (string, error) {
	body, err := store.Encode(data)
	if err != nil {
		return "", err
	}
	now := o.clock.Now().UTC()
	row := documentRow{Collection: collection, ID: uuid.NewString(), Data: datatypes.JSON(body), CreatedAt: now, UpdatedAt: now}
	if err := o.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("create in %s: %w", collection, err)
	}
	return row.ID, nil
}

func (o docOps) set(collection, id string, data any) error {
	body, err := store.Encode(data)
	if err != nil {
		return err
	}
	now := o.clock.Now().UTC()
	row := documentRow{Collection: collection, ID: id, Data: datatypes.JSON(body), CreatedAt: now, UpdatedAt: now}
	err = o.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (o docOps) update(collection, id string, updates []store.FieldUpdate) error {
	current, err := o.get(collection, id)
	if err != nil {
		return err
	}
	body, err := store.ApplyUpdates(current.Data, updates)
	if err != nil {
		return err
	}
	err = o.db.Model(&documentRow{}).
		Where("collection = ? AND id = ?", collection, id).
		Updates(map[string]any{"data": datatypes.JSON(body), "updated_at": o.clock.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (o docOps) delete(collection, id string) error {
	err := o.db.Where("collection = ? AND id = ?", collection, id).Delete(&documentRow{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

type pgTx struct {
	ops docOps
}

func (t *pgTx) Get(_ context.Context, collection, id string) (store.Document, error) {
	return t.ops.get(collection, id)
}

func (t *pgTx) List(_ context.Context, collection string) ([]store.Document, error) {
	return t.ops.list(collection)
}

func (t *pgTx) Create(_ context.Context, collection string, data any) (string, error) {
	return t.ops.create(collection, data)
}

func (t *pgTx) Set(_ context.Context, collection, id string, data any) error {
	return t.ops.set(collection, id, data)
}

func (t *pgTx) Update(_ context.Context, collection, id string, updates ...store.FieldUpdate) error {
	return t.ops.update(collection, id, updates)
}

func (t *pgTx) Delete(_ context.Context, collection, id string) error {
	return t.ops.delete(collection, id)
}
