// Package cache mirrors the league collections in memory. One subscription
// per collection feeds a single actor goroutine that replaces the mirrored
// collection, re-derives the dependent views and broadcasts a snapshot to
// every joined client.
package cache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/store"
)

// Collections are the mirrored collections, in subscription order.
var Collections = []string{store.Managers, store.Players, store.Market, store.Auctions, store.Trades}

type Msg interface{ isCacheMsg() }

// Join registers a client. Outbox must be buffered: the current snapshot is
// handed over without waiting, and an outbox that cannot take it is closed.
type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isCacheMsg() {}

type Leave struct{ ClientID string }

func (Leave) isCacheMsg() {}

type Shutdown struct{}

func (Shutdown) isCacheMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isCacheMsg() {}

type collectionChanged struct {
	Snapshot store.Snapshot
}

func (collectionChanged) isCacheMsg() {}

// State is never mutated after it is published; each change builds a new one.
type State struct {
	Managers []domain.Manager     `json:"managers"`
	Players  []domain.Player      `json:"players"`
	Market   []domain.Listing     `json:"market"`
	Auctions []domain.Auction     `json:"auctions"`
	Trades   []domain.Trade       `json:"trades"`
	Squads   map[string]SquadView `json:"squads"`
	Status   StatusIndex          `json:"status"`
}

type Snapshot struct {
	Version int    `json:"version"`
	Changed string `json:"changed,omitempty"`
	State   State  `json:"state"`
}

type View struct {
	Version    int
	NumClients int
	State      State
}

type Cache struct {
	inbox   chan Msg
	state   State
	version int
	clients map[string]chan Snapshot
	logger  *zap.Logger
	pumps   *errgroup.Group
	loaded  map[string]bool
	ready   chan struct{}
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// Start opens one subscription per mirrored collection and starts the actor.
func Start(parent context.Context, st store.Store, logger *zap.Logger) (*Cache, error) {
	ctx, cancel := context.WithCancel(parent)
	c := &Cache{
		inbox: make(chan Msg, 64),
		state: State{
			Squads: map[string]SquadView{},
			Status: StatusIndex{},
		},
		clients: make(map[string]chan Snapshot),
		logger:  logger.Named("cache"),
		loaded:  make(map[string]bool, len(Collections)),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	subs := make([]*store.Subscription, 0, len(Collections))
	for _, coll := range Collections {
		sub, err := st.Subscribe(ctx, coll)
		if err != nil {
			cancel()
			for _, s := range subs {
				s.Close()
			}
			c.logger.Error("subscribe failed", zap.String("collection", coll), zap.Error(err))
			return nil, domain.ErrRemote("could not subscribe to "+coll, err)
		}
		subs = append(subs, sub)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error { return c.pump(gctx, sub) })
	}
	c.pumps = g

	go c.loop()
	return c, nil
}

// pump forwards one collection's snapshots to the actor in arrival order.
// It waits for each hand-off, so a collection is never processed out of order.
func (c *Cache) pump(ctx context.Context, sub *store.Subscription) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("subscription to %s ended", sub.Collection)
			}
			select {
			case c.inbox <- collectionChanged{Snapshot: snap}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Wait blocks until the pumps exit and reports why the first one stopped.
func (c *Cache) Wait() error {
	return c.pumps.Wait()
}

func (c *Cache) loop() {
	defer close(c.stopped)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				select {
				case msg.Outbox <- Snapshot{Version: c.version, State: c.state}:
					c.clients[msg.ClientID] = msg.Outbox
				default:
					close(msg.Outbox)
				}

			case Leave:
				if ch, ok := c.clients[msg.ClientID]; ok {
					close(ch)
					delete(c.clients, msg.ClientID)
				}

			case collectionChanged:
				next, err := c.apply(msg.Snapshot)
				if err != nil {
					c.logger.Error("dropping snapshot", zap.String("collection", msg.Snapshot.Collection), zap.Error(err))
					break
				}
				c.state = next
				c.version++
				c.markLoaded(msg.Snapshot.Collection)
				c.broadcast(Snapshot{Version: c.version, Changed: msg.Snapshot.Collection, State: c.state})

			case GetState:
				msg.Reply <- View{
					Version:    c.version,
					NumClients: len(c.clients),
					State:      c.state,
				}

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

// apply replaces one mirrored collection and re-derives what depends on it.
func (c *Cache) apply(snap store.Snapshot) (State, error) {
	next := c.state
	var err error
	switch snap.Collection {
	case store.Managers:
		next.Managers, err = decodeAll[domain.Manager](snap.Docs)
	case store.Players:
		next.Players, err = decodeAll[domain.Player](snap.Docs)
	case store.Market:
		var listings []domain.Listing
		listings, err = decodeAll[domain.Listing](snap.Docs)
		next.Market = BuildMarket(listings)
	case store.Auctions:
		next.Auctions, err = decodeAll[domain.Auction](snap.Docs)
	case store.Trades:
		next.Trades, err = decodeAll[domain.Trade](snap.Docs)
	default:
		return c.state, fmt.Errorf("unexpected collection %q", snap.Collection)
	}
	if err != nil {
		return c.state, err
	}

	switch snap.Collection {
	case store.Market, store.Auctions, store.Trades:
		next.Status = BuildStatusIndex(next.Market, next.Auctions, next.Trades)
	}
	next.Squads = BuildSquads(next.Managers, next.Players, next.Status)
	return next, nil
}

func (c *Cache) markLoaded(collection string) {
	if c.loaded[collection] {
		return
	}
	c.loaded[collection] = true
	if len(c.loaded) == len(Collections) {
		close(c.ready)
	}
}

// Ready is closed once every mirrored collection has been loaded.
func (c *Cache) Ready() <-chan struct{} { return c.ready }

func decodeAll[T any](docs []store.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Cache) shutdown() {
	// Cancel first so clients can tell a shutdown from being dropped.
	c.cancel()
	for id, ch := range c.clients {
		close(ch) // Tell client no more snapshots
		delete(c.clients, id)
	}
}

func (c *Cache) broadcast(snap Snapshot) {
	for id, ch := range c.clients {
		select {
		case ch <- snap:
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(c.clients, id)
		}
	}
}

// Done is closed when the cache starts shutting down.
func (c *Cache) Done() <-chan struct{} { return c.ctx.Done() }

// Inbox exposes the actor so the websocket layer can join and leave.
func (c *Cache) Inbox() chan<- Msg { return c.inbox }

// Close stops the actor and the pumps.
func (c *Cache) Close() {
	c.cancel()
	<-c.stopped
}

var errStopped = errors.New("cache stopped")

func (c *Cache) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case c.inbox <- GetState{Reply: reply}:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.stopped:
		return View{}, errStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.stopped:
		return View{}, errStopped
	}
}

func (c *Cache) PlayerStatus(ctx context.Context, playerID string) (domain.PlayerStatus, error) {
	v, err := c.State(ctx)
	if err != nil {
		return "", err
	}
	return v.State.Status.Of(playerID), nil
}

func (c *Cache) Player(ctx context.Context, id string) (domain.Player, error) {
	v, err := c.State(ctx)
	if err != nil {
		return domain.Player{}, err
	}
	for _, p := range v.State.Players {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Player{}, domain.ErrNotFound("player", id)
}

func (c *Cache) Manager(ctx context.Context, id string) (domain.Manager, error) {
	v, err := c.State(ctx)
	if err != nil {
		return domain.Manager{}, err
	}
	for _, m := range v.State.Managers {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Manager{}, domain.ErrNotFound("manager", id)
}

func (c *Cache) Managers(ctx context.Context) ([]domain.Manager, error) {
	v, err := c.State(ctx)
	if err != nil {
		return nil, err
	}
	return v.State.Managers, nil
}

func (c *Cache) Listing(ctx context.Context, id string) (domain.Listing, error) {
	v, err := c.State(ctx)
	if err != nil {
		return domain.Listing{}, err
	}
	for _, l := range v.State.Market {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Listing{}, domain.ErrNotFound("listing", id)
}

func (c *Cache) Squad(ctx context.Context, managerID string) (SquadView, error) {
	v, err := c.State(ctx)
	if err != nil {
		return SquadView{}, err
	}
	sq, ok := v.State.Squads[managerID]
	if !ok {
		return SquadView{}, domain.ErrNotFound("manager", managerID)
	}
	return sq, nil
}

func (c *Cache) Market(ctx context.Context) ([]domain.Listing, error) {
	v, err := c.State(ctx)
	if err != nil {
		return nil, err
	}
	return v.State.Market, nil
}
