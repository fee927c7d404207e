package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/store"
)

type feedMsg interface{ isFeedMsg() }

type subscribeMsg struct {
	ctx        context.Context
	collection string
	reply      chan *store.Subscription
}

type changedMsg struct{ collection string }

type unsubscribeMsg struct {
	collection string
	sub        *store.Subscription
}

type resyncMsg struct{}

func (subscribeMsg) isFeedMsg()   {}
func (changedMsg) isFeedMsg()     {}
func (unsubscribeMsg) isFeedMsg() {}
func (resyncMsg) isFeedMsg()      {}

// changeFeed turns database notifications into collection snapshots. All
// snapshot reads happen on the dispatch goroutine, one at a time, so the
// snapshots of a collection reach subscribers in the order they were read.
type changeFeed struct {
	s      *Store
	logger *zap.Logger
	inbox  chan feedMsg
	subs   map[string]map[*store.Subscription]struct{}
	ready  chan struct{} // closed once the first LISTEN is in place
}

func newChangeFeed(s *Store, logger *zap.Logger) *changeFeed {
	return &changeFeed{
		s:      s,
		logger: logger,
		inbox:  make(chan feedMsg, 256),
		subs:   make(map[string]map[*store.Subscription]struct{}),
		ready:  make(chan struct{}),
	}
}

func (f *changeFeed) subscribe(ctx context.Context, collection string) (*store.Subscription, error) {
	reply := make(chan *store.Subscription, 1)
	select {
	case f.inbox <- subscribeMsg{ctx: ctx, collection: collection, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case sub := <-reply:
		return sub, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *changeFeed) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, subs := range f.subs {
				for sub := range subs {
					sub.Close()
				}
			}
			return

		case m := <-f.inbox:
			switch msg := m.(type) {
			case subscribeMsg:
				var sub *store.Subscription
				sub = store.NewSubscription(msg.ctx, msg.collection, func() {
					select {
					case f.inbox <- unsubscribeMsg{collection: msg.collection, sub: sub}:
					case <-ctx.Done():
					}
				})
				if f.subs[msg.collection] == nil {
					f.subs[msg.collection] = make(map[*store.Subscription]struct{})
				}
				f.subs[msg.collection][sub] = struct{}{}
				f.publish(ctx, msg.collection, sub)
				msg.reply <- sub

			case unsubscribeMsg:
				delete(f.subs[msg.collection], msg.sub)
				if len(f.subs[msg.collection]) == 0 {
					delete(f.subs, msg.collection)
				}

			case changedMsg:
				if len(f.subs[msg.collection]) > 0 {
					f.publish(ctx, msg.collection, nil)
				}

			case resyncMsg:
				for collection := range f.subs {
					f.publish(ctx, collection, nil)
				}
			}
		}
	}
}

// publish reads the collection and hands the snapshot to one subscriber, or
// to all of them when only is nil.
func (f *changeFeed) publish(ctx context.Context, collection string, only *store.Subscription) {
	docs, err := f.s.Query(ctx, collection, store.Query{})
	if err != nil {
		f.logger.Error("snapshot read failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	snap := store.Snapshot{Collection: collection, Docs: docs}
	if only != nil {
		only.Publish(snap)
		return
	}
	for sub := range f.subs[collection] {
		sub.Publish(snap)
	}
}

// listen holds a dedicated connection in LISTEN mode and reconnects with
// backoff. After a reconnect every subscribed collection is re-read, since
// notifications sent while disconnected are lost.
func (f *changeFeed) listen(ctx context.Context, dsn string) {
	backoff := 500 * time.Millisecond
	first := true

	for ctx.Err() == nil {
		err := f.listenOnce(ctx, dsn, func() {
			backoff = 500 * time.Millisecond
			if first {
				close(f.ready)
			} else {
				f.send(ctx, resyncMsg{})
			}
			first = false
		})
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("change listener disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (f *changeFeed) listenOnce(ctx context.Context, dsn string, onReady func()) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	f.logger.Info("listening for document changes", zap.String("channel", notifyChannel))
	onReady()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		f.send(ctx, changedMsg{collection: n.Payload})
	}
}

func (f *changeFeed) send(ctx context.Context, m feedMsg) {
	select {
	case f.inbox <- m:
	case <-ctx.Done():
	}
}
