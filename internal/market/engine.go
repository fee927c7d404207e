// Package market lists players for sale, takes offers and transfers
// ownership when the seller accepts one.
package market

import (
	"context"
	"errors"
	"sort"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/events"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/store"
)

var (
	ErrInvalidPrice  = domain.ErrValidation("INVALID_PRICE", "price must be greater than zero")
	ErrInvalidAmount = domain.ErrValidation("INVALID_AMOUNT", "amount must be greater than zero")
	ErrPlayerBusy    = domain.ErrValidation("PLAYER_BUSY", "player is already on the market, in an auction or in a trade")
	ErrAlreadyListed = domain.ErrValidation("ALREADY_LISTED", "player already has an active listing")
	ErrOwnListing    = domain.ErrValidation("OWN_LISTING", "sellers cannot offer on their own listing")
	ErrStaleListing  = domain.ErrValidation("LISTING_STALE", "player no longer belongs to the seller")
	ErrNotOwner      = domain.ErrAuth("NOT_OWNER", "player belongs to another manager")
	ErrNotSeller     = domain.ErrAuth("NOT_SELLER", "only the seller can do this")
)

// StatusLookup reports a player's derived status.
type StatusLookup interface {
	PlayerStatus(ctx context.Context, playerID string) (domain.PlayerStatus, error)
}

type Engine struct {
	store  store.Store
	status StatusLookup
	events events.Publisher
	clock  clock.Clock
	logger *zap.Logger
}

func New(st store.Store, status StatusLookup, pub events.Publisher, clk clock.Clock, logger *zap.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{store: st, status: status, events: pub, clock: clk, logger: logger.Named("market")}
}

// ListForSale puts one of the session manager's players on the market. The
// listing id is the player id.
func (e *Engine) ListForSale(ctx context.Context, sess *session.Session, playerID string, price int64) (domain.Listing, error) {
	if err := session.Require(sess); err != nil {
		return domain.Listing{}, err
	}
	if price <= 0 {
		return domain.Listing{}, ErrInvalidPrice
	}

	player, err := e.player(ctx, e.store, playerID)
	if err != nil {
		return domain.Listing{}, e.fail("list for sale", err)
	}
	if !player.OwnedBy(sess.ManagerID) {
		return domain.Listing{}, ErrNotOwner
	}
	st, err := e.status.PlayerStatus(ctx, playerID)
	if err != nil {
		return domain.Listing{}, e.fail("list for sale", err)
	}
	if st != domain.StatusNone {
		return domain.Listing{}, ErrPlayerBusy
	}

	listing := domain.Listing{
		ID:         player.ID,
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Position:   player.Position,
		SellerID:   sess.ManagerID,
		SellerName: sess.ManagerName,
		Price:      price,
		CreatedAt:  e.clock.Now().UTC(),
	}

	err = e.store.RunTx(ctx, func(tx store.Tx) error {
		// The cache may lag behind; the transaction has the final word.
		p, err := e.player(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if !p.OwnedBy(sess.ManagerID) {
			return ErrNotOwner
		}
		if _, err := tx.Get(ctx, store.Market, listing.ID); err == nil {
			return ErrAlreadyListed
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.Set(ctx, store.Market, listing.ID, listing)
	})
	if err != nil {
		return domain.Listing{}, e.fail("list for sale", err)
	}

	e.logger.Info("player listed",
		zap.String("player_id", listing.PlayerID),
		zap.String("seller_id", listing.SellerID),
		zap.Int64("price", price))
	e.publish(ctx, events.ListingCreated, listing.ID, sess.ManagerID, listing)
	return listing, nil
}

// MakeOffer appends an offer under a listing.
func (e *Engine) MakeOffer(ctx context.Context, sess *session.Session, listingID string, amount int64) (domain.Offer, error) {
	if err := session.Require(sess); err != nil {
		return domain.Offer{}, err
	}
	if amount <= 0 {
		return domain.Offer{}, ErrInvalidAmount
	}

	offer := domain.Offer{
		BuyerID:   sess.ManagerID,
		BuyerName: sess.ManagerName,
		Amount:    amount,
		CreatedAt: e.clock.Now().UTC(),
	}
	err := e.store.RunTx(ctx, func(tx store.Tx) error {
		l, err := e.listing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if l.SellerID == sess.ManagerID {
			return ErrOwnListing
		}
		offer.ID, err = tx.Create(ctx, store.OffersPath(listingID), offer)
		return err
	})
	if err != nil {
		return domain.Offer{}, e.fail("make offer", err)
	}

	e.logger.Info("offer made",
		zap.String("listing_id", listingID),
		zap.String("buyer_id", offer.BuyerID),
		zap.Int64("amount", amount))
	e.publish(ctx, events.OfferMade, listingID, sess.ManagerID, offer)
	return offer, nil
}

// Sale is the audit record of an accepted offer.
type Sale struct {
	Listing domain.Listing `json:"listing"`
	Offer   domain.Offer   `json:"offer"`
}

// AcceptOffer transfers the player to the buyer and removes the listing
// with all its offers. Either everything is applied or nothing is.
func (e *Engine) AcceptOffer(ctx context.Context, sess *session.Session, listingID, offerID string) (Sale, error) {
	if err := session.Require(sess); err != nil {
		return Sale{}, err
	}

	var sale Sale
	err := e.store.RunTx(ctx, func(tx store.Tx) error {
		offer, err := e.offer(ctx, tx, listingID, offerID)
		if err != nil {
			return err
		}
		l, err := e.listing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if l.SellerID != sess.ManagerID {
			return ErrNotSeller
		}
		p, err := e.player(ctx, tx, l.PlayerID)
		if err != nil {
			return err
		}
		if !p.OwnedBy(l.SellerID) {
			return ErrStaleListing
		}

		err = tx.Update(ctx, store.Players, p.ID,
			store.Set(offer.BuyerID, "ownerId"),
			store.Set(offer.BuyerName, "ownerName"))
		if err != nil {
			return err
		}
		if err := removeListing(ctx, tx, listingID); err != nil {
			return err
		}
		sale = Sale{Listing: l, Offer: offer}
		return nil
	})
	if err != nil {
		return Sale{}, e.fail("accept offer", err)
	}

	e.logger.Info("offer accepted",
		zap.String("listing_id", listingID),
		zap.String("offer_id", offerID),
		zap.String("player_id", sale.Listing.PlayerID),
		zap.String("buyer_id", sale.Offer.BuyerID))
	e.publish(ctx, events.OfferAccepted, listingID, sess.ManagerID, sale)
	return sale, nil
}

// CancelSale removes a listing and its offers.
func (e *Engine) CancelSale(ctx context.Context, sess *session.Session, listingID string) error {
	if err := session.Require(sess); err != nil {
		return err
	}

	err := e.store.RunTx(ctx, func(tx store.Tx) error {
		l, err := e.listing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if l.SellerID != sess.ManagerID {
			return ErrNotSeller
		}
		return removeListing(ctx, tx, listingID)
	})
	if err != nil {
		return e.fail("cancel sale", err)
	}

	e.logger.Info("listing cancelled", zap.String("listing_id", listingID))
	e.publish(ctx, events.ListingCancelled, listingID, sess.ManagerID, nil)
	return nil
}

// Offers returns the offers made against a listing, newest first.
func (e *Engine) Offers(ctx context.Context, listingID string) ([]domain.Offer, error) {
	if _, err := e.listing(ctx, e.store, listingID); err != nil {
		return nil, e.fail("list offers", err)
	}
	docs, err := e.store.Query(ctx, store.OffersPath(listingID), store.Query{})
	if err != nil {
		return nil, e.fail("list offers", err)
	}

	offers := make([]domain.Offer, 0, len(docs))
	for _, d := range docs {
		var o domain.Offer
		if err := d.Decode(&o); err != nil {
			return nil, e.fail("list offers", err)
		}
		offers = append(offers, o)
	}
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].CreatedAt.After(offers[j].CreatedAt)
	})
	return offers, nil
}

func removeListing(ctx context.Context, tx store.Tx, listingID string) error {
	offers, err := tx.List(ctx, store.OffersPath(listingID))
	if err != nil {
		return err
	}
	for _, o := range offers {
		if err := tx.Delete(ctx, store.OffersPath(listingID), o.ID); err != nil {
			return err
		}
	}
	return tx.Delete(ctx, store.Market, listingID)
}

func (e *Engine) player(ctx context.Context, r store.Reader, id string) (domain.Player, error) {
	var p domain.Player
	err := get(ctx, r, store.Players, id, "player", &p)
	return p, err
}

func (e *Engine) listing(ctx context.Context, r store.Reader, id string) (domain.Listing, error) {
	var l domain.Listing
	err := get(ctx, r, store.Market, id, "listing", &l)
	return l, err
}

func (e *Engine) offer(ctx context.Context, r store.Reader, listingID, id string) (domain.Offer, error) {
	var o domain.Offer
	err := get(ctx, r, store.OffersPath(listingID), id, "offer", &o)
	return o, err
}

func get(ctx context.Context, r store.Reader, collection, id, entity string, v any) error {
	d, err := r.Get(ctx, collection, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrNotFound(entity, id)
	}
	if err != nil {
		return err
	}
	return d.Decode(v)
}

// fail logs store failures and wraps them as remote errors. Typed errors
// pass through unchanged.
func (e *Engine) fail(op string, err error) error {
	var ae *domain.AppError
	if errors.As(err, &ae) {
		return err
	}
	e.logger.Error(op+" failed", zap.Error(err))
	return domain.ErrRemote(op+" failed", err)
}

func (e *Engine) publish(ctx context.Context, t events.Type, aggregateID, managerID string, payload any) {
	err := e.events.Publish(ctx, events.Event{
		Type:        t,
		AggregateID: aggregateID,
		ManagerID:   managerID,
		Payload:     payload,
		OccurredAt:  e.clock.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("event not published", zap.String("type", string(t)), zap.Error(err))
	}
}
