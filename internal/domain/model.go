package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Position string

const (
	PositionPOR Position = "POR"
	PositionDEF Position = "DEF"
	PositionMED Position = "MED"
	PositionDEL Position = "DEL"
)

var Positions = []Position{PositionPOR, PositionDEF, PositionMED, PositionDEL}

func ParsePosition(s string) (Position, bool) {
	for _, p := range Positions {
		if string(p) == strings.ToUpper(strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// Rank orders positions goalkeeper first. Unknown positions sort last.
func (p Position) Rank() int {
	for i, q := range Positions {
		if p == q {
			return i
		}
	}
	return len(Positions)
}

type Manager struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// CatalogSource tags players imported from the public player catalog.
const CatalogSource = "FutbolFantasy.com"

type Player struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Position      Position  `json:"position"`
	Team          string    `json:"team,omitempty"`
	Value         int64     `json:"value"`
	OwnerID       *string   `json:"ownerId"`
	OwnerName     string    `json:"ownerName,omitempty"`
	Source        string    `json:"source,omitempty"`
	IsCustom      bool      `json:"isCustom,omitempty"`
	CatalogID     string    `json:"originalId,omitempty"`
	NameLowercase string    `json:"name_lowercase,omitempty"`
	TeamLowercase string    `json:"team_lowercase,omitempty"`
	AddedAt       time.Time `json:"addedAt,omitzero"`
}

func (p Player) OwnedBy(managerID string) bool {
	return p.OwnerID != nil && *p.OwnerID == managerID
}

type Listing struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Position   Position  `json:"position"`
	SellerID   string    `json:"sellerId"`
	SellerName string    `json:"sellerName"`
	Price      int64     `json:"price"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Offer struct {
	ID        string    `json:"id"`
	BuyerID   string    `json:"buyerId"`
	BuyerName string    `json:"buyerName"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Auction and Trade are only mirrored; nothing in the league creates them yet.
type Auction struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName,omitempty"`
	SellerID   string    `json:"sellerId,omitempty"`
	CurrentBid int64     `json:"currentBid,omitempty"`
	EndsAt     time.Time `json:"endsAt,omitzero"`
}

type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeAccepted TradeStatus = "accepted"
	TradeRejected TradeStatus = "rejected"
)

type Trade struct {
	ID              string      `json:"id"`
	ProposerID      string      `json:"proposerId,omitempty"`
	ReceiverID      string      `json:"receiverId,omitempty"`
	ProposerPlayers []string    `json:"proposerPlayers"`
	ReceiverPlayers []string    `json:"receiverPlayers"`
	Status          TradeStatus `json:"status"`
}

// Players lists the players on both sides of the trade.
func (t Trade) Players() []string {
	out := make([]string, 0, len(t.ProposerPlayers)+len(t.ReceiverPlayers))
	out = append(out, t.ProposerPlayers...)
	return append(out, t.ReceiverPlayers...)
}

type PlayerStatus string

const (
	StatusNone    PlayerStatus = "none"
	StatusMarket  PlayerStatus = "market"
	StatusAuction PlayerStatus = "auction"
	StatusTrade   PlayerStatus = "trade"
)

type Standing struct {
	Manager   string  `json:"manager"`
	ManagerID string  `json:"managerId"`
	Puntos    float64 `json:"puntos"`
	Posicion  int     `json:"posicion"`
}

// Money amounts are JSON numbers in stored records and on the wire.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type Payment struct {
	Pagado    bool            `json:"pagado"`
	Cantidad  decimal.Decimal `json:"cantidad"`
	FechaPago *time.Time      `json:"fechaPago"`
}

type Jornada struct {
	ID            string             `json:"id"`
	Numero        int                `json:"numero"`
	Clasificacion []Standing         `json:"clasificacion"`
	FechaCreacion time.Time          `json:"fechaCreacion"`
	Completada    bool               `json:"completada"`
	Pagos         map[string]Payment `json:"pagos"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9-]`)
var spaces = regexp.MustCompile(`\s+`)

// Slug derives the stable manager id from a display name.
func Slug(name string) string {
	s := strings.ToLower(name)
	s = spaces.ReplaceAllString(s, "-")
	return nonSlug.ReplaceAllString(s, "")
}

// Roster is the fixed league membership created on first boot.
var Roster = []string{
	"Alcatamy eSports by Rolex",
	"Vigar FC",
	"Baena10",
	"Dubai cITY FC",
	"Visite La Manga FC",
	"Morenazos FC",
}
