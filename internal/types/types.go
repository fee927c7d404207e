// Package types holds the JSON bodies exchanged with clients over HTTP and
// the websocket.
package types

import (
	"github.com/shopspring/decimal"

	"github.com/Alcatamy/Mercato/internal/cache"
	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/standings"
)

type ClientMessage struct {
	Type string `json:"type"` // "Ping"
}

type ServerMessage struct {
	Type    string       `json:"type"` // "StateSnapshot" | "Pong" | "Error"
	Version int          `json:"version,omitempty"`
	Changed string       `json:"changed,omitempty"`
	State   *cache.State `json:"state,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type LoginRequest struct {
	ManagerID string `json:"managerId"`
	Key       string `json:"key"`
}

type LoginResponse struct {
	Token   string         `json:"token"`
	Manager domain.Manager `json:"manager"`
}

type ListRequest struct {
	PlayerID string `json:"playerId"`
	Price    int64  `json:"price"`
}

type OfferRequest struct {
	Amount int64 `json:"amount"`
}

type SaveJornadaRequest struct {
	Numero int                       `json:"numero"`
	Points []standings.ManagerPoints `json:"points"`
	Mode   string                    `json:"mode,omitempty"`
}

// PaymentRequest either sets the paid flag (Paid with DefaultAmount) or
// only changes the amount (Amount).
type PaymentRequest struct {
	Paid          *bool            `json:"paid,omitempty"`
	DefaultAmount *decimal.Decimal `json:"defaultAmount,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

type JornadaResponse struct {
	domain.Jornada
	Penalties      map[string]decimal.Decimal `json:"penalties"`
	TotalCollected string                     `json:"totalCollected"`
}

func NewJornadaResponse(j domain.Jornada) JornadaResponse {
	return JornadaResponse{
		Jornada:        j,
		Penalties:      standings.Penalties(j),
		TotalCollected: standings.FormatAmount(standings.CalculateTotalCollected(j.Pagos)),
	}
}
