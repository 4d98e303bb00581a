package bets

import (
	"errors"
	"time"

	"github.com/drope29/api-flashbets/internal/engine"
	"github.com/drope29/api-flashbets/internal/ledger"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusAccepted    Status = "ACCEPTED"
	StatusRejected    Status = "REJECTED"
	StatusSettledWin  Status = "SETTLED_WIN"
	StatusSettledLoss Status = "SETTLED_LOSS"
)

const (
	SelectionYes = "YES"
	SelectionNo  = "NO"
)

var (
	ErrDuplicateBet   = errors.New("duplicate bet")
	ErrInvalidRequest = errors.New("invalid bet request")
)

// Bet é o registro servidor-autoritativo de uma aposta. OddValue é congelada
// no aceite e nunca recalculada.
type Bet struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	MatchID          string    `json:"match_id"`
	MarketID         string    `json:"market_id"`
	WindowOrdinal    int       `json:"window_ordinal"`
	Selection        string    `json:"selection"`
	StakeCents       int64     `json:"stake_cents"`
	OddValue         float64   `json:"odd_value"`
	Status           Status    `json:"status"`
	Reason           string    `json:"reason,omitempty"`
	PayoutCents      int64     `json:"payout_cents,omitempty"`
	IdempotencyToken string    `json:"idempotency_token"`
	PlacedAt         time.Time `json:"placed_at"`
}

// PlaceRequest é o bet.place vindo da sessão, já desserializado
type PlaceRequest struct {
	AccountID        string
	MatchID          string
	MarketID         string
	WindowOrdinal    int
	Selection        string
	StakeCents       int64
	IdempotencyToken string
}

// Códigos de rejeição estruturados reportados no bet.result
const (
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonMarketNotOpen     = "MARKET_NOT_OPEN"
	ReasonStaleWindow       = "STALE_WINDOW"
	ReasonMatchNotLive      = "MATCH_NOT_LIVE"
	ReasonDuplicateBet      = "DUPLICATE_BET"
	ReasonMatchVoid         = "MATCH_VOID"
	ReasonInternal          = "INTERNAL"
)

// Reason traduz o erro do pipeline pro código estruturado do fio.
// StaleWindow é checado antes por ser subtipo de MarketNotOpen.
func Reason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, engine.ErrStaleWindow):
		return ReasonStaleWindow
	case errors.Is(err, engine.ErrMarketNotOpen):
		return ReasonMarketNotOpen
	case errors.Is(err, engine.ErrMatchNotLive), errors.Is(err, engine.ErrMatchNotFound):
		return ReasonMatchNotLive
	case errors.Is(err, ErrDuplicateBet):
		return ReasonDuplicateBet
	default:
		return ReasonInternal
	}
}
