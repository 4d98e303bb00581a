package gateway

// ClientMsg é uma mensagem recebida da sessão WebSocket
// Type: subscribe | unsubscribe | ping | bet.place
// AccountID identifica a conta da sessão (bootstrap de auth é colaborador externo)
type ClientMsg struct {
	Type      string       `json:"type"`
	MatchID   string       `json:"matchId,omitempty"`
	AccountID string       `json:"accountId,omitempty"`
	Bet       *BetPlaceMsg `json:"bet,omitempty"`
}

// BetPlaceMsg é o payload do bet.place; valores em centavos, nunca float
type BetPlaceMsg struct {
	MatchID          string `json:"match_id"`
	MarketID         string `json:"market_id"`
	WindowOrdinal    int    `json:"window_ordinal"`
	Selection        string `json:"selection"` // "YES" | "NO"
	StakeCents       int64  `json:"stake_cents"`
	IdempotencyToken string `json:"idempotency_token"`
}
