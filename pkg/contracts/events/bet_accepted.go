package events

// Evento publicado no tópico "bet_accepted" após o commit de uma aposta.
// Valores monetários sempre em centavos.
type BetAccepted struct {
	BetID         string  `json:"bet_id"`
	AccountID     string  `json:"account_id"`
	MatchID       string  `json:"match_id"`
	MarketID      string  `json:"market_id"`
	WindowOrdinal int     `json:"window_ordinal"`
	Selection     string  `json:"selection"` // "YES" | "NO"
	StakeCents    int64   `json:"stake_cents"`
	OddValue      float64 `json:"odd_value"` // odd congelada no aceite
	TsUnixMs      int64   `json:"ts_unix_ms"`
}
