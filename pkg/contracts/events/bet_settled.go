package events

import "time"

// Evento publicado no tópico "bet_settled" na liquidação de cada aposta.
type BetSettled struct {
	BetID       string    `json:"betId"`
	AccountID   string    `json:"accountId"`
	MatchID     string    `json:"matchId"`
	Status      string    `json:"status"` // "SETTLED_WIN" | "SETTLED_LOSS" | "REJECTED"
	PayoutCents int64     `json:"payout_cents"`
	Ts          time.Time `json:"ts"`
}

// Evento publicado no tópico "match_finished".
type MatchFinished struct {
	MatchID   string    `json:"matchId"`
	HomeScore int       `json:"homeScore"`
	AwayScore int       `json:"awayScore"`
	Ts        time.Time `json:"ts"`
}
