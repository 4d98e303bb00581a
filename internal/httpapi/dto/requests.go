package dto

type CreateMatchRequest struct {
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
	Debug    bool   `json:"debug,omitempty"`
}

type MatchEventRequest struct {
	Kind    string `json:"kind"` // "goal" | "commentary" | ...
	Team    string `json:"team,omitempty"`
	Message string `json:"message,omitempty"`
}

type DepositRequest struct {
	AccountID   string `json:"accountId"`
	AmountCents int64  `json:"amount_cents"`
}
