package dto

type CreateMatchResponse struct {
	MatchID string `json:"matchId"`
	State   string `json:"state"`
}

type WalletResponse struct {
	AccountID    string `json:"accountId"`
	BalanceCents int64  `json:"balance_cents"`
	Version      int64  `json:"version"`
}
