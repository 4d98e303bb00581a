package events

// Deltas tipados do canal de push (WebSocket e espelho Redis Pub/Sub).
// O campo Type segue a convenção "area.acao": match.feed, window.rollover,
// market.state, bet.result, account.balance, match.state.
type Push struct {
	Type    string `json:"type"`
	MatchID string `json:"matchId,omitempty"`
	// Somente um dos payloads abaixo é preenchido, conforme Type
	Feed     *FeedEntry      `json:"feed,omitempty"`
	Rollover *WindowRollover `json:"rollover,omitempty"`
	Market   *MarketState    `json:"market,omitempty"`
	Bet      *BetResult      `json:"bet,omitempty"`
	Balance  *Balance        `json:"balance,omitempty"`
	Match    *MatchState     `json:"match,omitempty"`
}

const (
	PushMatchFeed      = "match.feed"
	PushWindowRollover = "window.rollover"
	PushMarketState    = "market.state"
	PushBetResult      = "bet.result"
	PushBalance        = "account.balance"
	PushMatchState     = "match.state"
)

// FeedEntry é uma linha do feed append-only da partida
type FeedEntry struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"` // goal, red_card, commentary, system...
	Message  string `json:"message"`
	Minute   int    `json:"minute"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}

// WindowSnapshot descreve uma janela de aposta no fio
type WindowSnapshot struct {
	Ordinal     int   `json:"ordinal"`
	StartUnixMs int64 `json:"start_unix_ms"`
	EndUnixMs   int64 `json:"end_unix_ms"`
}

// WindowRollover carrega o par CURRENT/NEXT após cada virada de janela
type WindowRollover struct {
	Current WindowSnapshot `json:"current"`
	Next    WindowSnapshot `json:"next"`
}

// MarketState informa estado e odds correntes de um mercado
type MarketState struct {
	MarketID string  `json:"market_id"`
	Label    string  `json:"label,omitempty"`
	State    string  `json:"state"` // CLOSED | OPEN | LOCKED | SETTLED
	OddsYes  float64 `json:"odds_yes"`
	OddsNo   float64 `json:"odds_no"`
}

// BetResult é o desfecho de uma aposta, sempre terminal e estruturado
type BetResult struct {
	BetID       string  `json:"bet_id"`
	Status      string  `json:"status"` // ACCEPTED | REJECTED | SETTLED_WIN | SETTLED_LOSS
	Reason      string  `json:"reason,omitempty"`
	StakeCents  int64   `json:"stake_cents,omitempty"`
	OddValue    float64 `json:"odd_value,omitempty"`
	PayoutCents int64   `json:"payout_cents,omitempty"`
}

// Balance é o saldo autoritativo pós-mutação, nunca calculado no cliente
type Balance struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
	Version     int64  `json:"version"`
}

// MatchState informa transições do ciclo de vida da partida
type MatchState struct {
	State     string `json:"state"` // PENDING | LIVE | FINISHED
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
	Debug     bool   `json:"debug,omitempty"`
}
