package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/internal/bets"
	"github.com/drope29/api-flashbets/internal/engine"
	"github.com/drope29/api-flashbets/internal/ledger"
	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

// Hub gerencia as sessões WebSocket e o fan-out dos deltas de partida.
// byMatch: matchID -> conjunto de sessões inscritas
// byAccount: accountID -> sessões da conta (bet.result e account.balance)
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	matches  *engine.Registry
	pipeline *bets.Pipeline
	ledger   *ledger.Ledger

	mu        sync.RWMutex
	byMatch   map[string]map[*Session]struct{}
	byAccount map[string]map[*Session]struct{}
}

func NewHub(log *zap.Logger, matches *engine.Registry, pipeline *bets.Pipeline, l *ledger.Ledger, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:       log,
		upgrader:  websocket.Upgrader{CheckOrigin: allowOrigin},
		matches:   matches,
		pipeline:  pipeline,
		ledger:    l,
		byMatch:   make(map[string]map[*Session]struct{}),
		byAccount: make(map[string]map[*Session]struct{}),
	}
}

// HandleWS aceita a conexão e dispara as bombas de leitura/escrita da sessão
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := newSession(uuid.NewString(), conn, h, h.log)
	sessionsConnected.Inc()

	go s.writePump()
	s.readPump() // bloqueia até desconectar
}

// handleMessage despacha uma mensagem de cliente já desserializada
func (h *Hub) handleMessage(s *Session, msg ClientMsg) {
	if msg.AccountID != "" && s.AccountID() == "" {
		h.bindAccount(s, msg.AccountID)
	}

	switch msg.Type {
	case "subscribe":
		h.subscribe(s, msg.MatchID)
	case "unsubscribe":
		h.unsubscribe(s, msg.MatchID)
	case "ping":
		s.trySend(mustJSON(map[string]string{"type": "pong"}))
	case "bet.place":
		h.placeBet(s, msg)
	}
}

// bindAccount vincula a sessão à conta e entrega o saldo autoritativo inicial
func (h *Hub) bindAccount(s *Session, accountID string) {
	s.bindAccount(accountID)

	h.mu.Lock()
	if _, ok := h.byAccount[accountID]; !ok {
		h.byAccount[accountID] = make(map[*Session]struct{})
	}
	h.byAccount[accountID][s] = struct{}{}
	h.mu.Unlock()

	cents, version := h.ledger.Balance(accountID)
	s.trySend(mustJSON(events.Push{
		Type:    events.PushBalance,
		Balance: &events.Balance{AccountID: accountID, AmountCents: cents, Version: version},
	}))
}

// subscribe inscreve a sessão na partida e entrega o snapshot completo
// (estado, par de janelas, mercados e backlog do feed)
func (h *Hub) subscribe(s *Session, matchID string) {
	m, ok := h.matches.Get(matchID)
	if !ok {
		s.trySend(mustJSON(map[string]string{"type": "error", "error": "match not found"}))
		return
	}

	h.mu.Lock()
	if _, ok := h.byMatch[matchID]; !ok {
		h.byMatch[matchID] = make(map[*Session]struct{})
	}
	h.byMatch[matchID][s] = struct{}{}
	h.mu.Unlock()

	snap := m.Snapshot()
	state := events.MatchState{
		State:     snap.State,
		HomeTeam:  snap.HomeTeam,
		AwayTeam:  snap.AwayTeam,
		HomeScore: snap.HomeScore,
		AwayScore: snap.AwayScore,
		Debug:     snap.Debug,
	}
	s.trySend(mustJSON(events.Push{Type: events.PushMatchState, MatchID: matchID, Match: &state}))
	if snap.Current != nil {
		s.trySend(mustJSON(events.Push{
			Type:     events.PushWindowRollover,
			MatchID:  matchID,
			Rollover: &events.WindowRollover{Current: *snap.Current, Next: *snap.Next},
		}))
	}
	for i := range snap.Markets {
		s.trySend(mustJSON(events.Push{Type: events.PushMarketState, MatchID: matchID, Market: &snap.Markets[i]}))
	}
	for i := range snap.Feed {
		s.trySend(mustJSON(events.Push{Type: events.PushMatchFeed, MatchID: matchID, Feed: &snap.Feed[i]}))
	}
}

func (h *Hub) unsubscribe(s *Session, matchID string) {
	h.mu.Lock()
	if set, ok := h.byMatch[matchID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.byMatch, matchID)
		}
	}
	h.mu.Unlock()
}

// placeBet encaminha sincronamente pro pipeline e devolve o desfecho na
// mesma sessão. O saldo autoritativo chega via PublishAccount.
func (h *Hub) placeBet(s *Session, msg ClientMsg) {
	if msg.Bet == nil || s.AccountID() == "" {
		s.trySend(mustJSON(map[string]string{"type": "error", "error": "invalid bet.place"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bet, err := h.pipeline.PlaceBet(ctx, bets.PlaceRequest{
		AccountID:        s.AccountID(),
		MatchID:          msg.Bet.MatchID,
		MarketID:         msg.Bet.MarketID,
		WindowOrdinal:    msg.Bet.WindowOrdinal,
		Selection:        msg.Bet.Selection,
		StakeCents:       msg.Bet.StakeCents,
		IdempotencyToken: msg.Bet.IdempotencyToken,
	})
	if bet == nil {
		s.trySend(mustJSON(events.Push{
			Type: events.PushBetResult,
			Bet:  &events.BetResult{Status: string(bets.StatusRejected), Reason: bets.Reason(err)},
		}))
		return
	}

	s.trySend(mustJSON(events.Push{
		Type:    events.PushBetResult,
		MatchID: bet.MatchID,
		Bet: &events.BetResult{
			BetID:       bet.ID,
			Status:      string(bet.Status),
			Reason:      bet.Reason,
			StakeCents:  bet.StakeCents,
			OddValue:    bet.OddValue,
			PayoutCents: bet.PayoutCents,
		},
	}))
}

// drop remove a sessão de todas as inscrições ao desconectar
func (h *Hub) drop(s *Session) {
	h.mu.Lock()
	for _, set := range h.byMatch {
		delete(set, s)
	}
	if acct := s.AccountID(); acct != "" {
		if set, ok := h.byAccount[acct]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.byAccount, acct)
			}
		}
	}
	h.mu.Unlock()

	s.close()
	sessionsConnected.Dec()
}

// PublishMatch envia o delta pra todas as sessões inscritas na partida
func (h *Hub) PublishMatch(matchID string, p events.Push) {
	h.mu.RLock()
	set := h.byMatch[matchID]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	b := mustJSON(p)
	for _, s := range targets {
		if !s.trySend(b) {
			h.log.Debug("slow session, delta dropped", zap.String("sessionId", s.ID))
		}
	}
}

// PublishAccount envia o delta só pras sessões da conta (saldo, bet.result)
func (h *Hub) PublishAccount(accountID string, p events.Push) {
	h.mu.RLock()
	set := h.byAccount[accountID]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	b := mustJSON(p)
	for _, s := range targets {
		s.trySend(b)
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
