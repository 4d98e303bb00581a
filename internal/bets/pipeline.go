package bets

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/internal/engine"
	"github.com/drope29/api-flashbets/internal/ledger"
	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

// Archive persiste apostas e lançamentos contábeis fora do caminho quente.
// Implementado pelo repositório Postgres; nil desliga.
type Archive interface {
	SaveBet(ctx context.Context, b *Bet) error
	UpdateBetStatus(ctx context.Context, betID string, status Status, payoutCents int64) error
	SaveLedgerEntry(ctx context.Context, e LedgerEntry) error
}

// LedgerEntry é o lançamento contábil espelhado no archive
type LedgerEntry struct {
	AccountID    string
	Operation    string // DEBIT | CREDIT | REFUND | PAYOUT | DEPOSIT
	AmountCents  int64
	Description  string
	RelatedBetID string
}

// Publisher emite os eventos de domínio pro Kafka; nil desliga
type Publisher interface {
	PublishBetAccepted(ctx context.Context, e events.BetAccepted) error
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
	PublishMatchFinished(ctx context.Context, e events.MatchFinished) error
}

type betKey struct {
	accountID     string
	marketID      string
	windowOrdinal int
}


// Pipeline é o caminho crítico de aceite: valida, deduplica, reserva o stake
// e comita contra o mercado, com estorno compensatório em toda falha após a
// reserva. Serializa por conta, nunca globalmente.
type Pipeline struct {
	log     *zap.Logger
	ledger  *ledger.Ledger
	matches *engine.Registry
	bc      engine.Broadcaster
	archive Archive
	publ    Publisher

	mu       sync.Mutex
	byID     map[string]*Bet
	byToken  map[string]*Bet // dono do token: replay pro dono, DuplicateBet pros demais
	byKey    map[betKey]*Bet // somente ACCEPTED: garante 1 aposta por (conta, mercado, janela)
	byMatch  map[string][]*Bet
	accounts map[string]*sync.Mutex
}

func NewPipeline(log *zap.Logger, l *ledger.Ledger, matches *engine.Registry) *Pipeline {
	return &Pipeline{
		log:      log,
		ledger:   l,
		matches:  matches,
		byID:     make(map[string]*Bet),
		byToken:  make(map[string]*Bet),
		byKey:    make(map[betKey]*Bet),
		byMatch:  make(map[string][]*Bet),
		accounts: make(map[string]*sync.Mutex),
	}
}

// Bind injeta os colaboradores opcionais (broadcast, archive, kafka)
func (p *Pipeline) Bind(bc engine.Broadcaster, archive Archive, publ Publisher) {
	p.bc = bc
	p.archive = archive
	p.publ = publ
}

// accountLock devolve o lock fino da conta, criando na primeira referência
func (p *Pipeline) accountLock(accountID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lk, ok := p.accounts[accountID]
	if !ok {
		lk = &sync.Mutex{}
		p.accounts[accountID] = lk
	}
	return lk
}

// PlaceBet executa o aceite de ponta a ponta. Sempre chega num desfecho
// terminal: retorna a aposta ACCEPTED, ou a aposta REJECTED junto do erro
// sentinela que a motivou. Replays pelo mesmo (conta, token) devolvem o
// registro original sem novo débito.
// O lock da conta cobre só ledger, mercado e indexação; archive e Kafka
// rodam depois, sem segurar apostas seguintes da mesma conta.
func (p *Pipeline) PlaceBet(ctx context.Context, req PlaceRequest) (*Bet, error) {
	if req.AccountID == "" || req.MatchID == "" || req.MarketID == "" ||
		req.StakeCents <= 0 || req.IdempotencyToken == "" ||
		(req.Selection != SelectionYes && req.Selection != SelectionNo) {
		return nil, ErrInvalidRequest
	}

	lk := p.accountLock(req.AccountID)
	lk.Lock()

	// Replay seguro: o mesmo token devolve o desfecho já entregue — mas só
	// pro dono. Token já usado por outra conta não é replay, é duplicata.
	p.mu.Lock()
	if prev, ok := p.byToken[req.IdempotencyToken]; ok {
		if prev.AccountID != req.AccountID {
			p.mu.Unlock()
			lk.Unlock()
			return p.reject(req, ErrDuplicateBet)
		}
		out := *prev
		p.mu.Unlock()
		lk.Unlock()
		return &out, nil
	}
	key := betKey{req.AccountID, req.MarketID, req.WindowOrdinal}
	_, dup := p.byKey[key]
	p.mu.Unlock()

	// 1) partida precisa estar LIVE
	m, ok := p.matches.Get(req.MatchID)
	if !ok {
		lk.Unlock()
		return p.reject(req, engine.ErrMatchNotFound)
	}
	if m.State() != engine.StateLive {
		lk.Unlock()
		return p.reject(req, engine.ErrMatchNotLive)
	}

	// 2) trava anti double-submit por (conta, mercado, janela)
	if dup {
		lk.Unlock()
		return p.reject(req, ErrDuplicateBet)
	}

	mk, ok := m.Market(req.MarketID)
	if !ok {
		lk.Unlock()
		return p.reject(req, engine.ErrMarketNotOpen)
	}

	// 3) reserva o stake no ledger
	newBalance, version, err := p.ledger.Debit(req.AccountID, req.StakeCents)
	if err != nil {
		lk.Unlock()
		return p.reject(req, err)
	}

	// 4) comita contra o mercado; se a janela virou no meio do voo, estorna
	// a reserva antes de rejeitar (ação compensatória)
	oddsYes, oddsNo, err := mk.AcceptStake(req.WindowOrdinal, req.StakeCents)
	if err != nil {
		newBalance, version, _ = p.ledger.Credit(req.AccountID, req.StakeCents)
		lk.Unlock()
		p.pushBalance(req.AccountID, newBalance, version)
		p.archiveEntry(LedgerEntry{
			AccountID: req.AccountID, Operation: "REFUND",
			AmountCents: req.StakeCents, Description: "compensacao:" + Reason(err),
		})
		return p.reject(req, err)
	}

	odd := oddsYes
	if req.Selection == SelectionNo {
		odd = oddsNo
	}

	// 5) persiste ACCEPTED e devolve
	bet := &Bet{
		ID:               uuid.NewString(),
		AccountID:        req.AccountID,
		MatchID:          req.MatchID,
		MarketID:         req.MarketID,
		WindowOrdinal:    req.WindowOrdinal,
		Selection:        req.Selection,
		StakeCents:       req.StakeCents,
		OddValue:         odd,
		Status:           StatusAccepted,
		IdempotencyToken: req.IdempotencyToken,
		PlacedAt:         time.Now(),
	}
	out := *bet // snapshot antes de compartilhar: a liquidação muta o registro

	p.mu.Lock()
	p.byID[bet.ID] = bet
	if _, ok := p.byToken[bet.IdempotencyToken]; !ok {
		p.byToken[bet.IdempotencyToken] = bet
	}
	p.byKey[key] = bet
	p.byMatch[bet.MatchID] = append(p.byMatch[bet.MatchID], bet)
	p.mu.Unlock()
	lk.Unlock()

	betsAccepted.Inc()
	p.pushBalance(out.AccountID, newBalance, version)
	p.archiveBet(&out)
	p.archiveEntry(LedgerEntry{
		AccountID: out.AccountID, Operation: "DEBIT",
		AmountCents: out.StakeCents, Description: "stake", RelatedBetID: out.ID,
	})
	if p.publ != nil {
		_ = p.publ.PublishBetAccepted(ctx, events.BetAccepted{
			BetID:         out.ID,
			AccountID:     out.AccountID,
			MatchID:       out.MatchID,
			MarketID:      out.MarketID,
			WindowOrdinal: out.WindowOrdinal,
			Selection:     out.Selection,
			StakeCents:    out.StakeCents,
			OddValue:      out.OddValue,
		})
	}

	p.log.Info("bet accepted",
		zap.String("betId", out.ID),
		zap.String("accountId", out.AccountID),
		zap.String("marketId", out.MarketID),
		zap.Int("window", out.WindowOrdinal),
		zap.Int64("stakeCents", out.StakeCents),
		zap.Float64("odd", out.OddValue),
	)
	return &out, nil
}

// reject registra o desfecho REJECTED (indexado por token pro replay de
// sessão do dono) e devolve o erro sentinela. Chamado sem o lock da conta.
func (p *Pipeline) reject(req PlaceRequest, cause error) (*Bet, error) {
	bet := &Bet{
		ID:               uuid.NewString(),
		AccountID:        req.AccountID,
		MatchID:          req.MatchID,
		MarketID:         req.MarketID,
		WindowOrdinal:    req.WindowOrdinal,
		Selection:        req.Selection,
		StakeCents:       req.StakeCents,
		Status:           StatusRejected,
		Reason:           Reason(cause),
		IdempotencyToken: req.IdempotencyToken,
		PlacedAt:         time.Now(),
	}
	out := *bet

	p.mu.Lock()
	p.byID[bet.ID] = bet
	// nunca sobrescreve o registro do dono original do token
	if _, ok := p.byToken[bet.IdempotencyToken]; !ok {
		p.byToken[bet.IdempotencyToken] = bet
	}
	p.mu.Unlock()

	betsRejected.WithLabelValues(out.Reason).Inc()
	p.log.Debug("bet rejected",
		zap.String("accountId", req.AccountID),
		zap.String("reason", out.Reason),
	)
	return &out, cause
}

// Get retorna uma cópia da aposta pelo id; o registro vivo só muta sob p.mu
func (p *Pipeline) Get(betID string) (*Bet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byID[betID]
	if !ok {
		return nil, false
	}
	out := *b
	return &out, true
}

// ResultByToken é o replay de sessão: devolve o desfecho terminal já
// registrado pra um token, se pertencer à conta
func (p *Pipeline) ResultByToken(accountID, token string) (*Bet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byToken[token]
	if !ok || b.AccountID != accountID {
		return nil, false
	}
	out := *b
	return &out, true
}

// SettleMatch liquida toda aposta ACCEPTED da partida terminada:
// stake*odd creditado na vitória, nada na derrota. Implementa engine.Settler.
func (p *Pipeline) SettleMatch(m *engine.Match) {
	for _, bet := range p.acceptedBets(m.ID) {
		win := m.OutcomeYes(bet.MarketID, bet.WindowOrdinal) == (bet.Selection == SelectionYes)

		lk := p.accountLock(bet.AccountID)
		lk.Lock()
		var payout int64
		status := StatusSettledLoss
		if win {
			payout = int64(math.Round(float64(bet.StakeCents) * bet.OddValue))
			newBalance, version, _ := p.ledger.Credit(bet.AccountID, payout)
			p.pushBalance(bet.AccountID, newBalance, version)
			status = StatusSettledWin
		}
		p.mu.Lock()
		bet.Status = status
		bet.PayoutCents = payout
		p.mu.Unlock()
		lk.Unlock()

		p.finishBet(m, bet, payout)
	}

	if p.publ != nil {
		snap := m.Snapshot()
		_ = p.publ.PublishMatchFinished(context.Background(), events.MatchFinished{
			MatchID:   m.ID,
			HomeScore: snap.HomeScore,
			AwayScore: snap.AwayScore,
			Ts:        time.Now(),
		})
	}
}

// VoidMatch aplica a política de abandono: estorno integral do stake de cada
// aposta ACCEPTED, marcada REJECTED com razão MATCH_VOID
func (p *Pipeline) VoidMatch(m *engine.Match) {
	for _, bet := range p.acceptedBets(m.ID) {
		lk := p.accountLock(bet.AccountID)
		lk.Lock()
		newBalance, version, _ := p.ledger.Credit(bet.AccountID, bet.StakeCents)
		p.mu.Lock()
		bet.Status = StatusRejected
		bet.Reason = ReasonMatchVoid
		p.mu.Unlock()
		lk.Unlock()

		p.pushBalance(bet.AccountID, newBalance, version)
		p.archiveEntry(LedgerEntry{
			AccountID: bet.AccountID, Operation: "REFUND",
			AmountCents: bet.StakeCents, Description: "void", RelatedBetID: bet.ID,
		})
		p.finishBet(m, bet, 0)
	}
}

func (p *Pipeline) acceptedBets(matchID string) []*Bet {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Bet
	for _, b := range p.byMatch[matchID] {
		if b.Status == StatusAccepted {
			out = append(out, b)
		}
	}
	return out
}

// finishBet entrega o desfecho pós-liquidação: bet.result pro apostador,
// archive e evento Kafka
func (p *Pipeline) finishBet(m *engine.Match, bet *Bet, payout int64) {
	if p.bc != nil {
		p.bc.PublishAccount(bet.AccountID, events.Push{
			Type:    events.PushBetResult,
			MatchID: m.ID,
			Bet: &events.BetResult{
				BetID:       bet.ID,
				Status:      string(bet.Status),
				Reason:      bet.Reason,
				StakeCents:  bet.StakeCents,
				OddValue:    bet.OddValue,
				PayoutCents: payout,
			},
		})
	}
	if payout > 0 {
		p.archiveEntry(LedgerEntry{
			AccountID: bet.AccountID, Operation: "PAYOUT",
			AmountCents: payout, Description: "settlement", RelatedBetID: bet.ID,
		})
	}
	if p.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.archive.UpdateBetStatus(ctx, bet.ID, bet.Status, payout); err != nil {
			p.log.Warn("archive update", zap.String("betId", bet.ID), zap.Error(err))
		}
		cancel()
	}
	if p.publ != nil {
		_ = p.publ.PublishBetSettled(context.Background(), events.BetSettled{
			BetID:       bet.ID,
			AccountID:   bet.AccountID,
			MatchID:     bet.MatchID,
			Status:      string(bet.Status),
			PayoutCents: payout,
			Ts:          time.Now(),
		})
	}
}

// Deposit credita saldo na conta e publica o valor autoritativo
func (p *Pipeline) Deposit(accountID string, amountCents int64) (int64, error) {
	lk := p.accountLock(accountID)
	lk.Lock()
	newBalance, version, err := p.ledger.Credit(accountID, amountCents)
	lk.Unlock()
	if err != nil {
		return 0, err
	}

	p.pushBalance(accountID, newBalance, version)
	p.archiveEntry(LedgerEntry{
		AccountID: accountID, Operation: "DEPOSIT",
		AmountCents: amountCents, Description: "deposit",
	})
	return newBalance, nil
}

func (p *Pipeline) pushBalance(accountID string, cents, version int64) {
	if p.bc == nil {
		return
	}
	p.bc.PublishAccount(accountID, events.Push{
		Type: events.PushBalance,
		Balance: &events.Balance{
			AccountID:   accountID,
			AmountCents: cents,
			Version:     version,
		},
	})
}

func (p *Pipeline) archiveBet(b *Bet) {
	if p.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.archive.SaveBet(ctx, b); err != nil {
		p.log.Warn("archive bet", zap.String("betId", b.ID), zap.Error(err))
	}
}

func (p *Pipeline) archiveEntry(e LedgerEntry) {
	if p.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.archive.SaveLedgerEntry(ctx, e); err != nil {
		p.log.Warn("archive ledger entry", zap.String("accountId", e.AccountID), zap.Error(err))
	}
}
