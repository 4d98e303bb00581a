package bets_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/internal/bets"
	"github.com/drope29/api-flashbets/internal/engine"
	"github.com/drope29/api-flashbets/internal/ledger"
	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

const initialCents = 100_000

// lastBalanceBroadcaster guarda o último saldo publicado por conta, pra
// conferir que o push sempre carrega o valor autoritativo do ledger
type lastBalanceBroadcaster struct {
	mu      sync.Mutex
	balance map[string]events.Balance
	results map[string][]events.BetResult
}

func newLastBalanceBroadcaster() *lastBalanceBroadcaster {
	return &lastBalanceBroadcaster{
		balance: make(map[string]events.Balance),
		results: make(map[string][]events.BetResult),
	}
}

func (b *lastBalanceBroadcaster) PublishMatch(string, events.Push) {}

func (b *lastBalanceBroadcaster) PublishAccount(accountID string, p events.Push) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Balance != nil {
		b.balance[accountID] = *p.Balance
	}
	if p.Bet != nil {
		b.results[accountID] = append(b.results[accountID], *p.Bet)
	}
}

func (b *lastBalanceBroadcaster) lastBalance(accountID string) (events.Balance, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, ok := b.balance[accountID]
	return bal, ok
}

type harness struct {
	led  *ledger.Ledger
	pipe *bets.Pipeline
	bc   *lastBalanceBroadcaster
	m    *engine.Match
}

// newHarness sobe registry+ledger+pipeline com uma partida LIVE.
// Janela de uma hora: nenhum rollover acontece dentro do teste.
func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	led := ledger.New(initialCents)
	reg := engine.NewRegistry(log, time.Hour)
	pipe := bets.NewPipeline(log, led, reg)
	bc := newLastBalanceBroadcaster()
	reg.Bind(bc, nil, pipe)
	pipe.Bind(bc, nil, nil)

	m, err := reg.Create("m1", "Casa", "Fora", false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Finish)
	return &harness{led: led, pipe: pipe, bc: bc, m: m}
}

func placeReq(token string) bets.PlaceRequest {
	return bets.PlaceRequest{
		AccountID:        "acc-1",
		MatchID:          "m1",
		MarketID:         "m1:goal",
		WindowOrdinal:    1,
		Selection:        bets.SelectionYes,
		StakeCents:       5_000,
		IdempotencyToken: token,
	}
}

func TestPlaceBetAccepted(t *testing.T) {
	h := newHarness(t)

	bet, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-1"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	if bet.Status != bets.StatusAccepted {
		t.Fatalf("status: got %s, want ACCEPTED", bet.Status)
	}
	if bet.OddValue <= 1.0 {
		t.Errorf("odd congelada inválida: %v", bet.OddValue)
	}

	balance, _ := h.led.Balance("acc-1")
	if balance != initialCents-5_000 {
		t.Errorf("saldo: got %d, want %d", balance, initialCents-5_000)
	}
	// o push de saldo carrega o valor autoritativo
	if b, ok := h.bc.lastBalance("acc-1"); !ok || b.AmountCents != balance {
		t.Errorf("push de saldo: got %+v, want %d", b, balance)
	}

	mk, _ := h.m.Market("m1:goal")
	if mk.TotalStakedCents() != 5_000 {
		t.Errorf("volume do mercado: got %d, want 5000", mk.TotalStakedCents())
	}
}

func TestPlaceBetValidatesRequest(t *testing.T) {
	h := newHarness(t)

	bad := []bets.PlaceRequest{
		{},
		func() bets.PlaceRequest { r := placeReq("t"); r.StakeCents = 0; return r }(),
		func() bets.PlaceRequest { r := placeReq("t"); r.StakeCents = -10; return r }(),
		func() bets.PlaceRequest { r := placeReq("t"); r.Selection = "MAYBE"; return r }(),
		func() bets.PlaceRequest { r := placeReq("t"); r.IdempotencyToken = ""; return r }(),
	}
	for i, req := range bad {
		if _, err := h.pipe.PlaceBet(context.Background(), req); !errors.Is(err, bets.ErrInvalidRequest) {
			t.Errorf("caso %d: got %v, want ErrInvalidRequest", i, err)
		}
	}
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents {
		t.Errorf("saldo mudou em request inválido: %d", balance)
	}
}

func TestIdempotentTokenReplay(t *testing.T) {
	h := newHarness(t)

	first, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-replay"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	again, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-replay"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("replay devolveu aposta diferente: %s vs %s", again.ID, first.ID)
	}
	// sem novo débito
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents-5_000 {
		t.Errorf("saldo pós-replay: got %d, want %d", balance, initialCents-5_000)
	}

	got, ok := h.pipe.ResultByToken("acc-1", "tok-replay")
	if !ok || got.ID != first.ID {
		t.Error("ResultByToken não devolveu o desfecho original")
	}
}

func TestTokenReusedByAnotherAccount(t *testing.T) {
	h := newHarness(t)

	first, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-shared"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	// outra conta reusando o token não é replay: é duplicata rejeitada
	req := placeReq("tok-shared")
	req.AccountID = "acc-2"
	bet, err := h.pipe.PlaceBet(context.Background(), req)
	if !errors.Is(err, bets.ErrDuplicateBet) {
		t.Fatalf("got %v, want ErrDuplicateBet", err)
	}
	if bet.Status != bets.StatusRejected || bet.Reason != bets.ReasonDuplicateBet {
		t.Errorf("got %s/%s, want REJECTED/DUPLICATE_BET", bet.Status, bet.Reason)
	}
	// jamais a aposta alheia, e nenhum débito
	if bet.AccountID != "acc-2" || bet.ID == first.ID {
		t.Errorf("vazou registro de outra conta: %+v", bet)
	}
	if balance, _ := h.led.Balance("acc-2"); balance != initialCents {
		t.Errorf("saldo de acc-2: got %d, want %d", balance, initialCents)
	}

	// o replay do dono segue íntegro
	again, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-shared"))
	if err != nil || again.ID != first.ID {
		t.Errorf("replay do dono: id=%s err=%v, want id=%s", again.ID, err, first.ID)
	}
	// e a consulta por token é escopada à conta
	if _, ok := h.pipe.ResultByToken("acc-2", "tok-shared"); ok {
		t.Error("ResultByToken devolveu token de outra conta")
	}
}

// blockingArchive prende SaveBet do mercado de gol até release; os demais
// métodos retornam na hora
type blockingArchive struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *blockingArchive) SaveBet(ctx context.Context, b *bets.Bet) error {
	if b.MarketID == "m1:goal" {
		a.once.Do(func() { close(a.entered) })
		<-a.release
	}
	return nil
}

func (a *blockingArchive) UpdateBetStatus(ctx context.Context, betID string, status bets.Status, payoutCents int64) error {
	return nil
}

func (a *blockingArchive) SaveLedgerEntry(ctx context.Context, e bets.LedgerEntry) error {
	return nil
}

func TestSlowArchiveDoesNotSerializeAccount(t *testing.T) {
	h := newHarness(t)
	arc := &blockingArchive{entered: make(chan struct{}), release: make(chan struct{})}
	h.pipe.Bind(h.bc, arc, nil)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = h.pipe.PlaceBet(context.Background(), placeReq("tok-slow"))
	}()
	select {
	case <-arc.entered: // primeira aposta comitada, presa só no archive
	case <-time.After(time.Second):
		t.Fatal("archive nunca foi chamado")
	}

	// a conta não pode ficar refém do archive: a próxima aposta flui
	second := make(chan error, 1)
	go func() {
		req := placeReq("tok-fast")
		req.MarketID = "m1:multi_goal"
		_, err := h.pipe.PlaceBet(context.Background(), req)
		second <- err
	}()
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("segunda aposta: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("aposta seguinte da conta bloqueada pelo archive lento")
	}

	close(arc.release)
	<-firstDone
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents-10_000 {
		t.Errorf("saldo: got %d, want %d", balance, initialCents-10_000)
	}
}

func TestLookupReturnsSnapshot(t *testing.T) {
	h := newHarness(t)

	placed, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-snap"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	// mutar a cópia devolvida não toca o registro vivo
	got, _ := h.pipe.Get(placed.ID)
	got.Status = bets.StatusRejected
	if again, _ := h.pipe.Get(placed.ID); again.Status != bets.StatusAccepted {
		t.Error("Get devolveu o registro vivo em vez de cópia")
	}

	h.m.RecordGoal("home")
	h.m.Finish()

	// o retorno do aceite é um snapshot daquele instante
	if placed.Status != bets.StatusAccepted {
		t.Errorf("snapshot do aceite mutado pela liquidação: %s", placed.Status)
	}
	if settled, _ := h.pipe.Get(placed.ID); settled.Status != bets.StatusSettledWin {
		t.Errorf("registro vivo: got %s, want SETTLED_WIN", settled.Status)
	}
}

func TestDuplicateBetSameWindow(t *testing.T) {
	h := newHarness(t)

	if _, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-a")); err != nil {
		t.Fatalf("primeira aposta: %v", err)
	}
	bet, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-b"))
	if !errors.Is(err, bets.ErrDuplicateBet) {
		t.Fatalf("got %v, want ErrDuplicateBet", err)
	}
	if bet.Status != bets.StatusRejected || bet.Reason != bets.ReasonDuplicateBet {
		t.Errorf("got %s/%s, want REJECTED/DUPLICATE_BET", bet.Status, bet.Reason)
	}
	// só o primeiro stake saiu
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents-5_000 {
		t.Errorf("saldo: got %d, want %d", balance, initialCents-5_000)
	}
}

func TestDuplicateBetConcurrent(t *testing.T) {
	h := newHarness(t)

	const n = 25
	var wg sync.WaitGroup
	accepted := make(chan *bets.Bet, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := placeReq("tok-conc-" + string(rune('a'+i)))
			bet, err := h.pipe.PlaceBet(context.Background(), req)
			if err == nil && bet.Status == bets.StatusAccepted {
				accepted <- bet
			}
		}(i)
	}
	wg.Wait()
	close(accepted)

	if got := len(accepted); got != 1 {
		t.Fatalf("got %d apostas ACCEPTED pro mesmo (conta, mercado, janela), want 1", got)
	}
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents-5_000 {
		t.Errorf("saldo: got %d, want %d", balance, initialCents-5_000)
	}
}

func TestInsufficientFunds(t *testing.T) {
	h := newHarness(t)

	req := placeReq("tok-big")
	req.StakeCents = initialCents + 1
	bet, err := h.pipe.PlaceBet(context.Background(), req)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if bet.Reason != bets.ReasonInsufficientFunds {
		t.Errorf("reason: got %s, want INSUFFICIENT_FUNDS", bet.Reason)
	}
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents {
		t.Errorf("saldo tocado em rejeição: %d", balance)
	}
}

func TestMatchNotLive(t *testing.T) {
	h := newHarness(t)
	h.m.Finish()

	bet, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-dead"))
	if !errors.Is(err, engine.ErrMatchNotLive) {
		t.Fatalf("got %v, want ErrMatchNotLive", err)
	}
	if bet.Reason != bets.ReasonMatchNotLive {
		t.Errorf("reason: got %s, want MATCH_NOT_LIVE", bet.Reason)
	}
}

func TestMarketLockedRejects(t *testing.T) {
	h := newHarness(t)
	mk, _ := h.m.Market("m1:goal")
	mk.Lock()

	bet, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-locked"))
	if !errors.Is(err, engine.ErrMarketNotOpen) {
		t.Fatalf("got %v, want ErrMarketNotOpen", err)
	}
	if bet.Reason != bets.ReasonMarketNotOpen {
		t.Errorf("reason: got %s, want MARKET_NOT_OPEN", bet.Reason)
	}
	// débito + estorno compensatório: saldo volta inteiro
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents {
		t.Errorf("saldo pós-estorno: got %d, want %d", balance, initialCents)
	}
}

func TestStaleWindowRefunds(t *testing.T) {
	h := newHarness(t)

	req := placeReq("tok-stale")
	req.WindowOrdinal = 99 // janela que já virou (ou nunca existiu)
	bet, err := h.pipe.PlaceBet(context.Background(), req)
	if !errors.Is(err, engine.ErrStaleWindow) {
		t.Fatalf("got %v, want ErrStaleWindow", err)
	}
	if bet.Reason != bets.ReasonStaleWindow {
		t.Errorf("reason: got %s, want STALE_WINDOW", bet.Reason)
	}

	balance, version := h.led.Balance("acc-1")
	if balance != initialCents {
		t.Errorf("saldo pós-estorno: got %d, want %d", balance, initialCents)
	}
	// débito e estorno são duas mutações reais, não um no-op
	if version != 3 {
		t.Errorf("versão: got %d, want 3 (provisiona, debita, estorna)", version)
	}
	if b, ok := h.bc.lastBalance("acc-1"); !ok || b.AmountCents != initialCents {
		t.Errorf("push de saldo pós-estorno: %+v", b)
	}
}

func TestSettleWin(t *testing.T) {
	h := newHarness(t)

	bet, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-win"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	h.m.RecordGoal("home") // gol na janela 1: proposição SIM vence
	h.m.Finish()           // dispara SettleMatch via settler

	got, _ := h.pipe.Get(bet.ID)
	if got.Status != bets.StatusSettledWin {
		t.Fatalf("status: got %s, want SETTLED_WIN", got.Status)
	}
	wantPayout := int64(math.Round(float64(bet.StakeCents) * bet.OddValue))
	if got.PayoutCents != wantPayout {
		t.Errorf("payout: got %d, want %d", got.PayoutCents, wantPayout)
	}
	balance, _ := h.led.Balance("acc-1")
	if want := int64(initialCents) - bet.StakeCents + wantPayout; balance != want {
		t.Errorf("saldo final: got %d, want %d", balance, want)
	}
}

func TestSettleLoss(t *testing.T) {
	h := newHarness(t)

	bet, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-loss"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	h.m.Finish() // sem gol: proposição SIM perde

	got, _ := h.pipe.Get(bet.ID)
	if got.Status != bets.StatusSettledLoss {
		t.Fatalf("status: got %s, want SETTLED_LOSS", got.Status)
	}
	if got.PayoutCents != 0 {
		t.Errorf("payout em derrota: got %d, want 0", got.PayoutCents)
	}
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents-bet.StakeCents {
		t.Errorf("saldo: got %d, want %d", balance, initialCents-bet.StakeCents)
	}
}

func TestSettleNoSelectionWins(t *testing.T) {
	h := newHarness(t)

	req := placeReq("tok-no")
	req.Selection = bets.SelectionNo
	bet, err := h.pipe.PlaceBet(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	h.m.Finish() // sem gol: proposição NÃO vence

	got, _ := h.pipe.Get(bet.ID)
	if got.Status != bets.StatusSettledWin {
		t.Fatalf("status: got %s, want SETTLED_WIN", got.Status)
	}
}

func TestVoidMatchRefunds(t *testing.T) {
	h := newHarness(t)

	bet, err := h.pipe.PlaceBet(context.Background(), placeReq("tok-void"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	h.m.Abandon()

	got, _ := h.pipe.Get(bet.ID)
	if got.Status != bets.StatusRejected || got.Reason != bets.ReasonMatchVoid {
		t.Fatalf("got %s/%s, want REJECTED/MATCH_VOID", got.Status, got.Reason)
	}
	// estorno integral
	if balance, _ := h.led.Balance("acc-1"); balance != initialCents {
		t.Errorf("saldo pós-void: got %d, want %d", balance, initialCents)
	}
	if !h.m.Voided() {
		t.Error("partida deveria constar como anulada")
	}
}

func TestConcurrentAccountsOneMarket(t *testing.T) {
	h := newHarness(t)

	const n = 20
	const stake = 10_000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := placeReq("tok-acc-" + string(rune('a'+i)))
			req.AccountID = "acc-" + string(rune('a'+i))
			req.StakeCents = stake
			if _, err := h.pipe.PlaceBet(context.Background(), req); err != nil {
				t.Errorf("conta %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		id := "acc-" + string(rune('a'+i))
		balance, _ := h.led.Balance(id)
		if balance != initialCents-stake {
			t.Errorf("%s: got %d, want %d", id, balance, initialCents-stake)
		}
		if balance < 0 {
			t.Errorf("%s: saldo negativo", id)
		}
	}
	mk, _ := h.m.Market("m1:goal")
	if mk.TotalStakedCents() != n*stake {
		t.Errorf("volume do mercado: got %d, want %d", mk.TotalStakedCents(), n*stake)
	}
}

func TestDeposit(t *testing.T) {
	h := newHarness(t)

	balance, err := h.pipe.Deposit("acc-1", 50_000)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if balance != initialCents+50_000 {
		t.Errorf("got %d, want %d", balance, initialCents+50_000)
	}
	if b, ok := h.bc.lastBalance("acc-1"); !ok || b.AmountCents != balance {
		t.Errorf("push de saldo pós-depósito: %+v", b)
	}
}

func TestReasonMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ledger.ErrInsufficientFunds, bets.ReasonInsufficientFunds},
		{engine.ErrStaleWindow, bets.ReasonStaleWindow},
		{engine.ErrMarketNotOpen, bets.ReasonMarketNotOpen},
		{engine.ErrMatchNotLive, bets.ReasonMatchNotLive},
		{engine.ErrMatchNotFound, bets.ReasonMatchNotLive},
		{bets.ErrDuplicateBet, bets.ReasonDuplicateBet},
		{errors.New("boom"), bets.ReasonInternal},
	}
	for _, tt := range tests {
		if got := bets.Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
