package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

type State string

const (
	StatePending  State = "PENDING"
	StateLive     State = "LIVE"
	StateFinished State = "FINISHED"
)

// Broadcaster fan-out dos deltas para os viewers de uma partida e para as
// sessões de uma conta. Implementado pelo gateway; nil desliga o push.
type Broadcaster interface {
	PublishMatch(matchID string, p events.Push)
	PublishAccount(accountID string, p events.Push)
}

// Settler liquida (ou anula) as apostas ACCEPTED quando a partida termina.
// Implementado pelo pipeline de apostas.
type Settler interface {
	SettleMatch(m *Match)
	VoidMatch(m *Match)
}

// OddsMirror espelha odds correntes num cache externo (Redis) pra consumo
// de outros serviços; best-effort, nil desliga.
type OddsMirror interface {
	SetOdds(ctx context.Context, matchID, marketID string, yes, no float64)
}

// Params agrupa as dependências e parâmetros de criação de uma partida
type Params struct {
	ID        string
	HomeTeam  string
	AwayTeam  string
	Debug     bool
	WindowDur time.Duration
	Log       *zap.Logger
	Broadcast Broadcaster
	Mirror    OddsMirror
	Settler   Settler

	now func() time.Time // injetável em teste
}

// Match é a instância autoritativa única de uma partida: dona das janelas,
// dos mercados e do feed. Viewers referenciam, nunca copiam.
type Match struct {
	ID       string
	HomeTeam string
	AwayTeam string
	Debug    bool

	log       *zap.Logger
	bc        Broadcaster
	mirror    OddsMirror
	settler   Settler
	windowDur time.Duration
	now       func() time.Time

	mu            sync.Mutex
	state         State
	voided        bool
	homeScore     int
	awayScore     int
	startedAt     time.Time
	finishedAt    time.Time
	lastProgress  time.Time
	cur           *Window
	next          *Window
	markets       map[string]*Market
	marketOrder   []string
	feed          []events.FeedEntry
	feedSeq       int64
	goalsByWindow map[int]int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New cria a partida em PENDING com os dois mercados padrão de flash betting
func New(p Params) *Match {
	if p.Log == nil {
		p.Log = zap.NewNop()
	}
	if p.WindowDur <= 0 {
		p.WindowDur = time.Minute
	}
	if p.now == nil {
		p.now = time.Now
	}

	m := &Match{
		ID:            p.ID,
		HomeTeam:      p.HomeTeam,
		AwayTeam:      p.AwayTeam,
		Debug:         p.Debug,
		log:           p.Log.With(zap.String("matchId", p.ID)),
		bc:            p.Broadcast,
		mirror:        p.Mirror,
		settler:       p.Settler,
		windowDur:     p.WindowDur,
		now:           p.now,
		state:         StatePending,
		markets:       make(map[string]*Market),
		goalsByWindow: make(map[int]int),
		stopCh:        make(chan struct{}),
	}

	// Envelopes recuperados dos mercados flash: SIM derrete pra cima conforme
	// a janela se esgota, NÃO desce até o piso
	m.addMarket(newMarket(m.ID, m.ID+":goal", "Gol nesta janela?", KindGoal, 2.50, 1.50, 10.00))
	m.addMarket(newMarket(m.ID, m.ID+":multi_goal", "Dois ou mais gols nesta janela?", KindMultiGoal, 4.50, 1.15, 15.00))

	return m
}

func (m *Match) addMarket(mk *Market) {
	m.markets[mk.id] = mk
	m.marketOrder = append(m.marketOrder, mk.id)
}

// Start faz a transição PENDING -> LIVE: arma o par de janelas, abre os
// mercados e dispara o loop de scheduling da partida (um por partida LIVE).
func (m *Match) Start() error {
	m.mu.Lock()
	if m.state != StatePending {
		m.mu.Unlock()
		return ErrMatchNotLive
	}

	now := m.now()
	m.state = StateLive
	m.startedAt = now
	m.lastProgress = now
	m.cur = &Window{Ordinal: 1, Start: now, End: now.Add(m.windowDur), State: WindowCurrent}
	m.next = &Window{Ordinal: 2, Start: m.cur.End, End: m.cur.End.Add(m.windowDur), State: WindowNext}

	var snaps []events.MarketState
	for _, id := range m.marketOrder {
		mk := m.markets[id]
		if err := mk.Open(m.cur.Ordinal); err == nil {
			snaps = append(snaps, mk.Snapshot())
		}
	}
	roll := &events.WindowRollover{Current: m.cur.snapshot(), Next: m.next.snapshot()}
	state := m.matchStateLocked()
	m.mu.Unlock()

	m.publish(events.Push{Type: events.PushMatchState, Match: &state})
	m.publish(events.Push{Type: events.PushWindowRollover, Rollover: roll})
	for i := range snaps {
		m.publish(events.Push{Type: events.PushMarketState, Market: &snaps[i]})
	}

	m.log.Info("match live", zap.Duration("windowDur", m.windowDur), zap.Bool("debug", m.Debug))

	go m.run()
	if m.Debug {
		go m.runDebugDriver()
	}
	return nil
}

// run é o loop de scheduling da partida: um tick de rollover por janela e um
// tick de 1s pro derretimento das odds. Para no Finish/Abandon.
func (m *Match) run() {
	roll := time.NewTicker(m.windowDur)
	odds := time.NewTicker(time.Second)
	defer roll.Stop()
	defer odds.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-roll.C:
			m.rollover()
		case <-odds.C:
			m.tickOdds()
		}
	}
}

// rollover trava os mercados da janela CURRENT, promove NEXT, cria a nova
// NEXT e reabre os mercados contra a janela promovida.
// Se a partida saiu de LIVE entre ticks, a última janela fica LOCKED.
func (m *Match) rollover() {
	m.mu.Lock()
	if m.state != StateLive {
		m.mu.Unlock()
		return
	}

	var snaps []events.MarketState
	for _, id := range m.marketOrder {
		m.markets[id].Lock()
	}

	m.cur.State = WindowExpired
	m.next.State = WindowCurrent
	m.cur = m.next
	m.next = &Window{
		Ordinal: m.cur.Ordinal + 1,
		Start:   m.cur.End,
		End:     m.cur.End.Add(m.windowDur),
		State:   WindowNext,
	}

	for _, id := range m.marketOrder {
		mk := m.markets[id]
		if err := mk.Open(m.cur.Ordinal); err == nil || err == ErrAlreadyOpen {
			snaps = append(snaps, mk.Snapshot())
		}
	}

	m.lastProgress = m.now()
	roll := &events.WindowRollover{Current: m.cur.snapshot(), Next: m.next.snapshot()}
	m.mu.Unlock()

	m.publish(events.Push{Type: events.PushWindowRollover, Rollover: roll})
	for i := range snaps {
		m.publish(events.Push{Type: events.PushMarketState, Market: &snaps[i]})
	}
	m.mirrorOdds(snaps)
}

// tickOdds reprecifica os mercados OPEN pela fração decorrida da janela
func (m *Match) tickOdds() {
	m.mu.Lock()
	if m.state != StateLive || m.cur == nil {
		m.mu.Unlock()
		return
	}
	elapsed := m.now().Sub(m.cur.Start)
	progress := float64(elapsed) / float64(m.windowDur)

	var snaps []events.MarketState
	for _, id := range m.marketOrder {
		jitter := rand.Float64()*0.04 - 0.02
		if snap, ok := m.markets[id].reprice(progress, jitter); ok {
			snaps = append(snaps, snap)
		}
	}
	m.mu.Unlock()

	for i := range snaps {
		m.publish(events.Push{Type: events.PushMarketState, Market: &snaps[i]})
	}
	m.mirrorOdds(snaps)
}

// Finish faz LIVE -> FINISHED: para o scheduler, trava e liquida os mercados
// e dispara a liquidação das apostas ACCEPTED. Idempotente.
func (m *Match) Finish() {
	m.terminate(false)
}

// Abandon aplica a política de partida abandonada: mesmo caminho terminal do
// Finish, mas as apostas ACCEPTED são anuladas com estorno integral.
func (m *Match) Abandon() {
	m.terminate(true)
}

func (m *Match) terminate(void bool) {
	m.mu.Lock()
	if m.state == StateFinished {
		m.mu.Unlock()
		return
	}
	m.state = StateFinished
	m.voided = void
	m.finishedAt = m.now()

	for _, id := range m.marketOrder {
		mk := m.markets[id]
		mk.Lock()
		mk.Settle()
	}
	state := m.matchStateLocked()
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })

	m.publish(events.Push{Type: events.PushMatchState, Match: &state})
	for _, id := range m.marketOrder {
		snap := m.markets[id].Snapshot()
		m.publish(events.Push{Type: events.PushMarketState, Market: &snap})
	}

	if m.settler != nil {
		if void {
			m.log.Info("match voided")
			m.settler.VoidMatch(m)
		} else {
			m.log.Info("match finished")
			m.settler.SettleMatch(m)
		}
	}
}

// RecordGoal contabiliza um gol na janela corrente e publica a linha de feed
func (m *Match) RecordGoal(team string) {
	m.mu.Lock()
	if m.state != StateLive {
		m.mu.Unlock()
		return
	}
	name := m.HomeTeam
	if team == "away" {
		name = m.AwayTeam
		m.awayScore++
	} else {
		m.homeScore++
	}
	m.goalsByWindow[m.cur.Ordinal]++
	m.lastProgress = m.now()
	entry := m.appendFeedLocked("goal", "GOL! "+name)
	state := m.matchStateLocked()
	m.mu.Unlock()

	m.publish(events.Push{Type: events.PushMatchFeed, Feed: &entry})
	m.publish(events.Push{Type: events.PushMatchState, Match: &state})
}

// AppendFeed adiciona uma linha arbitrária ao feed append-only da partida
func (m *Match) AppendFeed(kind, message string) {
	m.mu.Lock()
	if m.state == StatePending {
		m.mu.Unlock()
		return
	}
	entry := m.appendFeedLocked(kind, message)
	m.mu.Unlock()

	m.publish(events.Push{Type: events.PushMatchFeed, Feed: &entry})
}

func (m *Match) appendFeedLocked(kind, message string) events.FeedEntry {
	m.feedSeq++
	now := m.now()
	entry := events.FeedEntry{
		Seq:      m.feedSeq,
		Kind:     kind,
		Message:  message,
		Minute:   m.minuteLocked(now),
		TsUnixMs: now.UnixMilli(),
	}
	m.feed = append(m.feed, entry)
	return entry
}

func (m *Match) minuteLocked(now time.Time) int {
	if m.startedAt.IsZero() {
		return 0
	}
	return int(now.Sub(m.startedAt) / time.Minute)
}

func (m *Match) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Voided informa se a partida terminou pela política de abandono
func (m *Match) Voided() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voided
}

// Market retorna o mercado pelo id
func (m *Match) Market(id string) (*Market, bool) {
	mk, ok := m.markets[id] // mapa imutável após New
	return mk, ok
}

// Markets retorna os mercados na ordem de criação
func (m *Match) Markets() []*Market {
	out := make([]*Market, 0, len(m.marketOrder))
	for _, id := range m.marketOrder {
		out = append(out, m.markets[id])
	}
	return out
}

// CurrentWindowOrdinal retorna o ordinal da janela CURRENT (0 se PENDING)
func (m *Match) CurrentWindowOrdinal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return 0
	}
	return m.cur.Ordinal
}

// OutcomeYes resolve a proposição do mercado para uma janela já decorrida
func (m *Match) OutcomeYes(marketID string, windowOrdinal int) bool {
	mk, ok := m.markets[marketID]
	if !ok {
		return false
	}
	m.mu.Lock()
	goals := m.goalsByWindow[windowOrdinal]
	m.mu.Unlock()

	switch mk.kind {
	case KindGoal:
		return goals > 0
	case KindMultiGoal:
		return goals >= 2
	}
	return false
}

// IdleFor mede há quanto tempo a partida LIVE não registra progresso;
// usado pela varredura de abandono
func (m *Match) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLive {
		return 0
	}
	return m.now().Sub(m.lastProgress)
}

// FinishedFor mede há quanto tempo a partida está FINISHED (0 se não está)
func (m *Match) FinishedFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFinished {
		return 0
	}
	return m.now().Sub(m.finishedAt)
}

func (m *Match) matchStateLocked() events.MatchState {
	return events.MatchState{
		State:     string(m.state),
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		HomeScore: m.homeScore,
		AwayScore: m.awayScore,
		Debug:     m.Debug,
	}
}

// Snapshot monta a visão completa enviada no subscribe e no GET /matches/{id}
type Snapshot struct {
	ID        string                 `json:"id"`
	HomeTeam  string                 `json:"home_team"`
	AwayTeam  string                 `json:"away_team"`
	Debug     bool                   `json:"debug,omitempty"`
	State     string                 `json:"state"`
	HomeScore int                    `json:"home_score"`
	AwayScore int                    `json:"away_score"`
	Current   *events.WindowSnapshot `json:"current_window,omitempty"`
	Next      *events.WindowSnapshot `json:"next_window,omitempty"`
	Markets   []events.MarketState   `json:"markets"`
	Feed      []events.FeedEntry     `json:"feed"`
}

func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{
		ID:        m.ID,
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		Debug:     m.Debug,
		State:     string(m.state),
		HomeScore: m.homeScore,
		AwayScore: m.awayScore,
		Feed:      append([]events.FeedEntry(nil), m.feed...),
	}
	if m.cur != nil {
		cur := m.cur.snapshot()
		nxt := m.next.snapshot()
		s.Current, s.Next = &cur, &nxt
	}
	m.mu.Unlock()

	for _, mk := range m.Markets() {
		s.Markets = append(s.Markets, mk.Snapshot())
	}
	return s
}

func (m *Match) publish(p events.Push) {
	if m.bc == nil {
		return
	}
	p.MatchID = m.ID
	m.bc.PublishMatch(m.ID, p)
}

func (m *Match) mirrorOdds(snaps []events.MarketState) {
	if m.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	for _, s := range snaps {
		m.mirror.SetOdds(ctx, m.ID, s.MarketID, s.OddsYes, s.OddsNo)
	}
}
