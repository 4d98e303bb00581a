package engine

import (
	"math"
	"sync"

	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

type MarketState string

const (
	MarketClosed  MarketState = "CLOSED"
	MarketOpen    MarketState = "OPEN"
	MarketLocked  MarketState = "LOCKED"
	MarketSettled MarketState = "SETTLED"
)

// Tipos de proposição suportados; o desfecho por janela vem da partida
const (
	KindGoal      = "goal"       // algum gol na janela
	KindMultiGoal = "multi_goal" // dois ou mais gols na janela
)

const minOdd = 1.01

// Market é uma proposição binária (SIM/NÃO) presa a uma janela por vez.
// As odds derretem linearmente dentro da janela (envelope base->cap) com um
// leve ruído, e são congeladas por aposta no momento do aceite.
type Market struct {
	mu sync.Mutex

	id      string
	matchID string
	label   string
	kind    string

	state       MarketState
	boundWindow int // ordinal da janela CURRENT a que o mercado está preso

	oddsYes float64
	oddsNo  float64

	// envelope de precificação dentro da janela
	baseYes float64
	baseNo  float64
	capYes  float64

	totalStakedCents int64
}

func newMarket(matchID, id, label, kind string, baseYes, baseNo, capYes float64) *Market {
	return &Market{
		id:      id,
		matchID: matchID,
		label:   label,
		kind:    kind,
		state:   MarketClosed,
		oddsYes: baseYes,
		oddsNo:  baseNo,
		baseYes: baseYes,
		baseNo:  baseNo,
		capYes:  capYes,
	}
}

func (m *Market) ID() string   { return m.id }
func (m *Market) Kind() string { return m.kind }

// Open prende o mercado à janela indicada e reabre com as odds base.
// Retorna ErrAlreadyOpen (recuperável) se já estiver OPEN.
func (m *Market) Open(windowOrdinal int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case MarketOpen:
		return ErrAlreadyOpen
	case MarketSettled:
		return ErrMarketNotOpen
	}

	m.state = MarketOpen
	m.boundWindow = windowOrdinal
	m.oddsYes = m.baseYes
	m.oddsNo = m.baseNo
	m.totalStakedCents = 0
	return nil
}

// Lock trava o mercado na virada de janela; idempotente
func (m *Market) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MarketOpen {
		m.state = MarketLocked
	}
}

// Settle marca o estado terminal do mercado no fim da partida
func (m *Market) Settle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = MarketSettled
}

// AcceptStake registra um stake contra a janela informada e devolve as odds
// congeladas no aceite. Falha com ErrMarketNotOpen se o mercado não estiver
// OPEN e com ErrStaleWindow se o ordinal for de janela já virada — fecha a
// corrida entre o rollover e o broadcast de LOCK chegar nos clientes.
func (m *Market) AcceptStake(windowOrdinal int, amountCents int64) (oddsYes, oddsNo float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != MarketOpen {
		return 0, 0, ErrMarketNotOpen
	}
	if windowOrdinal != m.boundWindow {
		return 0, 0, ErrStaleWindow
	}

	m.totalStakedCents += amountCents
	return m.oddsYes, m.oddsNo, nil
}

// SetOdds sobrescreve as odds correntes (precificador externo).
// Só tem efeito com o mercado OPEN.
func (m *Market) SetOdds(yes, no float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != MarketOpen || yes < minOdd || no < minOdd {
		return false
	}
	m.oddsYes = round2(yes)
	m.oddsNo = round2(no)
	return true
}

// reprice move as odds pela fração decorrida da janela (0..1): quanto menos
// tempo sobra, mais improvável o SIM — a odd SIM sobe até o cap e a NÃO cai
// até o piso. jitter adiciona o tremor observado nos mercados flash.
func (m *Market) reprice(progress, jitter float64) (events.MarketState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != MarketOpen {
		return events.MarketState{}, false
	}
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	yes := m.baseYes + progress*(m.capYes-m.baseYes) + jitter
	no := m.baseNo - progress*(m.baseNo-minOdd) - jitter

	m.oddsYes = round2(math.Max(minOdd, yes))
	m.oddsNo = round2(math.Max(minOdd, no))
	return m.snapshotLocked(), true
}

func (m *Market) Snapshot() events.MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Market) snapshotLocked() events.MarketState {
	return events.MarketState{
		MarketID: m.id,
		Label:    m.label,
		State:    string(m.state),
		OddsYes:  m.oddsYes,
		OddsNo:   m.oddsNo,
	}
}

func (m *Market) State() MarketState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TotalStakedCents retorna o volume aceito na janela corrente
func (m *Market) TotalStakedCents() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalStakedCents
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
