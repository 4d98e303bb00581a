package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrMatchNotFound = errors.New("match not found")

// Registry mantém a instância autoritativa de cada partida e aplica as
// políticas de abandono e retenção. Partidas diferentes nunca se bloqueiam:
// cada uma tem seu próprio loop de scheduling.
type Registry struct {
	log       *zap.Logger
	windowDur time.Duration
	bc        Broadcaster
	mirror    OddsMirror
	settler   Settler

	mu      sync.RWMutex
	matches map[string]*Match
}

func NewRegistry(log *zap.Logger, windowDur time.Duration) *Registry {
	return &Registry{
		log:       log,
		windowDur: windowDur,
		matches:   make(map[string]*Match),
	}
}

// Bind injeta os colaboradores criados depois do registry (gateway e
// pipeline dependem do registry, então o ciclo fecha aqui, antes de
// qualquer partida ser criada).
func (r *Registry) Bind(bc Broadcaster, mirror OddsMirror, settler Settler) {
	r.bc = bc
	r.mirror = mirror
	r.settler = settler
}

// Create agenda uma partida nova em PENDING
func (r *Registry) Create(id, homeTeam, awayTeam string, debug bool) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.matches[id]; ok {
		return nil, errors.New("match already exists")
	}
	m := New(Params{
		ID:        id,
		HomeTeam:  homeTeam,
		AwayTeam:  awayTeam,
		Debug:     debug,
		WindowDur: r.windowDur,
		Log:       r.log,
		Broadcast: r.bc,
		Mirror:    r.mirror,
		Settler:   r.settler,
	})
	r.matches[id] = m
	return m, nil
}

// CreateDebug provisiona a partida sintética com o contrato idêntico ao de
// uma partida real, distinguida só pela flag
func (r *Registry) CreateDebug() (*Match, error) {
	return r.Create(DebugMatchID, DebugHomeTeam, DebugAwayTeam, true)
}

func (r *Registry) Get(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	return m, ok
}

// List retorna as partidas registradas (ordem indefinida)
func (r *Registry) List() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.matches, id)
	r.mu.Unlock()
}

// StartJanitor roda a varredura periódica:
// - LIVE sem progresso além de abandonTimeout -> void (estorno integral)
// - FINISHED além de retention -> descarte do registro
func (r *Registry) StartJanitor(ctx context.Context, abandonTimeout, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(abandonTimeout, retention)
			}
		}
	}()
}

func (r *Registry) sweep(abandonTimeout, retention time.Duration) {
	for _, m := range r.List() {
		if abandonTimeout > 0 && m.IdleFor() > abandonTimeout {
			r.log.Warn("abandoned match, voiding", zap.String("matchId", m.ID))
			m.Abandon()
		}
		if retention > 0 && m.FinishedFor() > retention {
			r.log.Info("archiving finished match", zap.String("matchId", m.ID))
			r.remove(m.ID)
		}
	}
}
