package engine

import (
	"time"

	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

type WindowState string

const (
	WindowCurrent WindowState = "CURRENT"
	WindowNext    WindowState = "NEXT"
	WindowExpired WindowState = "EXPIRED"
)

// Window é um intervalo fixo de aposta. Por partida LIVE existem exatamente
// uma CURRENT e uma NEXT, com CURRENT.End == NEXT.Start.
type Window struct {
	Ordinal int
	Start   time.Time
	End     time.Time
	State   WindowState
}

func (w *Window) snapshot() events.WindowSnapshot {
	return events.WindowSnapshot{
		Ordinal:     w.Ordinal,
		StartUnixMs: w.Start.UnixMilli(),
		EndUnixMs:   w.End.UnixMilli(),
	}
}
