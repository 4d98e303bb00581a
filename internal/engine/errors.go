package engine

import (
	"errors"
	"fmt"
)

var (
	ErrMatchNotLive  = errors.New("match not live")
	ErrMarketNotOpen = errors.New("market not open")
	ErrAlreadyOpen   = errors.New("market already open") // benigno, ignorado pelo chamador

	// ErrStaleWindow é subtipo de ErrMarketNotOpen: a aposta chegou com o
	// ordinal da janela anterior, no instante da virada. Rejeitamos em vez de
	// aplicar silenciosamente na janela nova.
	ErrStaleWindow = fmt.Errorf("%w: stale window", ErrMarketNotOpen)
)
