package engine

import "time"

// Nomes do match sintético, iguais aos usados pela suíte de verificação
const (
	DebugMatchID  = "999999"
	DebugHomeTeam = "🔥 DEBUG TEAM"
	DebugAwayTeam = "🐛 BUG HUNTERS"

	debugFeedEvery = 5 * time.Second
)

type debugLine struct {
	kind string
	msg  string
}

// Roteiro determinístico do driver de debug; repete em ciclo.
// A cada volta completa cai um gol, alternando o lado.
var debugScript = []debugLine{
	{"commentary", "Bola rolando no gramado de testes"},
	{"danger", "Pressão perigosa do 🔥 DEBUG TEAM"},
	{"commentary", "Troca de passes no meio campo"},
	{"red_card", "CARTÃO VERMELHO - 🐛 Bug Hunters (Console Log)"},
	{"commentary", "Escanteio cobrado curto"},
}

// runDebugDriver alimenta a partida sintética pelos mesmos métodos públicos
// de uma partida real: o resto do sistema não distingue os dois casos.
func (m *Match) runDebugDriver() {
	ticker := time.NewTicker(debugFeedEvery)
	defer ticker.Stop()

	tick := 0
	goals := 0
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			line := debugScript[tick%len(debugScript)]
			m.AppendFeed(line.kind, line.msg)

			tick++
			if tick%len(debugScript) == 0 {
				side := "home"
				if goals%2 == 1 {
					side = "away"
				}
				m.RecordGoal(side)
				goals++
			}
		}
	}
}
