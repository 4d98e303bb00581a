package topics

const (
	// Apostas
	BetAccepted = "bet_accepted"
	BetSettled  = "bet_settled"

	// Partidas
	MatchFinished = "match_finished"
)
