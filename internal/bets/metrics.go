package bets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	betsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashbets_bets_accepted_total",
		Help: "Apostas aceitas pelo pipeline",
	})

	betsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashbets_bets_rejected_total",
		Help: "Apostas rejeitadas, por razão",
	}, []string{"reason"})
)
