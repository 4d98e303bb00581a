package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/internal/bets"
	"github.com/drope29/api-flashbets/internal/engine"
	"github.com/drope29/api-flashbets/internal/httpapi/dto"
	"github.com/drope29/api-flashbets/internal/ledger"
)

// Server expõe a API REST de leitura e administração: listar partidas,
// dirigir partidas sintéticas, consultar carteira e apostas.
// A colocação de apostas fica no canal WebSocket (gateway).
type Server struct {
	log      *zap.Logger
	matches  *engine.Registry
	pipeline *bets.Pipeline
	ledger   *ledger.Ledger
	ws       http.HandlerFunc
}

func NewServer(log *zap.Logger, matches *engine.Registry, pipeline *bets.Pipeline, l *ledger.Ledger, ws http.HandlerFunc) *Server {
	return &Server{log: log, matches: matches, pipeline: pipeline, ledger: l, ws: ws}
}

// Router retorna o mux HTTP com as rotas públicas
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/matches", s.matchesRoot)   // GET lista | POST cria
	mux.HandleFunc("/matches/", s.matchSubpath) // GET /{id} | POST /{id}/start|finish|events
	mux.HandleFunc("/wallet", s.getWallet)      // GET ?accountId=...
	mux.HandleFunc("/wallet/deposit", s.deposit)
	mux.HandleFunc("/bets/", s.getBet) // GET /bets/{id}
	if s.ws != nil {
		mux.HandleFunc("/ws", s.ws)
	}
	return mux
}

func (s *Server) matchesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out := make([]engine.Snapshot, 0)
		for _, m := range s.matches.List() {
			out = append(out, m.Snapshot())
		}
		writeJSON(w, out)
	case http.MethodPost:
		s.createMatch(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// createMatch agenda uma partida; debug=true provisiona a sintética, que
// tem contrato idêntico ao de uma real
func (s *Server) createMatch(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	var (
		m   *engine.Match
		err error
	)
	if req.Debug {
		m, err = s.matches.CreateDebug()
	} else {
		if req.HomeTeam == "" || req.AwayTeam == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		m, err = s.matches.Create(uuid.NewString(), req.HomeTeam, req.AwayTeam, false)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, dto.CreateMatchResponse{MatchID: m.ID, State: string(m.State())})
}

func (s *Server) matchSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/matches/")
	parts := strings.SplitN(rest, "/", 2)
	m, ok := s.matches.Get(parts[0])
	if !ok {
		http.Error(w, "match not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, m.Snapshot())
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "start":
		if err := m.Start(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	case "finish":
		m.Finish()
	case "events":
		var req dto.MatchEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Kind == "goal" {
			m.RecordGoal(req.Team)
		} else {
			m.AppendFeed(req.Kind, req.Message)
		}
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"matchId": m.ID, "state": string(m.State())})
}

// getWallet retorna o saldo autoritativo da conta (provisionando se nova)
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		http.Error(w, "accountId required", http.StatusBadRequest)
		return
	}
	cents, version := s.ledger.Balance(accountID)
	writeJSON(w, dto.WalletResponse{AccountID: accountID, BalanceCents: cents, Version: version})
}

// deposit credita saldo na conta via pipeline (broadcast + archive inclusos)
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.AccountID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	newBalance, err := s.pipeline.Deposit(req.AccountID, req.AmountCents)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, dto.WalletResponse{AccountID: req.AccountID, BalanceCents: newBalance})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/bets/")
	if id == "" {
		http.Error(w, "betId required", http.StatusBadRequest)
		return
	}
	b, ok := s.pipeline.Get(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, b)
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
