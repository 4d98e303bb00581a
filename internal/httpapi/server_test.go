package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/internal/bets"
	"github.com/drope29/api-flashbets/internal/engine"
	"github.com/drope29/api-flashbets/internal/httpapi/dto"
	"github.com/drope29/api-flashbets/internal/ledger"
)

func newTestServer(t *testing.T) (*httptest.Server, *engine.Registry) {
	t.Helper()
	log := zap.NewNop()
	led := ledger.New(100_000)
	reg := engine.NewRegistry(log, time.Hour)
	pipe := bets.NewPipeline(log, led, reg)
	reg.Bind(nil, nil, pipe)
	pipe.Bind(nil, nil, nil)

	srv := httptest.NewServer(NewServer(log, reg, pipe, led, nil).Router())
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		for _, m := range reg.List() {
			m.Finish()
		}
	})
	return srv, reg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestWalletProvisionsInitialBalance(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/wallet?accountId=acc-1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	wallet := decode[dto.WalletResponse](t, resp)
	if wallet.BalanceCents != 100_000 {
		t.Errorf("saldo: got %d, want 100000", wallet.BalanceCents)
	}
	if wallet.Version != 1 {
		t.Errorf("versão: got %d, want 1", wallet.Version)
	}

	// sem accountId é 400
	resp, _ = http.Get(srv.URL + "/wallet")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("sem accountId: got %d, want 400", resp.StatusCode)
	}
}

func TestCreateAndDriveMatch(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/matches", dto.CreateMatchRequest{HomeTeam: "Casa", AwayTeam: "Fora"})
	created := decode[dto.CreateMatchResponse](t, resp)
	if created.MatchID == "" || created.State != "PENDING" {
		t.Fatalf("create: %+v", created)
	}

	resp = postJSON(t, srv.URL+"/matches/"+created.MatchID+"/start", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: %d", resp.StatusCode)
	}
	// start duplo conflita
	resp = postJSON(t, srv.URL+"/matches/"+created.MatchID+"/start", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("start duplo: got %d, want 409", resp.StatusCode)
	}

	// gol via endpoint de eventos
	resp = postJSON(t, srv.URL+"/matches/"+created.MatchID+"/events",
		dto.MatchEventRequest{Kind: "goal", Team: "home"})
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/matches/" + created.MatchID)
	snap := decode[engine.Snapshot](t, resp)
	if snap.State != "LIVE" {
		t.Errorf("estado: got %s, want LIVE", snap.State)
	}
	if snap.HomeScore != 1 {
		t.Errorf("placar: got %d, want 1", snap.HomeScore)
	}
	if snap.Current == nil || snap.Next == nil || snap.Current.EndUnixMs != snap.Next.StartUnixMs {
		t.Errorf("par de janelas inconsistente: %+v / %+v", snap.Current, snap.Next)
	}
	if len(snap.Markets) != 2 {
		t.Errorf("mercados: got %d, want 2", len(snap.Markets))
	}
	if len(snap.Feed) != 1 {
		t.Errorf("feed: got %d, want 1", len(snap.Feed))
	}

	resp = postJSON(t, srv.URL+"/matches/"+created.MatchID+"/finish", struct{}{})
	resp.Body.Close()
	resp, _ = http.Get(srv.URL + "/matches/" + created.MatchID)
	if snap := decode[engine.Snapshot](t, resp); snap.State != "FINISHED" {
		t.Errorf("pós-finish: got %s, want FINISHED", snap.State)
	}
}

func TestCreateDebugMatch(t *testing.T) {
	srv, reg := newTestServer(t)

	resp := postJSON(t, srv.URL+"/matches", dto.CreateMatchRequest{Debug: true})
	created := decode[dto.CreateMatchResponse](t, resp)
	if created.MatchID != engine.DebugMatchID {
		t.Errorf("got %s, want %s", created.MatchID, engine.DebugMatchID)
	}
	m, ok := reg.Get(engine.DebugMatchID)
	if !ok || !m.Debug {
		t.Error("partida sintética não registrada com a flag")
	}

	// só uma sintética por vez
	resp = postJSON(t, srv.URL+"/matches", dto.CreateMatchRequest{Debug: true})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("debug duplo: got %d, want 409", resp.StatusCode)
	}
}

func TestCreateMatchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/matches", dto.CreateMatchRequest{HomeTeam: "Casa"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("payload incompleto: got %d, want 400", resp.StatusCode)
	}
}

func TestDeposit(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/wallet/deposit",
		dto.DepositRequest{AccountID: "acc-1", AmountCents: 25_000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	wallet := decode[dto.WalletResponse](t, resp)
	if wallet.BalanceCents != 125_000 {
		t.Errorf("saldo: got %d, want 125000", wallet.BalanceCents)
	}

	resp = postJSON(t, srv.URL+"/wallet/deposit",
		dto.DepositRequest{AccountID: "acc-1", AmountCents: -1})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("valor negativo: got %d, want 400", resp.StatusCode)
	}
}

func TestGetBetNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := http.Get(srv.URL + "/bets/nope")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got %d, want 404", resp.StatusCode)
	}
}

func TestMatchNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := http.Get(srv.URL + "/matches/nope")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got %d, want 404", resp.StatusCode)
	}
}
