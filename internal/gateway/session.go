package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 256
)

// Session é uma conexão de viewer. Mensagens de saída passam por um buffer;
// sessão lenta demais perde deltas em vez de travar o broadcast.
type Session struct {
	ID        string
	accountID string
	acctMu    sync.RWMutex

	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *zap.Logger

	closeOnce sync.Once
}

func newSession(id string, conn *websocket.Conn, hub *Hub, log *zap.Logger) *Session {
	return &Session{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  hub,
		log:  log.With(zap.String("sessionId", id)),
	}
}

// AccountID retorna a conta vinculada à sessão ("" se anônima)
func (s *Session) AccountID() string {
	s.acctMu.RLock()
	defer s.acctMu.RUnlock()
	return s.accountID
}

func (s *Session) bindAccount(accountID string) {
	s.acctMu.Lock()
	s.accountID = accountID
	s.acctMu.Unlock()
}

// trySend entrega sem bloquear; retorna false com o buffer cheio
func (s *Session) trySend(b []byte) bool {
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// readPump bombeia mensagens da conexão pro hub; encerra a sessão no retorno
func (s *Session) readPump() {
	defer func() {
		s.hub.drop(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMsg
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("unexpected close", zap.Error(err))
			}
			return
		}
		s.hub.handleMessage(s, msg)
	}
}

// writePump bombeia o buffer de saída pra conexão, com ping periódico
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case b, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
