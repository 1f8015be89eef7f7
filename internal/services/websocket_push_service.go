package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 64
)

// Connection is one websocket client of a user
type Connection struct {
	ID     string
	UserID uint64
	Conn   *websocket.Conn
	Send   chan []byte
}

// PushMessage is the frame written to websocket clients
type PushMessage struct {
	Type      string             `json:"type"`
	MessageID string             `json:"message_id"`
	Timestamp string             `json:"timestamp"`
	Data      events.LedgerEvent `json:"data"`
}

// WebSocketPushService pushes ledger events to the owning user's open websockets
type WebSocketPushService struct {
	upgrader  websocket.Upgrader
	logger    logrus.FieldLogger
	mu        sync.RWMutex
	userConns map[uint64]map[string]*Connection
}

// NewWebSocketPushService creates the hub. allowOrigin decides cross-origin upgrades; nil allows all.
func NewWebSocketPushService(allowOrigin func(origin string) bool, logger logrus.FieldLogger) *WebSocketPushService {
	s := &WebSocketPushService{
		logger:    logger,
		userConns: make(map[uint64]map[string]*Connection),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowOrigin == nil || origin == "" {
				return true
			}
			return allowOrigin(origin)
		},
	}
	return s
}

// Notify implements events.Notifier. Slow clients drop messages rather than block the caller.
func (s *WebSocketPushService) Notify(_ context.Context, event events.LedgerEvent) {
	if s.UserConnections(event.UserID) == 0 {
		return
	}

	data, err := json.Marshal(PushMessage{
		Type:      event.Type,
		MessageID: uuid.NewString(),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event,
	})
	if err != nil {
		s.logger.WithError(err).Error("❌ [WebSocketPush] Failed to marshal message")
		return
	}

	// Send channels are only closed under the write lock
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.userConns[event.UserID] {
		select {
		case c.Send <- data:
		default:
			s.logger.WithFields(logrus.Fields{"user_id": c.UserID, "conn_id": c.ID}).Warn("⚠️ [WebSocketPush] Send buffer full, message dropped")
		}
	}
}

// HandleWebSocket upgrades the request and serves pushes for userID until the client goes away
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, userID uint64) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("❌ [WebSocketPush] Upgrade failed")
		return
	}

	conn := &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   ws,
		Send:   make(chan []byte, wsSendBuffer),
	}
	s.register(conn)

	go s.writePump(conn)
	go s.readPump(conn)
}

// ActiveConnections is the number of open websockets
func (s *WebSocketPushService) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, conns := range s.userConns {
		n += len(conns)
	}
	return n
}

// UserConnections is the number of open websockets of userID
func (s *WebSocketPushService) UserConnections(userID uint64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.userConns[userID])
}

func (s *WebSocketPushService) register(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userConns[conn.UserID] == nil {
		s.userConns[conn.UserID] = make(map[string]*Connection)
	}
	s.userConns[conn.UserID][conn.ID] = conn
	s.logger.WithFields(logrus.Fields{"user_id": conn.UserID, "conn_id": conn.ID}).Info("📱 [WebSocketPush] Connection registered")
}

func (s *WebSocketPushService) unregister(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.userConns[conn.UserID]
	if !ok {
		return
	}
	if _, ok := conns[conn.ID]; !ok {
		return
	}
	delete(conns, conn.ID)
	if len(conns) == 0 {
		delete(s.userConns, conn.UserID)
	}
	close(conn.Send)
	s.logger.WithFields(logrus.Fields{"user_id": conn.UserID, "conn_id": conn.ID}).Info("📱 [WebSocketPush] Connection unregistered")
}

// Close drops every connection
func (s *WebSocketPushService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, conns := range s.userConns {
		for _, c := range conns {
			close(c.Send)
		}
		delete(s.userConns, userID)
	}
}

func (s *WebSocketPushService) writePump(conn *Connection) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) readPump(conn *Connection) {
	defer func() {
		s.unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	_ = conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Debug("[WebSocketPush] Read error")
			}
			return
		}
	}
}
