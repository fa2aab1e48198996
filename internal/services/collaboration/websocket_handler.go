package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"whiteboard-sync/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be shorter than pongWait
	maxMessageSize = 512 * 1024       // media objects can carry inline data URLs
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Participants are not authenticated by this service
		return true
	},
}

// WebSocketHandler upgrades board connections and runs their pumps
type WebSocketHandler struct {
	sessionManager *SessionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(sessionManager *SessionManager) *WebSocketHandler {
	return &WebSocketHandler{
		sessionManager: sessionManager,
	}
}

// HandleConnection serves /ws and /ws/board/{id}.
// With a board id in the path the session joins that board right away,
// using user_id, user_name and user_color from the query string.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	boardID := mux.Vars(r)["id"]

	query := r.URL.Query()
	userID := query.Get("user_id")
	userName := query.Get("user_name")
	userColor := query.Get("user_color")

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("board.id", boardID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	session := h.sessionManager.NewSession(conn, userID, userName)

	go session.WritePump()

	// Join before reading so no client event can race ahead of the join
	if boardID != "" {
		data, _ := json.Marshal(joinPayload{UserID: userID, UserName: userName, UserColor: userColor})
		if _, err := h.sessionManager.Handle(ctx, session, InboundMessage{
			Event:   EventJoin,
			BoardID: boardID,
			UserID:  userID,
			Data:    data,
		}); err != nil {
			log.Printf("⚠️  Session %s failed to join board %s: %v", session.ID, boardID, err)
		}
	}

	go session.ReadPump(pumpContext(r))

	log.Printf("✓ WebSocket connection established (session: %s, board: %q, user: %s)",
		session.ID, boardID, userName)
}

// pumpContext is the root context for a connection's pumps. The request
// context and its spans end when the upgrade handler returns, so only the
// request id is carried over.
func pumpContext(r *http.Request) context.Context {
	return middleware.WithRequestID(context.Background(), middleware.GetRequestID(r.Context()))
}

// ReadPump reads events from the connection until it fails or closes,
// then disconnects the session
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.Manager.Disconnect(s)
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.Touch()
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		s.Touch()

		var msg InboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("⚠️  Session %s sent malformed message: %v", s.ID, err)
			continue
		}

		if _, err := s.Manager.Handle(ctx, s, msg); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			log.Printf("⚠️  Session %s: %s dropped: %v", s.ID, msg.Event, err)
		}
	}
}

// WritePump writes queued messages, one frame each, and keeps the connection alive
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Session disconnected
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
