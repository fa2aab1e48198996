package collaboration

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"whiteboard-sync/internal/models"
	"whiteboard-sync/internal/services/boardsync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

/*
LEARNING: ROOMS, PRESENCE AND BROADCAST ORDER

A room is the set of sessions attached to one board. It exists only while it
has members; the board itself lives on in the registry.

Lock order is always: board worker → sm.mu. Board events are delivered from
inside the board worker, so every member sees them in the order the board
applied them, and a joiner's board:sync snapshot is never older than the
first broadcast it receives. sm.mu is never held while waiting on a worker.

Delivery never blocks: a session whose send buffer is full is disconnected.
*/

const (
	defaultSendBuffer = 256
	idleTimeout       = 5 * time.Minute
	cleanupInterval   = 30 * time.Second
)

// SessionManager is the session gateway: it owns rooms and participants
// and is the only component that sends to connections.
type SessionManager struct {
	registry   *boardsync.Registry
	sendBuffer int
	now        func() time.Time

	mu       sync.RWMutex
	rooms    map[string]*Room     // boardID -> room
	sessions map[*Session]bool    // every live session, joined or not

	done     chan struct{}
	stopOnce sync.Once
}

// Room is the membership of one board
type Room struct {
	ID        string // fresh for every room lifetime
	BoardID   string
	CreatedAt time.Time
	members   map[string]*member // sessionID -> member
}

type member struct {
	session     *Session
	participant *models.Participant
}

// Session is one live connection
type Session struct {
	*models.Session
	Conn    *websocket.Conn
	Send    chan []byte // Buffered channel for outbound messages
	Manager *SessionManager

	lastActive atomic.Int64 // unix nanoseconds

	// guarded by Manager.mu
	boardID string
	closed  bool
}

// NewSessionManager creates a gateway over registry
func NewSessionManager(registry *boardsync.Registry, sendBuffer int) *SessionManager {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &SessionManager{
		registry:   registry,
		sendBuffer: sendBuffer,
		now:        time.Now,
		rooms:      make(map[string]*Room),
		sessions:   make(map[*Session]bool),
		done:       make(chan struct{}),
	}
}

// Start begins the idle session reaper
func (sm *SessionManager) Start() {
	log.Println("🔄 Starting board session manager...")
	go sm.cleanupLoop()
	log.Println("✓ Board session manager started")
}

// NewSession registers a connection. conn may be nil for in-process clients.
func (sm *SessionManager) NewSession(conn *websocket.Conn, userID, userName string) *Session {
	s := &Session{
		Session: models.NewSession(userID, userName),
		Conn:    conn,
		Send:    make(chan []byte, sm.sendBuffer),
		Manager: sm,
	}
	s.Touch()

	sm.mu.Lock()
	sm.sessions[s] = true
	sm.mu.Unlock()

	return s
}

// Touch marks the session as active now
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last inbound traffic
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// JoinedBoard returns the board the session is in, or ""
func (s *Session) JoinedBoard() string {
	s.Manager.mu.RLock()
	defer s.Manager.mu.RUnlock()
	return s.boardID
}

// Participants returns the roster of a board, oldest member first
func (sm *SessionManager) Participants(boardID string) []*models.Participant {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.rosterLocked(boardID)
}

// RoomCount returns the number of rooms with at least one member
func (sm *SessionManager) RoomCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.rooms)
}

// SessionCount returns the number of open sessions
func (sm *SessionManager) SessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) rosterLocked(boardID string) []*models.Participant {
	room := sm.rooms[boardID]
	if room == nil {
		return []*models.Participant{}
	}

	roster := make([]*models.Participant, 0, len(room.members))
	for _, m := range room.members {
		p := *m.participant
		roster = append(roster, &p)
	}
	sort.Slice(roster, func(i, j int) bool {
		if roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].ID < roster[j].ID
		}
		return roster[i].JoinedAt.Before(roster[j].JoinedAt)
	})
	return roster
}

// addParticipant puts s into the room of boardID, creating the room if needed.
// It returns the room and the roster including the new participant.
func (sm *SessionManager) addParticipant(boardID string, s *Session, p *models.Participant) (*Room, []*models.Participant, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s.closed {
		return nil, nil, ErrSessionClosed
	}

	room := sm.rooms[boardID]
	if room == nil {
		room = &Room{
			ID:        uuid.New().String(),
			BoardID:   boardID,
			CreatedAt: sm.now(),
			members:   make(map[string]*member),
		}
		sm.rooms[boardID] = room
	}

	room.members[s.ID] = &member{session: s, participant: p}
	s.boardID = boardID
	s.BoardID = boardID

	log.Printf("  Session %s joined board %s (total: %d users)", s.ID, boardID, len(room.members))
	return room, sm.rosterLocked(boardID), nil
}

// removeMemberLocked takes s out of its room, destroying the room when it empties
func (sm *SessionManager) removeMemberLocked(s *Session) (string, *models.Participant) {
	boardID := s.boardID
	if boardID == "" {
		return "", nil
	}
	s.boardID = ""

	room := sm.rooms[boardID]
	if room == nil {
		return boardID, nil
	}
	m, ok := room.members[s.ID]
	if !ok {
		return boardID, nil
	}
	delete(room.members, s.ID)

	if len(room.members) == 0 {
		delete(sm.rooms, boardID)
		log.Printf("  Room for board %s closed", boardID)
	}

	log.Printf("  Session %s left board %s (remaining: %d users)", s.ID, boardID, len(room.members))
	return boardID, m.participant
}

// updateParticipant runs fn on the sender's participant record
func (sm *SessionManager) updateParticipant(s *Session, fn func(p *models.Participant)) (string, *models.Participant, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s.boardID == "" {
		return "", nil, ErrNotJoined
	}
	room := sm.rooms[s.boardID]
	if room == nil || room.members[s.ID] == nil {
		return "", nil, ErrNotJoined
	}

	p := room.members[s.ID].participant
	fn(p)
	snapshot := *p
	return s.boardID, &snapshot, nil
}

// membership returns the board and participant of a joined session
func (sm *SessionManager) membership(s *Session) (string, *models.Participant, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if s.closed {
		return "", nil, ErrSessionClosed
	}
	room := sm.rooms[s.boardID]
	if s.boardID == "" || room == nil || room.members[s.ID] == nil {
		return "", nil, ErrNotJoined
	}
	p := *room.members[s.ID].participant
	return s.boardID, &p, nil
}

// leaveRoom removes s from its current room and tells the remaining members
func (sm *SessionManager) leaveRoom(s *Session) {
	sm.mu.Lock()
	boardID, p := sm.removeMemberLocked(s)
	sm.mu.Unlock()

	if p != nil {
		sm.deliver(boardID, s, []Delivery{sm.leaveDelivery(p)})
	}
}

func (sm *SessionManager) leaveDelivery(p *models.Participant) Delivery {
	return Delivery{
		Scope: ToRoom,
		Message: OutboundMessage{
			Event: EventUserLeave,
			Data: map[string]any{
				"userId":    p.UserID,
				"name":      p.Name,
				"timestamp": sm.now().UnixMilli(),
			},
		},
	}
}

// Disconnect tears down a session: leaves its room and closes its send queue.
// Calling it more than once is a no-op.
func (sm *SessionManager) Disconnect(s *Session) {
	sm.mu.Lock()
	if s.closed {
		sm.mu.Unlock()
		return
	}
	s.closed = true
	delete(sm.sessions, s)
	boardID, p := sm.removeMemberLocked(s)
	close(s.Send)
	sm.mu.Unlock()

	if p != nil {
		sm.deliver(boardID, s, []Delivery{sm.leaveDelivery(p)})
	}
}

// deliver sends each delivery to its audience without blocking
func (sm *SessionManager) deliver(boardID string, sender *Session, deliveries []Delivery) {
	var slow []*Session

	sm.mu.RLock()
	room := sm.rooms[boardID]
	for _, d := range deliveries {
		payload, err := json.Marshal(d.Message)
		if err != nil {
			log.Printf("⚠️  Failed to encode %s for board %s: %v", d.Message.Event, boardID, err)
			continue
		}

		switch d.Scope {
		case ToSender:
			if sender != nil && !trySend(sender, payload) {
				slow = append(slow, sender)
			}
		case ToRoom, ToOthers:
			if room == nil {
				continue
			}
			for _, m := range room.members {
				if d.Scope == ToOthers && m.session == sender {
					continue
				}
				if !trySend(m.session, payload) {
					slow = append(slow, m.session)
				}
			}
		}
	}
	sm.mu.RUnlock()

	for _, s := range slow {
		sm.kick(s)
	}
}

// trySend queues payload; false means the buffer is full. Caller holds sm.mu.
func trySend(s *Session, payload []byte) bool {
	if s.closed {
		return true
	}
	select {
	case s.Send <- payload:
		return true
	default:
		return false
	}
}

// kick drops a slow or idle session. Closing the socket ends its read pump,
// which performs the regular disconnect.
func (sm *SessionManager) kick(s *Session) {
	log.Printf("⚠️  Session %s is slow or idle, closing connection", s.ID)
	if s.Conn != nil {
		s.Conn.Close()
		return
	}
	sm.Disconnect(s)
}

// cleanupLoop periodically removes inactive sessions
func (sm *SessionManager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
			sm.reapIdle(idleTimeout)
		}
	}
}

// reapIdle disconnects sessions without inbound traffic for longer than timeout
func (sm *SessionManager) reapIdle(timeout time.Duration) int {
	cutoff := sm.now().Add(-timeout)

	sm.mu.RLock()
	var idle []*Session
	for s := range sm.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	sm.mu.RUnlock()

	for _, s := range idle {
		log.Printf("  Cleaning up inactive session %s", s.ID)
		sm.kick(s)
	}
	return len(idle)
}

// Shutdown gracefully closes all connections
func (sm *SessionManager) Shutdown() {
	log.Println("🛑 Shutting down session manager...")

	sm.stopOnce.Do(func() { close(sm.done) })

	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	// Closing Send makes each write pump send a close frame and hang up
	for _, s := range sessions {
		sm.Disconnect(s)
	}

	log.Println("✓ Session manager shutdown complete")
}
