package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Session is one live websocket connection, independent of the board it joins
type Session struct {
	ID          string    `json:"id"`
	BoardID     string    `json:"board_id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Participant is the presence state of one session inside a board room.
// Learning: This is separate from board content - it's ephemeral and never enters history
type Participant struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Cursor   Cursor    `json:"cursor"`
	Viewport Viewport  `json:"viewport"`
	Speaking bool      `json:"speaking"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Cursor is a pointer position in board coordinates
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the pan offset and zoom level of a participant's view
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

func NewSession(userID, userName string) *Session {
	return &Session{
		ID:          ksuid.New().String(),
		UserID:      userID,
		UserName:    userName,
		ConnectedAt: time.Now(),
	}
}

// NewParticipant creates the room presence record for a session
func NewParticipant(sessionID, userID, name, color string) *Participant {
	return &Participant{
		ID:       sessionID,
		UserID:   userID,
		Name:     name,
		Color:    color,
		Viewport: Viewport{Zoom: 1},
		JoinedAt: time.Now(),
	}
}
