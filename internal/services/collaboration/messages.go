package collaboration

import (
	"encoding/json"
	"errors"
	"fmt"

	"whiteboard-sync/internal/models"
	"whiteboard-sync/internal/services/boardsync"
)

// Client → server events
const (
	EventJoin         = "board:join"
	EventRequestSync  = "board:request-sync"
	EventStroke       = "draw:stroke"
	EventShape        = "draw:shape"
	EventText         = "draw:text"
	EventSticky       = "draw:sticky"
	EventMedia        = "draw:media"
	EventUpdate       = "draw:update"
	EventDelete       = "draw:delete"
	EventUndo         = "draw:undo"
	EventRedo         = "draw:redo"
	EventCursorMove   = "cursor:move"
	EventCursorUpdate = "cursor:update"
	EventSpeaking     = "user:speaking"
)

// Server → client events not shared with the list above
const (
	EventSync      = "board:sync"
	EventUserJoin  = "user:join"
	EventUserLeave = "user:leave"
)

var (
	// ErrNotJoined is returned for board events from a session outside any room
	ErrNotJoined = errors.New("session has not joined a board")
	// ErrSessionClosed is returned when the session disconnected mid-request
	ErrSessionClosed = errors.New("session closed")
)

// InboundMessage is the envelope of every client event
type InboundMessage struct {
	Event   string          `json:"event"`
	BoardID string          `json:"boardId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OutboundMessage is the envelope of every server event
type OutboundMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Scope selects who receives a delivery
type Scope int

const (
	// ToSender delivers only to the session that sent the inbound event
	ToSender Scope = iota
	// ToRoom delivers to every session in the room, sender included
	ToRoom
	// ToOthers delivers to every session in the room except the sender
	ToOthers
)

// Delivery is one outbound message and its audience
type Delivery struct {
	Scope   Scope
	Message OutboundMessage
}

type joinPayload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserColor string `json:"userColor"`
}

type updatePayload struct {
	ObjectID string        `json:"objectId"`
	Changes  models.Fields `json:"changes"`
}

type deletePayload struct {
	ObjectID string `json:"objectId"`
}

type cursorMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type cursorUpdatePayload struct {
	X    float64       `json:"x"`
	Y    float64       `json:"y"`
	Pan  models.Cursor `json:"pan"`
	Zoom float64       `json:"zoom"`
}

type speakingPayload struct {
	Speaking bool `json:"speaking"`
}

// syncData is the body of board:sync
type syncData struct {
	BoardID      string                `json:"boardId"`
	RoomID       string                `json:"roomId"`
	State        models.BoardSnapshot  `json:"state"`
	Participants []*models.Participant `json:"participants"`
}

// historyData is the body of draw:undo and draw:redo
type historyData struct {
	UserID    string                 `json:"userId"`
	State     *boardsync.HistoryMove `json:"state"`
	Timestamp int64                  `json:"timestamp"`
}

// decodeData unmarshals an optional event body
func decodeData(event string, raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", event, err)
	}
	return nil
}

// drawingPayload decodes the typed variant behind a draw:* event
func drawingPayload(event string, raw json.RawMessage) (models.DrawingPayload, error) {
	var payload models.DrawingPayload
	var err error

	switch event {
	case EventStroke:
		var p models.StrokePayload
		err = decodeData(event, raw, &p)
		payload = p
	case EventShape:
		var p models.ShapePayload
		err = decodeData(event, raw, &p)
		payload = p
	case EventText:
		var p models.TextPayload
		err = decodeData(event, raw, &p)
		payload = p
	case EventSticky:
		var p models.StickyPayload
		err = decodeData(event, raw, &p)
		payload = p
	case EventMedia:
		var p models.MediaPayload
		err = decodeData(event, raw, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%s is not a drawing event", event)
	}

	if err != nil {
		return nil, err
	}
	return payload, nil
}
