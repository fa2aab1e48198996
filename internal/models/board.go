package models

import (
	"encoding/json"
	"fmt"
	"time"
)

/*
LEARNING: BOARD DOCUMENT MODEL

A board is a versioned list of drawing objects plus the log of actions that
produced it. The payload of each object is an open bag of fields owned by the
client; the server only cares about three things:

1. **id**: unique within a board
2. **version**: starts at 1, +1 on every update (also during history replay)
3. **fields**: shallow-merged on update, never interpreted beyond "timestamp"

Flow:
  Operation (insert/update/delete) → apply to BoardState → HistoryEntry appended
  Undo/Redo → move HistoryIndex → replay History[0..HistoryIndex] from empty
*/

// OpType names the three mutations a board accepts
type OpType string

const (
	OpInsert OpType = "insert"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// NoHistory is the HistoryIndex of a board with no active actions
const NoHistory = -1

// Operation is a client-submitted mutation targeting one object
type Operation struct {
	Type     OpType `json:"type"`
	ObjectID string `json:"objectId"`
	Data     Fields `json:"data,omitempty"`
}

// HistoryEntry is the recorded, replayable effect of one applied operation.
// Insert entries carry Data, update entries carry Changes, delete entries carry neither.
type HistoryEntry struct {
	Action    OpType    `json:"action"`
	ObjectID  string    `json:"objectId"`
	Timestamp time.Time `json:"timestamp"`
	Data      Fields    `json:"data,omitempty"`
	Changes   Fields    `json:"changes,omitempty"`
}

// BoardState is the full in-memory document of one board.
// It is owned by exactly one board worker; nothing else may mutate it.
type BoardState struct {
	ID             string         `json:"id"`
	Version        int64          `json:"version"`
	Objects        []*BoardObject `json:"objects"`
	ObjectVersions map[string]int `json:"objectVersions"`
	History        []HistoryEntry `json:"history"`
	HistoryIndex   int            `json:"historyIndex"`
	LastModified   time.Time      `json:"lastModified"`
}

// NewBoardState returns an empty board at version 0
func NewBoardState(id string) *BoardState {
	return &BoardState{
		ID:             id,
		Objects:        []*BoardObject{},
		ObjectVersions: make(map[string]int),
		History:        []HistoryEntry{},
		HistoryIndex:   NoHistory,
		LastModified:   time.Now(),
	}
}

// IndexOf returns the position of objectID in Objects, or -1
func (s *BoardState) IndexOf(objectID string) int {
	for i, obj := range s.Objects {
		if obj.ID == objectID {
			return i
		}
	}
	return -1
}

// Object returns the live object with the given id, or nil
func (s *BoardState) Object(objectID string) *BoardObject {
	if i := s.IndexOf(objectID); i >= 0 {
		return s.Objects[i]
	}
	return nil
}

// Snapshot copies the client-visible part of the state
func (s *BoardState) Snapshot() BoardSnapshot {
	return BoardSnapshot{
		ID:           s.ID,
		Version:      s.Version,
		Objects:      CloneObjects(s.Objects),
		LastModified: s.LastModified,
	}
}

// Stats summarizes the state for monitoring endpoints
func (s *BoardState) Stats() BoardStats {
	return BoardStats{
		BoardID:       s.ID,
		ObjectCount:   len(s.Objects),
		Version:       s.Version,
		HistoryLength: len(s.History),
		HistoryIndex:  s.HistoryIndex,
		LastModified:  s.LastModified,
	}
}

// Validate checks the structural invariants a persisted state must satisfy
// before a board worker adopts it.
func (s *BoardState) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("board id is required")
	}
	if s.HistoryIndex < NoHistory || s.HistoryIndex > len(s.History)-1 {
		return fmt.Errorf("history index %d out of range for %d entries", s.HistoryIndex, len(s.History))
	}
	if len(s.ObjectVersions) != len(s.Objects) {
		return fmt.Errorf("object versions track %d objects, board has %d", len(s.ObjectVersions), len(s.Objects))
	}
	for _, obj := range s.Objects {
		if v, ok := s.ObjectVersions[obj.ID]; !ok || v != obj.Version {
			return fmt.Errorf("object %s version %d does not match tracked version %d", obj.ID, obj.Version, v)
		}
	}
	return nil
}

// BoardSnapshot is the {id, version, objects, lastModified} view sent to clients
type BoardSnapshot struct {
	ID           string         `json:"id"`
	Version      int64          `json:"version"`
	Objects      []*BoardObject `json:"objects"`
	LastModified time.Time      `json:"lastModified"`
}

// BoardStats is returned by the registry stats call
type BoardStats struct {
	BoardID       string    `json:"boardId"`
	ObjectCount   int       `json:"objectCount"`
	Version       int64     `json:"version"`
	HistoryLength int       `json:"historyLength"`
	HistoryIndex  int       `json:"historyIndex"`
	LastModified  time.Time `json:"lastModified"`
}

// MarshalJSON keeps nil object lists encoded as [] for clients
func (s BoardSnapshot) MarshalJSON() ([]byte, error) {
	type alias BoardSnapshot
	if s.Objects == nil {
		s.Objects = []*BoardObject{}
	}
	return json.Marshal(alias(s))
}
