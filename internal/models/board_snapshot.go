package models

import (
	"time"
)

/*
LEARNING: BOARD SNAPSHOT PERSISTENCE

The live board is authoritative in memory. A snapshot row is the whole
BoardState (objects, history, history index, version) serialized after every
state-changing operation, so a restarted server can hydrate the board and
keep undo/redo working.

Flow:
  Board worker applies op → Save(snapshot) → UPSERT board_snapshots row
  First access after restart → Load(boardID) → worker adopts the state
*/

// BoardSnapshotRecord stores one serialized BoardState per board
type BoardSnapshotRecord struct {
	BoardID      string    `gorm:"type:varchar(128);primaryKey" json:"board_id"`
	Version      int64     `gorm:"not null;default:0" json:"version"`
	ObjectCount  int       `gorm:"not null;default:0" json:"object_count"`
	State        []byte    `gorm:"type:bytea;not null" json:"-"` // JSON-encoded BoardState
	LastModified time.Time `gorm:"index" json:"last_modified"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName override
func (BoardSnapshotRecord) TableName() string {
	return "board_snapshots"
}
