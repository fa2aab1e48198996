package api

import (
	"context"

	"whiteboard-sync/internal/models"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES

The handlers only need a handful of registry and gateway calls, so those are
declared here. Tests can pass the real in-memory registry or a stub.
*/

// BoardRegistry is what handlers need from the board registry
type BoardRegistry interface {
	View(ctx context.Context, boardID string, fn func(state *models.BoardState)) error
	Stats(ctx context.Context, boardID string) (models.BoardStats, error)
	Delete(ctx context.Context, boardID string) error
	Count() int
}

// Presence is what handlers need from the session gateway
type Presence interface {
	Participants(boardID string) []*models.Participant
	RoomCount() int
	SessionCount() int
}
