package boardsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"whiteboard-sync/internal/models"
)

var (
	// ErrBoardClosed is returned by calls on a board whose worker has stopped
	ErrBoardClosed = errors.New("board closed")
	// ErrInvalidBoardID is returned for an empty board id
	ErrInvalidBoardID = errors.New("board id is required")
)

// DefaultQueueSize is the inbox depth of each board worker
const DefaultQueueSize = 64

// SnapshotStore is what the registry needs from a backing store.
// Load returns nil, nil when the board has never been saved.
type SnapshotStore interface {
	Load(ctx context.Context, boardID string) (*models.BoardState, error)
	Save(ctx context.Context, state *models.BoardState) error
	Delete(ctx context.Context, boardID string) error
}

// Registry owns the live boards: exactly one worker per board id.
// A nil store keeps boards in memory only.
type Registry struct {
	processor *Processor
	store     SnapshotStore
	queueSize int

	mu     sync.Mutex
	boards map[string]*Board
	// deleting holds a channel per board id whose stored snapshot is being
	// removed; it is closed once the delete finishes
	deleting map[string]chan struct{}
}

// NewRegistry creates an empty registry
func NewRegistry(processor *Processor, store SnapshotStore, queueSize int) *Registry {
	if processor == nil {
		processor = NewProcessor(DefaultHistoryLimit)
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Registry{
		processor: processor,
		store:     store,
		queueSize: queueSize,
		boards:    make(map[string]*Board),
		deleting:  make(map[string]chan struct{}),
	}
}

// Processor returns the processor shared by all boards
func (r *Registry) Processor() *Processor {
	return r.processor
}

// Get returns the board with the given id, starting its worker on first access.
// A stored snapshot, if any, is loaded by the worker before it serves requests.
// Get waits while a Delete of the same id is still removing the snapshot.
func (r *Registry) Get(boardID string) (*Board, error) {
	if boardID == "" {
		return nil, ErrInvalidBoardID
	}

	if err := r.lockIdle(context.Background(), boardID); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	if b, ok := r.boards[boardID]; ok {
		return b, nil
	}

	b := newBoard(boardID, r, r.queueSize)
	r.boards[boardID] = b
	go b.run()

	log.Printf("  Board %s opened (live boards: %d)", boardID, len(r.boards))
	return b, nil
}

// View runs fn on the board's current state without opening it.
// A live board is read through its worker; otherwise the stored snapshot,
// or an empty state, is loaded just for this call. fn must not modify state.
func (r *Registry) View(ctx context.Context, boardID string, fn func(state *models.BoardState)) error {
	if boardID == "" {
		return ErrInvalidBoardID
	}

	if err := r.lockIdle(ctx, boardID); err != nil {
		return err
	}
	b, live := r.boards[boardID]
	r.mu.Unlock()

	if live {
		return b.Do(ctx, func(state *models.BoardState) bool {
			fn(state)
			return false
		})
	}

	state, err := r.loadState(ctx, boardID)
	if err != nil {
		return fmt.Errorf("board %s: %w", boardID, err)
	}
	fn(state)
	return nil
}

// Stats returns the counters of one board without opening it
func (r *Registry) Stats(ctx context.Context, boardID string) (models.BoardStats, error) {
	var stats models.BoardStats
	err := r.View(ctx, boardID, func(state *models.BoardState) {
		stats = state.Stats()
	})
	return stats, err
}

// Delete stops the board's worker and removes its stored snapshot.
// No new worker for the id starts until Delete returns.
func (r *Registry) Delete(ctx context.Context, boardID string) error {
	if boardID == "" {
		return ErrInvalidBoardID
	}

	if err := r.lockIdle(ctx, boardID); err != nil {
		return err
	}
	b, ok := r.boards[boardID]
	delete(r.boards, boardID)
	done := make(chan struct{})
	r.deleting[boardID] = done
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.deleting, boardID)
		r.mu.Unlock()
		close(done)
	}()

	if ok {
		b.stop()
		select {
		case <-b.closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if r.store != nil {
		if err := r.store.Delete(ctx, boardID); err != nil {
			return fmt.Errorf("delete snapshot for board %s: %w", boardID, err)
		}
	}

	log.Printf("  Board %s deleted", boardID)
	return nil
}

// Count returns the number of live boards
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// Close stops every board worker and waits for them to exit
func (r *Registry) Close() {
	r.mu.Lock()
	boards := make([]*Board, 0, len(r.boards))
	for _, b := range r.boards {
		boards = append(boards, b)
	}
	r.boards = make(map[string]*Board)
	r.mu.Unlock()

	for _, b := range boards {
		b.stop()
	}
	for _, b := range boards {
		<-b.closed
	}

	log.Printf("✓ Board registry closed (%d boards stopped)", len(boards))
}

// lockIdle acquires r.mu once no Delete of boardID is in flight.
// On error the lock is not held.
func (r *Registry) lockIdle(ctx context.Context, boardID string) error {
	r.mu.Lock()
	for {
		done, busy := r.deleting[boardID]
		if !busy {
			return nil
		}
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.mu.Lock()
	}
}

// loadState reads the stored snapshot of a board, or a fresh state when there is none
func (r *Registry) loadState(ctx context.Context, boardID string) (*models.BoardState, error) {
	if r.store == nil {
		return models.NewBoardState(boardID), nil
	}

	state, err := r.store.Load(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if state == nil {
		return models.NewBoardState(boardID), nil
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	if state.ObjectVersions == nil {
		state.ObjectVersions = make(map[string]int)
	}
	return state, nil
}

// forget drops b from the registry if it is still the registered worker
func (r *Registry) forget(b *Board) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.boards[b.id] == b {
		delete(r.boards, b.id)
	}
}
