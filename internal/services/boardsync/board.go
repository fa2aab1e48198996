package boardsync

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"whiteboard-sync/internal/models"
)

/*
LEARNING: ONE GOROUTINE PER BOARD (ACTOR PATTERN)

Each board's state is owned by a single worker goroutine. Callers never touch
the state directly: they send a closure to the worker's inbox and wait for it
to run. This gives us:

1. **Serialization**: operations on one board apply in the order received
2. **Independence**: a slow board never blocks another board's worker
3. **No shared lock**: the state pointer never leaves the goroutine

  Caller → inbox (buffered chan) → worker runs fn(state) → persist → done
*/

const persistTimeout = 5 * time.Second

// Board is a handle to one board's worker
type Board struct {
	id       string
	registry *Registry

	inbox  chan *request
	quit   chan struct{}
	closed chan struct{}
	once   sync.Once

	// err is set before closed is closed
	err error
}

type request struct {
	fn   func(state *models.BoardState) bool
	done chan struct{}
}

func newBoard(id string, registry *Registry, queueSize int) *Board {
	return &Board{
		id:       id,
		registry: registry,
		inbox:    make(chan *request, queueSize),
		quit:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// ID returns the board identifier
func (b *Board) ID() string {
	return b.id
}

// Do runs fn on the board's worker and waits for it to finish.
// fn reports whether it changed the state; changed states are persisted.
// fn must not block and must not call back into this board.
func (b *Board) Do(ctx context.Context, fn func(state *models.BoardState) bool) error {
	req := &request{fn: fn, done: make(chan struct{})}

	select {
	case b.inbox <- req:
	case <-b.closed:
		return b.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued the request is not cancellable; it either runs or the worker stops
	select {
	case <-req.done:
		return nil
	case <-b.closed:
		select {
		case <-req.done:
			return nil
		default:
			return b.closeErr()
		}
	}
}

// Apply applies op and returns the affected object, nil when it was dropped
func (b *Board) Apply(ctx context.Context, op models.Operation) (*models.BoardObject, error) {
	var applied *models.BoardObject
	err := b.Do(ctx, func(state *models.BoardState) bool {
		applied = b.registry.processor.Apply(state, op)
		return applied != nil
	})
	return applied, err
}

// Undo steps the history pointer back; nil result means nothing to undo
func (b *Board) Undo(ctx context.Context) (*HistoryMove, error) {
	var move *HistoryMove
	err := b.Do(ctx, func(state *models.BoardState) bool {
		move = b.registry.processor.Undo(state)
		return move != nil
	})
	return move, err
}

// Redo steps the history pointer forward; nil result means already at the tip
func (b *Board) Redo(ctx context.Context) (*HistoryMove, error) {
	var move *HistoryMove
	err := b.Do(ctx, func(state *models.BoardState) bool {
		move = b.registry.processor.Redo(state)
		return move != nil
	})
	return move, err
}

// Snapshot returns a copy of the client-visible state
func (b *Board) Snapshot(ctx context.Context) (models.BoardSnapshot, error) {
	var snap models.BoardSnapshot
	err := b.Do(ctx, func(state *models.BoardState) bool {
		snap = state.Snapshot()
		return false
	})
	return snap, err
}

// Stats returns counters describing the board
func (b *Board) Stats(ctx context.Context) (models.BoardStats, error) {
	var stats models.BoardStats
	err := b.Do(ctx, func(state *models.BoardState) bool {
		stats = state.Stats()
		return false
	})
	return stats, err
}

// stop asks the worker to exit after the request it is currently running
func (b *Board) stop() {
	b.once.Do(func() { close(b.quit) })
}

func (b *Board) closeErr() error {
	if b.err != nil {
		return b.err
	}
	return fmt.Errorf("board %s: %w", b.id, ErrBoardClosed)
}

// run is the worker loop; it owns state for the board's whole lifetime
func (b *Board) run() {
	defer close(b.closed)

	state, err := b.hydrate()
	if err != nil {
		b.err = fmt.Errorf("board %s: %w", b.id, err)
		log.Printf("❌ Board %s failed to load: %v", b.id, err)
		b.registry.forget(b)
		return
	}

	for {
		select {
		case <-b.quit:
			return
		case req := <-b.inbox:
			if b.exec(state, req.fn) {
				b.persist(state)
			}
			close(req.done)
		}
	}
}

// exec runs fn with panic recovery so a faulty handler cannot kill the worker
func (b *Board) exec(state *models.BoardState, fn func(*models.BoardState) bool) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  Board %s: recovered from panic: %v\n%s", b.id, r, debug.Stack())
			changed = false
		}
	}()
	return fn(state)
}

func (b *Board) hydrate() (*models.BoardState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	state, err := b.registry.loadState(ctx, b.id)
	if err != nil {
		return nil, err
	}
	if state.Version > 0 {
		log.Printf("  Board %s restored (version %d, %d objects, %d history entries)",
			b.id, state.Version, len(state.Objects), len(state.History))
	}
	return state, nil
}

// persist saves state best-effort; the in-memory mutation stands either way
func (b *Board) persist(state *models.BoardState) {
	store := b.registry.store
	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := store.Save(ctx, state); err != nil {
		log.Printf("⚠️  Board %s: failed to persist snapshot: %v", b.id, err)
	}
}
