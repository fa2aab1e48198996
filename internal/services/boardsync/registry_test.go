package boardsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"whiteboard-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore keeps encoded snapshots the way the real stores do
type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	loadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Load(ctx context.Context, boardID string) (*models.BoardState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	raw, ok := m.data[boardID]
	if !ok {
		return nil, nil
	}
	var state models.BoardState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *memoryStore) Save(ctx context.Context, state *models.BoardState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[state.ID] = raw
	m.saves++
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, boardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, boardID)
	return nil
}

func (m *memoryStore) has(boardID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[boardID]
	return ok
}

func (m *memoryStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func newTestRegistry(t *testing.T, store SnapshotStore) *Registry {
	t.Helper()
	r := NewRegistry(NewProcessor(DefaultHistoryLimit), store, 0)
	t.Cleanup(r.Close)
	return r
}

func TestRegistryGetCreatesOnce(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)

	b1, err := r.Get("board-1")
	require.NoError(t, err)
	b2, err := r.Get("board-1")
	require.NoError(t, err)
	other, err := r.Get("board-2")
	require.NoError(t, err)

	assert.Same(t, b1, b2)
	assert.NotSame(t, b1, other)
	assert.Equal(t, 2, r.Count())

	_, err = r.Get("")
	assert.ErrorIs(t, err, ErrInvalidBoardID)
}

func TestRegistryStatsOfNewBoard(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	stats, err := r.Stats(context.Background(), "board-1")
	require.NoError(t, err)

	assert.Equal(t, "board-1", stats.BoardID)
	assert.Zero(t, stats.ObjectCount)
	assert.Zero(t, stats.Version)
	assert.Zero(t, stats.HistoryLength)
	assert.Equal(t, models.NoHistory, stats.HistoryIndex)
	assert.Zero(t, r.Count(), "reading stats does not open the board")
}

func TestRegistryViewReadsStoredSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore()
	saved := models.NewBoardState("board-1")
	NewProcessor(DefaultHistoryLimit).Apply(saved, insertOp("a", nil))
	require.NoError(t, store.Save(ctx, saved))

	r := newTestRegistry(t, store)

	var ids []string
	require.NoError(t, r.View(ctx, "board-1", func(state *models.BoardState) {
		for _, obj := range state.Objects {
			ids = append(ids, obj.ID)
		}
	}))
	assert.Equal(t, []string{"a"}, ids)
	assert.Zero(t, r.Count())

	// Once live, View goes through the worker and sees its changes
	b, err := r.Get("board-1")
	require.NoError(t, err)
	_, err = b.Apply(ctx, insertOp("b", nil))
	require.NoError(t, err)

	stats, err := r.Stats(ctx, "board-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ObjectCount)
	assert.Equal(t, 1, r.Count())

	assert.ErrorIs(t, r.View(ctx, "", func(*models.BoardState) {}), ErrInvalidBoardID)

	store.mu.Lock()
	store.loadErr = errors.New("store unavailable")
	store.mu.Unlock()
	err = r.View(ctx, "board-2", func(*models.BoardState) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestBoardApplyUndoRedo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRegistry(t, nil)
	b, err := r.Get("board-1")
	require.NoError(t, err)

	obj, err := b.Apply(ctx, insertOp("a", models.Fields{"x": 1}))
	require.NoError(t, err)
	require.NotNil(t, obj)

	obj, err = b.Apply(ctx, deleteOp("ghost"))
	require.NoError(t, err)
	assert.Nil(t, obj)

	move, err := b.Undo(ctx)
	require.NoError(t, err)
	require.NotNil(t, move)
	assert.Equal(t, models.NoHistory, move.HistoryIndex)

	move, err = b.Undo(ctx)
	require.NoError(t, err)
	assert.Nil(t, move)

	move, err = b.Redo(ctx)
	require.NoError(t, err)
	require.NotNil(t, move)
	assert.Len(t, move.Objects, 1)

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Version)
	assert.Len(t, snap.Objects, 1)
}

func TestBoardSerializesConcurrentOperations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRegistry(t, nil)

	const writers, perWriter = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			b, err := r.Get("board-1")
			if !assert.NoError(t, err) {
				return
			}
			for i := 0; i < perWriter; i++ {
				_, err := b.Apply(ctx, insertOp(fmt.Sprintf("w%d-%d", w, i), nil))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	b, err := r.Get("board-1")
	require.NoError(t, err)

	var validateErr error
	require.NoError(t, b.Do(ctx, func(state *models.BoardState) bool {
		validateErr = state.Validate()
		return false
	}))
	require.NoError(t, validateErr)

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, writers*perWriter, stats.Version)
	assert.Equal(t, writers*perWriter, stats.ObjectCount)
}

func TestBoardsAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRegistry(t, nil)

	blocked, err := r.Get("slow")
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	go blocked.Do(ctx, func(*models.BoardState) bool {
		close(started)
		<-release
		return false
	})
	<-started
	defer close(release)

	fast, err := r.Get("fast")
	require.NoError(t, err)
	obj, err := fast.Apply(ctx, insertOp("a", nil))
	require.NoError(t, err)
	assert.NotNil(t, obj)
}

func TestBoardRecoversFromPanickingRequest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newTestRegistry(t, nil)
	b, err := r.Get("board-1")
	require.NoError(t, err)

	require.NoError(t, b.Do(ctx, func(*models.BoardState) bool {
		panic("boom")
	}))

	obj, err := b.Apply(ctx, insertOp("a", nil))
	require.NoError(t, err)
	assert.NotNil(t, obj)
}

func TestRegistryPersistsAndHydrates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore()

	r1 := NewRegistry(NewProcessor(DefaultHistoryLimit), store, 0)
	b, err := r1.Get("board-1")
	require.NoError(t, err)

	_, err = b.Apply(ctx, insertOp("a", models.Fields{"type": "stroke"}))
	require.NoError(t, err)
	_, err = b.Apply(ctx, updateOp("a", models.Fields{"color": "red"}))
	require.NoError(t, err)
	_, err = b.Apply(ctx, updateOp("ghost", nil))
	require.NoError(t, err)
	_, err = b.Snapshot(ctx)
	require.NoError(t, err)
	r1.Close()

	assert.Equal(t, 2, store.saveCount(), "only state changes are saved")

	r2 := newTestRegistry(t, store)
	stats, err := r2.Stats(ctx, "board-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Version)
	assert.Equal(t, 1, stats.ObjectCount)
	assert.Equal(t, 2, stats.HistoryLength)

	b, err = r2.Get("board-1")
	require.NoError(t, err)
	move, err := b.Undo(ctx)
	require.NoError(t, err)
	require.NotNil(t, move)
	require.Len(t, move.Objects, 1)
	assert.NotContains(t, move.Objects[0].Fields, "color")
}

func TestRegistryDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore()
	r := newTestRegistry(t, store)

	b, err := r.Get("board-1")
	require.NoError(t, err)
	_, err = b.Apply(ctx, insertOp("a", nil))
	require.NoError(t, err)
	require.True(t, store.has("board-1"))

	require.NoError(t, r.Delete(ctx, "board-1"))
	assert.Zero(t, r.Count())
	assert.False(t, store.has("board-1"))

	_, err = b.Apply(ctx, insertOp("b", nil))
	assert.ErrorIs(t, err, ErrBoardClosed, "stale handles fail after delete")

	fresh, err := r.Get("board-1")
	require.NoError(t, err)
	stats, err := fresh.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Version)

	assert.ErrorIs(t, r.Delete(ctx, ""), ErrInvalidBoardID)
	assert.NoError(t, r.Delete(ctx, "never-opened"))
}

// slowDeleteStore holds Delete until release is closed
type slowDeleteStore struct {
	*memoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowDeleteStore) Delete(ctx context.Context, boardID string) error {
	close(s.entered)
	<-s.release
	return s.memoryStore.Delete(ctx, boardID)
}

func TestRegistryGetWaitsForDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &slowDeleteStore{
		memoryStore: newMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	r := newTestRegistry(t, store)

	b, err := r.Get("board-1")
	require.NoError(t, err)
	_, err = b.Apply(ctx, insertOp("a", nil))
	require.NoError(t, err)

	deleted := make(chan error, 1)
	go func() { deleted <- r.Delete(ctx, "board-1") }()
	<-store.entered

	reopened := make(chan error, 1)
	go func() {
		fresh, err := r.Get("board-1")
		if err == nil {
			_, err = fresh.Apply(ctx, insertOp("c", nil))
		}
		reopened <- err
	}()

	select {
	case <-reopened:
		t.Fatal("board reopened while its snapshot was still being deleted")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-deleted)
	require.NoError(t, <-reopened)

	stats, err := r.Stats(ctx, "board-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ObjectCount, "only the object added after the delete survives")
	assert.EqualValues(t, 1, stats.Version)
}

func TestRegistryLoadFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore()
	store.loadErr = errors.New("store unavailable")
	r := newTestRegistry(t, store)

	b, err := r.Get("board-1")
	require.NoError(t, err)

	_, err = b.Apply(ctx, insertOp("a", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")

	// The failed worker drops itself so the next Get retries the load
	assert.Eventually(t, func() bool { return r.Count() == 0 }, time.Second, 10*time.Millisecond)

	store.mu.Lock()
	store.loadErr = nil
	store.mu.Unlock()

	retry, err := r.Get("board-1")
	require.NoError(t, err)
	assert.NotSame(t, b, retry)
	obj, err := retry.Apply(ctx, insertOp("a", nil))
	require.NoError(t, err)
	assert.NotNil(t, obj)
}

func TestRegistryRejectsInvalidSnapshot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore()
	broken := models.NewBoardState("board-1")
	broken.HistoryIndex = 4
	require.NoError(t, store.Save(ctx, broken))

	r := newTestRegistry(t, store)
	b, err := r.Get("board-1")
	require.NoError(t, err)

	_, err = b.Snapshot(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid snapshot")
}

func TestRegistryClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := NewRegistry(nil, nil, 1)
	assert.Equal(t, DefaultHistoryLimit, r.Processor().HistoryLimit())

	b, err := r.Get("board-1")
	require.NoError(t, err)
	_, err = r.Get("board-2")
	require.NoError(t, err)

	r.Close()
	assert.Zero(t, r.Count())

	_, err = b.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrBoardClosed)
}

func TestBoardDoHonoursContextWhileQueued(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, nil, 1)
	t.Cleanup(r.Close)
	b, err := r.Get("board-1")
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	go b.Do(context.Background(), func(*models.BoardState) bool {
		close(started)
		<-release
		return false
	})
	<-started
	// Fill the one-slot inbox behind the running request
	go b.Do(context.Background(), func(*models.BoardState) bool { return false })
	assert.Eventually(t, func() bool { return len(b.inbox) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = b.Do(ctx, func(*models.BoardState) bool { return false })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}
