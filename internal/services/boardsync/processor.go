package boardsync

import (
	"log"
	"time"

	"whiteboard-sync/internal/models"
)

/*
LEARNING: OPERATION PROCESSOR

Apply is the only path that creates new history. Every malformed input
degrades to a logged no-op so one bad client message can never corrupt the
shared board:

  insert on existing id  → treated as update (upsert)
  update/delete on ghost → warning, nil, nothing touched
  unknown type           → warning, nil, nothing touched

The processor itself holds no board state, so it is safe to share between
all board workers.
*/

// Processor applies operations and history moves to a BoardState
type Processor struct {
	historyLimit int
	now          func() time.Time
}

// NewProcessor creates a processor keeping at most historyLimit entries per board
func NewProcessor(historyLimit int) *Processor {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Processor{
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// HistoryLimit returns the per-board history capacity
func (p *Processor) HistoryLimit() int {
	return p.historyLimit
}

// Apply validates op and applies it to state.
// It returns a copy of the affected object, or nil when the operation was dropped.
func (p *Processor) Apply(state *models.BoardState, op models.Operation) *models.BoardObject {
	if op.ObjectID == "" && op.Type != "" {
		log.Printf("⚠️  Board %s: %s operation without object id dropped", state.ID, op.Type)
		return nil
	}

	switch op.Type {
	case models.OpInsert:
		if state.IndexOf(op.ObjectID) >= 0 {
			return p.update(state, op)
		}
		return p.insert(state, op)

	case models.OpUpdate:
		return p.update(state, op)

	case models.OpDelete:
		return p.delete(state, op)

	default:
		log.Printf("⚠️  Board %s: unknown operation type %q dropped", state.ID, op.Type)
		return nil
	}
}

func (p *Processor) insert(state *models.BoardState, op models.Operation) *models.BoardObject {
	now := p.now()
	obj := &models.BoardObject{
		ID:      op.ObjectID,
		Version: 1,
		Fields:  op.Data.Payload(),
	}

	state.Objects = append(state.Objects, obj)
	state.ObjectVersions[obj.ID] = obj.Version
	state.Version++
	state.LastModified = now

	AppendHistory(state, models.HistoryEntry{
		Action:    models.OpInsert,
		ObjectID:  obj.ID,
		Timestamp: now,
		Data:      obj.Fields.Clone(),
	}, p.historyLimit)

	return obj.Clone()
}

func (p *Processor) update(state *models.BoardState, op models.Operation) *models.BoardObject {
	obj := state.Object(op.ObjectID)
	if obj == nil {
		log.Printf("⚠️  Board %s: update of missing object %s ignored", state.ID, op.ObjectID)
		return nil
	}

	now := p.now()
	changes := op.Data.Payload()

	obj.Fields.Merge(changes)
	obj.Version++
	state.ObjectVersions[obj.ID] = obj.Version
	state.Version++
	state.LastModified = now

	AppendHistory(state, models.HistoryEntry{
		Action:    models.OpUpdate,
		ObjectID:  obj.ID,
		Timestamp: now,
		Changes:   changes,
	}, p.historyLimit)

	return obj.Clone()
}

func (p *Processor) delete(state *models.BoardState, op models.Operation) *models.BoardObject {
	i := state.IndexOf(op.ObjectID)
	if i < 0 {
		log.Printf("⚠️  Board %s: delete of missing object %s ignored", state.ID, op.ObjectID)
		return nil
	}

	now := p.now()
	removed := state.Objects[i]

	state.Objects = append(state.Objects[:i], state.Objects[i+1:]...)
	delete(state.ObjectVersions, removed.ID)
	state.Version++
	state.LastModified = now

	AppendHistory(state, models.HistoryEntry{
		Action:    models.OpDelete,
		ObjectID:  removed.ID,
		Timestamp: now,
	}, p.historyLimit)

	return removed
}
