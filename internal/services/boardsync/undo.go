package boardsync

import (
	"whiteboard-sync/internal/models"
)

// HistoryMove is the rebuilt state returned by an undo or redo
type HistoryMove struct {
	Objects      []*models.BoardObject `json:"objects"`
	HistoryIndex int                   `json:"historyIndex"`
}

// Undo moves the history pointer back one entry and rebuilds the objects.
// Undoing the first entry rewinds to an empty board. It returns nil when
// there is nothing to undo. Board version and history are left untouched.
func (p *Processor) Undo(state *models.BoardState) *HistoryMove {
	if len(state.History) == 0 || state.HistoryIndex < 0 {
		return nil
	}
	state.HistoryIndex--
	return p.rebuild(state)
}

// Redo moves the history pointer forward one entry and rebuilds the objects.
// It returns nil when the pointer is already at the tip.
func (p *Processor) Redo(state *models.BoardState) *HistoryMove {
	if state.HistoryIndex >= len(state.History)-1 {
		return nil
	}
	state.HistoryIndex++
	return p.rebuild(state)
}

func (p *Processor) rebuild(state *models.BoardState) *HistoryMove {
	state.Objects, state.ObjectVersions = Replay(state.History[:state.HistoryIndex+1])
	state.LastModified = p.now()

	return &HistoryMove{
		Objects:      models.CloneObjects(state.Objects),
		HistoryIndex: state.HistoryIndex,
	}
}

// Replay rebuilds an object set from empty by applying entries in order.
// It never appends history. Updates and deletes of unknown ids are skipped.
func Replay(entries []models.HistoryEntry) ([]*models.BoardObject, map[string]int) {
	objects := []*models.BoardObject{}
	versions := make(map[string]int)

	indexOf := func(id string) int {
		for i, obj := range objects {
			if obj.ID == id {
				return i
			}
		}
		return -1
	}

	for _, entry := range entries {
		switch entry.Action {
		case models.OpInsert:
			if i := indexOf(entry.ObjectID); i >= 0 {
				// Keep ids unique if a stored log ever carries a duplicate insert
				objects = append(objects[:i], objects[i+1:]...)
			}
			objects = append(objects, &models.BoardObject{
				ID:      entry.ObjectID,
				Version: 1,
				Fields:  entry.Data.Clone(),
			})
			versions[entry.ObjectID] = 1

		case models.OpUpdate:
			i := indexOf(entry.ObjectID)
			if i < 0 {
				continue
			}
			obj := objects[i]
			obj.Version++
			obj.Fields.Merge(entry.Changes)
			versions[obj.ID] = obj.Version

		case models.OpDelete:
			if i := indexOf(entry.ObjectID); i >= 0 {
				objects = append(objects[:i], objects[i+1:]...)
				delete(versions, entry.ObjectID)
			}
		}
	}

	return objects, versions
}
