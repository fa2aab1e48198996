package boardsync

import (
	"whiteboard-sync/internal/models"
)

// DefaultHistoryLimit caps the number of entries kept per board
const DefaultHistoryLimit = 1000

// AppendHistory records entry as the newest action of state.
//
// If the history pointer is behind the tip, the redo branch after it is
// discarded first. When the log grows past limit, the oldest entries are
// dropped and the pointer is moved back by the same amount, which after a
// fresh append always leaves it at the tip.
func AppendHistory(state *models.BoardState, entry models.HistoryEntry, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if state.HistoryIndex < len(state.History)-1 {
		state.History = state.History[:state.HistoryIndex+1]
	}

	state.History = append(state.History, entry)
	state.HistoryIndex = len(state.History) - 1

	if overflow := len(state.History) - limit; overflow > 0 {
		// Copy so the evicted prefix can be garbage collected
		kept := make([]models.HistoryEntry, limit, limit+1)
		copy(kept, state.History[overflow:])
		state.History = kept
		state.HistoryIndex -= overflow
	}
}
