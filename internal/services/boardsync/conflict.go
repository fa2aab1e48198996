package boardsync

import (
	"whiteboard-sync/internal/models"
)

/*
LEARNING: TWO DIFFERENT "WINS" RULES

These two functions look like last-write-wins but pick opposite directions,
and both are kept on purpose until the board owners decide which is meant:

  ResolvePairwise: lower data.timestamp wins (ties: lower data.userId)
  MergeByRecency:  higher object timestamp wins (ties: left side)

Neither runs on the per-operation apply path. They serve explicit
arbitration and out-of-band reconciliation requests.
*/

// ResolvePairwise arbitrates two operations.
// Different targets do not conflict and both are returned in order.
// For the same target only the winner is returned.
func ResolvePairwise(op1, op2 models.Operation) []models.Operation {
	if op1.ObjectID != op2.ObjectID {
		return []models.Operation{op1, op2}
	}

	t1, t2 := op1.Data.Timestamp(), op2.Data.Timestamp()
	switch {
	case t1 < t2:
		return []models.Operation{op1}
	case t2 < t1:
		return []models.Operation{op2}
	}

	if op2.Data.UserID() < op1.Data.UserID() {
		return []models.Operation{op2}
	}
	return []models.Operation{op1}
}

// MergeByRecency unions two snapshots of a board keyed by object id.
// The merged version is the larger of the two; for ids on both sides the
// object with the higher timestamp is kept. Objects of a come first in
// their order, followed by objects only b has.
func MergeByRecency(a, b models.BoardSnapshot) models.BoardSnapshot {
	merged := models.BoardSnapshot{
		ID:           a.ID,
		Version:      max(a.Version, b.Version),
		Objects:      make([]*models.BoardObject, 0, len(a.Objects)+len(b.Objects)),
		LastModified: a.LastModified,
	}
	if merged.ID == "" {
		merged.ID = b.ID
	}
	if b.LastModified.After(merged.LastModified) {
		merged.LastModified = b.LastModified
	}

	position := make(map[string]int, len(a.Objects)+len(b.Objects))
	for _, side := range [][]*models.BoardObject{a.Objects, b.Objects} {
		for _, obj := range side {
			if obj == nil {
				continue
			}
			i, seen := position[obj.ID]
			if !seen {
				position[obj.ID] = len(merged.Objects)
				merged.Objects = append(merged.Objects, obj.Clone())
				continue
			}
			if obj.Timestamp() > merged.Objects[i].Timestamp() {
				merged.Objects[i] = obj.Clone()
			}
		}
	}

	return merged
}
