package boardsync

import (
	"testing"
	"time"

	"whiteboard-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stamped(id string, ts any, user string) models.Operation {
	data := models.Fields{}
	if ts != nil {
		data[models.FieldTimestamp] = ts
	}
	if user != "" {
		data[models.FieldUserID] = user
	}
	return updateOp(id, data)
}

func TestResolvePairwise(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		op1    models.Operation
		op2    models.Operation
		winner []string // expected users, in order
	}{
		{
			name:   "different objects keep both",
			op1:    stamped("a", 20, "u2"),
			op2:    stamped("b", 10, "u1"),
			winner: []string{"u2", "u1"},
		},
		{
			name:   "lower timestamp wins",
			op1:    stamped("a", 20, "u1"),
			op2:    stamped("a", 10, "u2"),
			winner: []string{"u2"},
		},
		{
			name:   "lower timestamp wins as first argument",
			op1:    stamped("a", 10, "u9"),
			op2:    stamped("a", 20, "u1"),
			winner: []string{"u9"},
		},
		{
			name:   "tie broken by lower user id",
			op1:    stamped("a", 10, "bob"),
			op2:    stamped("a", 10, "alice"),
			winner: []string{"alice"},
		},
		{
			name:   "full tie keeps the first",
			op1:    stamped("a", 10, "alice"),
			op2:    stamped("a", 10, "alice"),
			winner: []string{"alice"},
		},
		{
			name:   "missing timestamp counts as zero",
			op1:    stamped("a", 5, "u1"),
			op2:    stamped("a", nil, "u2"),
			winner: []string{"u2"},
		},
		{
			name:   "timestamps decoded from JSON are numbers",
			op1:    stamped("a", float64(1700000000001), "u1"),
			op2:    stamped("a", float64(1700000000000), "u2"),
			winner: []string{"u2"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			kept := ResolvePairwise(tc.op1, tc.op2)
			require.Len(t, kept, len(tc.winner))
			for i, op := range kept {
				assert.Equal(t, tc.winner[i], op.Data.UserID())
			}
		})
	}
}

func snapObj(id string, ts int64) *models.BoardObject {
	return &models.BoardObject{ID: id, Version: 1, Fields: models.Fields{"timestamp": ts}}
}

func TestMergeByRecency(t *testing.T) {
	t.Parallel()

	a := models.BoardSnapshot{
		ID:      "board-1",
		Version: 3,
		Objects: []*models.BoardObject{snapObj("a", 10)},
	}
	b := models.BoardSnapshot{
		ID:      "board-1",
		Version: 5,
		Objects: []*models.BoardObject{snapObj("a", 20), snapObj("b", 5)},
	}

	merged := MergeByRecency(a, b)

	assert.EqualValues(t, 5, merged.Version)
	require.Len(t, merged.Objects, 2)
	assert.Equal(t, "a", merged.Objects[0].ID)
	assert.EqualValues(t, 20, merged.Objects[0].Timestamp())
	assert.Equal(t, "b", merged.Objects[1].ID)
	assert.EqualValues(t, 5, merged.Objects[1].Timestamp())
}

func TestMergeByRecencyTieKeepsLeft(t *testing.T) {
	t.Parallel()

	left := snapObj("a", 10)
	left.Fields["color"] = "red"
	right := snapObj("a", 10)
	right.Fields["color"] = "blue"

	merged := MergeByRecency(
		models.BoardSnapshot{Version: 7, Objects: []*models.BoardObject{left}},
		models.BoardSnapshot{ID: "board-2", Version: 2, Objects: []*models.BoardObject{right, nil}},
	)

	assert.Equal(t, "board-2", merged.ID, "id falls back to the right side")
	assert.EqualValues(t, 7, merged.Version)
	require.Len(t, merged.Objects, 1)
	assert.Equal(t, "red", merged.Objects[0].Fields["color"])
}

func TestMergeByRecencyDoesNotAliasInputs(t *testing.T) {
	t.Parallel()

	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	a := models.BoardSnapshot{ID: "board-1", Objects: []*models.BoardObject{snapObj("a", 1)}, LastModified: earlier}
	b := models.BoardSnapshot{ID: "board-1", Objects: []*models.BoardObject{snapObj("c", 1)}, LastModified: later}

	merged := MergeByRecency(a, b)
	merged.Objects[0].Fields["x"] = 1

	assert.NotContains(t, a.Objects[0].Fields, "x")
	assert.Equal(t, later, merged.LastModified)
}
