package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"whiteboard-sync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/*
LEARNING: SNAPSHOT UPSERTS

One row per board, replaced on every save. Query patterns:
- Load: board hydration on first access (nil when never saved)
- Save: INSERT ... ON CONFLICT (board_id) DO UPDATE
- Delete: explicit board deletion
*/

// SnapshotRepositoryImpl stores board snapshots in Postgres
type SnapshotRepositoryImpl struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepositoryImpl {
	return &SnapshotRepositoryImpl{db: db}
}

// Save upserts the full board state
func (r *SnapshotRepositoryImpl) Save(ctx context.Context, state *models.BoardState) error {
	record, err := newSnapshotRecord(state)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to save board snapshot: %w", err)
	}

	return nil
}

// Load returns the stored state of a board, or nil if there is none
func (r *SnapshotRepositoryImpl) Load(ctx context.Context, boardID string) (*models.BoardState, error) {
	var record models.BoardSnapshotRecord

	err := r.db.WithContext(ctx).First(&record, "board_id = ?", boardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Never saved
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load board snapshot: %w", err)
	}

	return decodeState(record.State)
}

// Delete removes the stored state of a board
func (r *SnapshotRepositoryImpl) Delete(ctx context.Context, boardID string) error {
	result := r.db.WithContext(ctx).Delete(&models.BoardSnapshotRecord{}, "board_id = ?", boardID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete board snapshot: %w", result.Error)
	}
	return nil
}

// newSnapshotRecord maps a board state to its row; the full state goes in the JSON column
func newSnapshotRecord(state *models.BoardState) (*models.BoardSnapshotRecord, error) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode board state: %w", err)
	}

	return &models.BoardSnapshotRecord{
		BoardID:      state.ID,
		Version:      state.Version,
		ObjectCount:  len(state.Objects),
		State:        encoded,
		LastModified: state.LastModified,
	}, nil
}

func decodeState(data []byte) (*models.BoardState, error) {
	var state models.BoardState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode board state: %w", err)
	}
	return &state, nil
}
