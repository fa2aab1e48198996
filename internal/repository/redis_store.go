package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whiteboard-sync/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotStore keeps one JSON-encoded board state per key
type RedisSnapshotStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSnapshotStore connects to redisURL and verifies the connection
func NewRedisSnapshotStore(redisURL string) (*RedisSnapshotStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSnapshotStoreWithClient(client), nil
}

// NewRedisSnapshotStoreWithClient creates a store from an existing Redis client
func NewRedisSnapshotStoreWithClient(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		client: client,
		prefix: "board:",
	}
}

func (s *RedisSnapshotStore) key(boardID string) string {
	return s.prefix + boardID
}

// Save overwrites the stored state of the board
func (s *RedisSnapshotStore) Save(ctx context.Context, state *models.BoardState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal board state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(state.ID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("save board state: %w", err)
	}
	return nil
}

// Load returns the stored state, or nil when the key does not exist
func (s *RedisSnapshotStore) Load(ctx context.Context, boardID string) (*models.BoardState, error) {
	data, err := s.client.Get(ctx, s.key(boardID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load board state: %w", err)
	}
	return decodeState(data)
}

// Delete removes the stored state
func (s *RedisSnapshotStore) Delete(ctx context.Context, boardID string) error {
	if err := s.client.Del(ctx, s.key(boardID)).Err(); err != nil {
		return fmt.Errorf("delete board state: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
