package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"immo-scraper/models"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisSnapshotStore keeps the snapshot as one JSON value under a fixed
// key. A single SET replaces it atomically.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

func NewRedisSnapshotStore(ctx context.Context, cfg RedisConfig) (*RedisSnapshotStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return &RedisSnapshotStore{client: rdb, key: SnapshotKey}, nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context) (models.StateSnapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.StateSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", s.key, err)
	}

	snap := models.StateSnapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", s.key, err)
	}
	return snap, nil
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap models.StateSnapshot) error {
	if snap == nil {
		snap = models.StateSnapshot{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
