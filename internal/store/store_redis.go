package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL     = 24 * time.Hour
	maxSaveRetries = 3
)

var (
	ErrNotFound = errors.New("game record not found")
	// ErrStale is returned when a newer version of the record is already stored.
	ErrStale = errors.New("game record is stale")
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open connects to REDIS_URL and checks the connection.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func gameKey(id string) string { return "chess:game:" + strings.TrimSpace(id) }

func activeKey() string { return "chess:index:active" }

// Save writes rec unless the stored copy has the same or a newer version.
// Finished games leave the active index.
func (s *Store) Save(ctx context.Context, rec *GameRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("record id required")
	}
	key := gameKey(rec.ID)
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored GameRecord
			if err := json.Unmarshal(cur, &stored); err != nil {
				return err
			}
			if stored.Version >= rec.Version {
				return ErrStale
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			if rec.Status == StatusActive {
				pipe.SAdd(ctx, activeKey(), rec.ID)
				pipe.Expire(ctx, activeKey(), s.ttl)
			} else {
				pipe.SRem(ctx, activeKey(), rec.ID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxSaveRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *Store) Load(ctx context.Context, id string) (*GameRecord, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, gameKey(id))
		pipe.SRem(ctx, activeKey(), id)
		return nil
	})
	return err
}

// ActiveIDs lists active games, dropping index entries whose record expired.
func (s *Store) ActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, activeKey()).Result()
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, gameKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = s.rdb.SRem(ctx, activeKey(), id).Err()
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
