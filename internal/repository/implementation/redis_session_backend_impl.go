package implementation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"deep-research-agent/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionKeyPrefix = "research:session:"
	redisSessionMtimeKey  = "research:session_mtime"
)

// RedisSessionBackendImpl keeps each record under its own key and tracks
// modification times in a single hash so List needs one round trip.
type RedisSessionBackendImpl struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisSessionBackend(rdb *redis.Client) contract.SessionBackend {
	return &RedisSessionBackendImpl{rdb: rdb, now: time.Now}
}

func (b *RedisSessionBackendImpl) Put(ctx context.Context, id string, data []byte) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisSessionKeyPrefix+id, data, 0)
		pipe.HSet(ctx, redisSessionMtimeKey, id, b.now().UTC().UnixNano())
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}

func (b *RedisSessionBackendImpl) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, redisSessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, contract.ErrRecordNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	return data, nil
}

func (b *RedisSessionBackendImpl) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, redisSessionKeyPrefix+id)
		pipe.HDel(ctx, redisSessionMtimeKey, id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis delete session: %w", err)
	}
	return del.Val() > 0, nil
}

func (b *RedisSessionBackendImpl) List(ctx context.Context) ([]contract.RecordInfo, error) {
	mtimes, err := b.rdb.HGetAll(ctx, redisSessionMtimeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions: %w", err)
	}
	records := make([]contract.RecordInfo, 0, len(mtimes))
	for id, raw := range mtimes {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			nanos = 0
		}
		records = append(records, contract.RecordInfo{ID: id, ModifiedAt: time.Unix(0, nanos).UTC()})
	}
	return records, nil
}
