// Package cart keeps the per-session basket in Redis.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyBasket  = errors.New("basket is empty")
	ErrInvalidCount = errors.New("count must be at least 1")
)

// DefaultTTL is how long an untouched basket survives.
const DefaultTTL = 14 * 24 * time.Hour

// removeScript decrements a line and drops it once it reaches zero.
var removeScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]))
if not cur then
  return 0
end
local left = cur - tonumber(ARGV[2])
if left <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], left)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return left
`)

// Store is a Redis hash per session: field product id, value count.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func key(sid string) string {
	return "basket:" + sid
}

// Get returns product id → count. A missing basket is empty, not an error.
func (s *Store) Get(ctx context.Context, sid string) (map[uint]int, error) {
	val, err := s.rdb.HGetAll(ctx, key(sid)).Result()
	if err != nil {
		return nil, fmt.Errorf("basket get: %w", err)
	}

	out := make(map[uint]int, len(val))
	for k, v := range val {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			continue
		}
		out[uint(id)] = n
	}
	return out, nil
}

// Add increments the line for productID, creating it when absent.
func (s *Store) Add(ctx context.Context, sid string, productID uint, count int) error {
	if count < 1 {
		return ErrInvalidCount
	}
	k := key(sid)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, k, strconv.FormatUint(uint64(productID), 10), int64(count))
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("basket add: %w", err)
	}
	return nil
}

// Remove decrements the line, deleting it when the result would be zero or
// below. Removing an absent product is a no-op.
func (s *Store) Remove(ctx context.Context, sid string, productID uint, count int) error {
	if count < 1 {
		return ErrInvalidCount
	}
	field := strconv.FormatUint(uint64(productID), 10)
	err := removeScript.Run(ctx, s.rdb, []string{key(sid)}, field, count, int64(s.ttl/time.Second)).Err()
	if err != nil {
		return fmt.Errorf("basket remove: %w", err)
	}
	return nil
}

// Clear deletes the basket. It returns ErrEmptyBasket when there was none.
func (s *Store) Clear(ctx context.Context, sid string) error {
	n, err := s.rdb.Del(ctx, key(sid)).Result()
	if err != nil {
		return fmt.Errorf("basket clear: %w", err)
	}
	if n == 0 {
		return ErrEmptyBasket
	}
	return nil
}
