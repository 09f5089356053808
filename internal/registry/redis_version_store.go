package registry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const versionKeyPrefix = "novarmi:dgc:version:"

// bumpVersionScript atomically increments an identifier's version
// counter and returns the new value in a single round trip.
var bumpVersionScript = redis.NewScript(`
return redis.call('INCR', KEYS[1])
`)

// RedisVersionStore persists localVersion counters in Redis so they
// survive a session restart.
type RedisVersionStore struct {
	client *redis.Client
}

// NewRedisVersionStore dials addr and verifies connectivity before
// returning.
func NewRedisVersionStore(addr, password string, db int) (*RedisVersionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("registry: redis connection failed: %w", err)
	}
	return &RedisVersionStore{client: client}, nil
}

func (s *RedisVersionStore) Next(ctx context.Context, id uint64) (uint32, error) {
	key := versionKeyPrefix + strconv.FormatUint(id, 16)
	result, err := bumpVersionScript.Run(ctx, s.client, []string{key}).Result()
	if err != nil {
		return 0, fmt.Errorf("registry: bump version for %x: %w", id, err)
	}
	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("registry: unexpected INCR result type %T", result)
	}
	return uint32(n), nil
}

func (s *RedisVersionStore) Close() error { return s.client.Close() }
