package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/tower-poller/checkpoint"
	"github.com/marcelsud/tower-poller/input"
	"github.com/redis/go-redis/v9"
)

/* Redis implementation of checkpoint.Store
 * One hash per input, one field per category:
 *   checkpoint:{key} job_events_last_id 1234
 */

const hashPrefix = "checkpoint"

// setMax writes ARGV[2] into field ARGV[1] only when it is greater than the
// stored value, so concurrent or stale writers cannot move a cursor backwards.
var setMax = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local cursor = tonumber(ARGV[2])
if cursor > current then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  return 1
end
return 0
`)

type Store struct {
	client *redis.Client
}

// NewStore connects to redis and verifies the connection
func NewStore(addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing client; Close will close it
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func hashKey(inputName string) string {
	return fmt.Sprintf("%s:%s", hashPrefix, checkpoint.Key(inputName))
}

func (s *Store) Get(ctx context.Context, inputName string, category input.Category) (int64, error) {
	val, err := s.client.HGet(ctx, hashKey(inputName), category.CheckpointField()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, checkpoint.GetError(fmt.Errorf("reading checkpoint hash: %w", err))
	}
	cursor, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, checkpoint.GetError(fmt.Errorf("parsing checkpoint value %q: %w", val, err))
	}
	return cursor, nil
}

func (s *Store) Set(ctx context.Context, inputName string, category input.Category, cursor int64) error {
	err := setMax.Run(ctx, s.client,
		[]string{hashKey(inputName)},
		category.CheckpointField(), cursor,
	).Err()
	if err != nil {
		return checkpoint.SetError(fmt.Errorf("writing checkpoint hash: %w", err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close(context.Context) error {
	return s.client.Close()
}
