package redis

import (
	"context"
	"fmt"

	"github.com/marcelsud/tower-poller/input"
	"github.com/redis/go-redis/v9"
)

/* Redis Streams event sink
 * Each input gets its own stream: events:{input}
 * Entries carry the category, the poll time and the raw record
 */

const streamPrefix = "events"

type Stream struct {
	client *redis.Client
	maxLen int64
}

// NewStream writes to client. maxLen > 0 trims each stream approximately.
func NewStream(client *redis.Client, maxLen int64) *Stream {
	return &Stream{client: client, maxLen: maxLen}
}

// StreamKey returns the stream an input's records are appended to
func StreamKey(inputName string) string {
	return fmt.Sprintf("%s:%s", streamPrefix, inputName)
}

func (s *Stream) Write(ctx context.Context, env input.Envelope) error {
	args := &redis.XAddArgs{
		Stream: StreamKey(env.Input),
		Values: map[string]interface{}{
			"input":    env.Input,
			"category": env.Category,
			"time":     env.Time.UTC().Unix(),
			"data":     string(env.Data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("adding to stream: %w", err)
	}
	return nil
}
