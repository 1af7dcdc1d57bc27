package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/tower-poller/runner"
	sinkredis "github.com/marcelsud/tower-poller/sink/redis"
	"github.com/redis/go-redis/v9"
)

// RunnerCollector implements Collector over the orchestrator's runner statuses
type RunnerCollector struct {
	source StatusSource
	client *redis.Client
}

// NewRunnerCollector creates a collector. client may be nil when records are
// not written to redis streams.
func NewRunnerCollector(source StatusSource, client *redis.Client) *RunnerCollector {
	return &RunnerCollector{
		source: source,
		client: client,
	}
}

// Collect gathers all metrics
func (c *RunnerCollector) Collect(ctx context.Context) (Metrics, error) {
	statuses, err := c.GetInputStatuses(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting input statuses: %w", err)
	}

	stateCounts, err := c.GetStateCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting state counts: %w", err)
	}

	streamLengths, err := c.GetStreamLengths(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting stream lengths: %w", err)
	}

	return Metrics{
		Inputs:        statuses,
		StateCounts:   stateCounts,
		StreamLengths: streamLengths,
		Timestamp:     time.Now(),
	}, nil
}

func (c *RunnerCollector) GetInputStatuses(context.Context) ([]runner.Status, error) {
	return c.source.Statuses(), nil
}

// GetStateCounts reports every state, including those with no inputs
func (c *RunnerCollector) GetStateCounts(context.Context) (map[string]int64, error) {
	counts := map[string]int64{
		runner.Idle.String():       0,
		runner.Polling.String():    0,
		runner.Draining.String():   0,
		runner.BackingOff.String(): 0,
	}
	for _, st := range c.source.Statuses() {
		counts[st.State]++
	}
	return counts, nil
}

// GetStreamLengths returns XLEN of each input's event stream
func (c *RunnerCollector) GetStreamLengths(ctx context.Context) (map[string]int64, error) {
	lengths := make(map[string]int64)
	if c.client == nil {
		return lengths, nil
	}

	for _, st := range c.source.Statuses() {
		length, err := c.client.XLen(ctx, sinkredis.StreamKey(st.Input)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			// Continue even if one stream fails
			continue
		}
		lengths[st.Input] = length
	}

	return lengths, nil
}
