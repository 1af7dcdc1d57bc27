package metrics

import (
	"context"
	"time"

	"github.com/marcelsud/tower-poller/runner"
)

// Metrics represents the current state of the poller.
type Metrics struct {
	// Inputs holds one status snapshot per input, sorted by name
	Inputs []runner.Status `json:"inputs"`

	// StateCounts maps runner state name to the number of inputs in it
	StateCounts map[string]int64 `json:"state_counts"`

	// StreamLengths maps input name to the length of its event stream.
	// Empty unless records are sent to redis streams.
	StreamLengths map[string]int64 `json:"stream_lengths,omitempty"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// StatusSource is anything that can report runner statuses, usually the orchestrator
type StatusSource interface {
	Statuses() []runner.Status
}

// Collector defines the interface for collecting metrics from the poller.
type Collector interface {
	// Collect gathers current metrics from the system
	Collect(ctx context.Context) (Metrics, error)

	// GetInputStatuses returns one snapshot per input
	GetInputStatuses(ctx context.Context) ([]runner.Status, error)

	// GetStateCounts returns the number of inputs per runner state
	GetStateCounts(ctx context.Context) (map[string]int64, error)

	// GetStreamLengths returns the event stream length per input
	GetStreamLengths(ctx context.Context) (map[string]int64, error)
}
