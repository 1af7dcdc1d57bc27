package input

import "fmt"

/* Category is the kind of record stream an input polls
 * Each category maps to one collection endpoint on the Tower API
 */
type Category int

const (
	JobEvents Category = iota + 1
	ActivityStream
)

// String returns the API name of the category
func (c Category) String() string {
	switch c {
	case JobEvents:
		return "job_events"
	case ActivityStream:
		return "activity_stream"
	default:
		return "unknown"
	}
}

// NewCategory creates a Category from its API name.
// An empty name selects job_events; anything unrecognised is invalid.
func NewCategory(s string) Category {
	switch s {
	case "", "job_events":
		return JobEvents
	case "activity_stream":
		return ActivityStream
	default:
		return 0
	}
}

// Validate checks if the category is one of the supported streams
func (c Category) Validate() error {
	if c != JobEvents && c != ActivityStream {
		return fmt.Errorf("unsupported event type: %d", c)
	}
	return nil
}

// CheckpointField is the name under which the cursor for this category is persisted
func (c Category) CheckpointField() string {
	return c.String() + "_last_id"
}
