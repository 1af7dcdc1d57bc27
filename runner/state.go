package runner

import "time"

// State is where a runner is in its poll cycle
type State int

const (
	Idle State = iota + 1
	Polling
	Draining
	BackingOff
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Draining:
		return "draining"
	case BackingOff:
		return "backing_off"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of one runner, safe to hand out
type Status struct {
	Input          string     `json:"input"`
	Category       string     `json:"category"`
	Schedule       string     `json:"schedule"`
	State          string     `json:"state"`
	Cursor         int64      `json:"cursor"`
	Failures       int        `json:"consecutive_failures"`
	BackoffLevel   int        `json:"backoff_level"`
	NextRun        time.Time  `json:"next_run"`
	LastSuccess    *time.Time `json:"last_success,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastErrorKind  string     `json:"last_error_kind,omitempty"`
	RecordsEmitted int64      `json:"records_emitted"`
	Cycles         int64      `json:"cycles"`
	FailedCycles   int64      `json:"failed_cycles"`
}
