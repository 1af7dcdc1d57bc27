// Package schedule decides when an input polls next. It performs no I/O and
// never blocks; every function is a pure computation over time and state.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind selects the schedule variant
type Kind int

const (
	Interval Kind = iota + 1
	Cron
)

func (k Kind) String() string {
	switch k {
	case Interval:
		return "interval"
	case Cron:
		return "cron"
	default:
		return "unknown"
	}
}

// Spec is either a fixed interval or a cron expression.
// The zero value is invalid; build one with Every, ParseCron or Parse.
type Spec struct {
	kind  Kind
	every time.Duration
	expr  string
	cron  cron.Schedule
}

// Every returns an interval schedule
func Every(d time.Duration) (Spec, error) {
	if d <= 0 {
		return Spec{}, fmt.Errorf("interval must be positive, got %s", d)
	}
	return Spec{kind: Interval, every: d}, nil
}

// ParseCron returns a schedule for a standard five-field cron expression.
// Descriptors such as @hourly are accepted as well.
func ParseCron(expr string) (Spec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Spec{}, errors.New("empty cron expression")
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return Spec{}, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}
	return Spec{kind: Cron, expr: expr, cron: sched}, nil
}

// Parse interprets a configured polling value. A plain integer is a number of
// seconds, a Go duration ("90s", "5m") is an interval, anything else is parsed
// as a cron expression.
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Spec{}, errors.New("empty polling interval")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > math.MaxInt64/int64(time.Second) {
			return Spec{}, fmt.Errorf("polling interval of %d seconds is too large", n)
		}
		return Every(time.Duration(n) * time.Second)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return Every(d)
	}
	return ParseCron(s)
}

// Kind returns the schedule variant
func (s Spec) Kind() Kind { return s.kind }

// Interval returns the fixed period of an interval schedule
func (s Spec) Interval() time.Duration { return s.every }

// IsZero reports whether the spec was never initialised
func (s Spec) IsZero() bool { return s.kind == 0 }

func (s Spec) String() string {
	switch s.kind {
	case Interval:
		return "every " + s.every.String()
	case Cron:
		return "cron " + s.expr
	default:
		return "unset"
	}
}

// NextRun computes the next time a cycle is due.
//
// Interval schedules keep a fixed cadence from the last scheduled run, not the
// last completed one, so long cycles do not accumulate drift. Slots that have
// already passed are skipped. Cron schedules return the first match strictly
// after now.
func NextRun(spec Spec, lastScheduled, now time.Time) time.Time {
	switch spec.kind {
	case Interval:
		if lastScheduled.IsZero() {
			return now.Add(spec.every)
		}
		next := lastScheduled.Add(spec.every)
		if next.After(now) {
			return next
		}
		missed := now.Sub(lastScheduled) / spec.every
		return lastScheduled.Add((missed + 1) * spec.every)
	case Cron:
		return spec.cron.Next(now)
	default:
		return now
	}
}
