package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/tower-poller/checkpoint"
	"github.com/marcelsud/tower-poller/input"
	"github.com/marcelsud/tower-poller/sink"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultShutdownGrace = 10 * time.Second

var (
	ErrDuplicateInput  = errors.New("duplicate input name")
	ErrUnknownInput    = errors.New("unknown input")
	ErrAlreadyRunning  = errors.New("orchestrator already running")
	ErrStopped         = errors.New("orchestrator stopped")
	ErrShutdownTimeout = errors.New("inputs did not stop within the shutdown grace period")
)

type entry struct {
	runner *Runner
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

/* Orchestrator owns the runners of a process
 * A failing input never affects the others: runner errors are recorded
 * per input and never cancel the group
 */
type Orchestrator struct {
	store      checkpoint.Store
	sink       sink.Writer
	logger     zerolog.Logger
	grace      time.Duration
	runnerOpts []Option

	mu      sync.Mutex
	entries map[string]*entry
	runCtx  context.Context
	stopped bool
	group   errgroup.Group
}

// NewOrchestrator creates an orchestrator. A non-positive grace uses DefaultShutdownGrace.
func NewOrchestrator(store checkpoint.Store, out sink.Writer, logger zerolog.Logger, grace time.Duration, opts ...Option) *Orchestrator {
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	return &Orchestrator{
		store:      store,
		sink:       out,
		logger:     logger,
		grace:      grace,
		runnerOpts: opts,
		entries:    make(map[string]*entry),
	}
}

// Add registers an input. It starts polling immediately when the
// orchestrator is running, otherwise when Run is called.
func (o *Orchestrator) Add(cfg input.Config, opts ...Option) error {
	r, err := New(cfg, o.store, o.sink, o.logger, append(append([]Option{}, o.runnerOpts...), opts...)...)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	if _, exists := o.entries[r.Name()]; exists {
		return &input.ConfigurationError{Input: r.Name(), Field: "name", Err: ErrDuplicateInput}
	}
	e := &entry{runner: r, done: make(chan struct{})}
	o.entries[r.Name()] = e
	if o.runCtx != nil {
		o.start(e)
	}
	return nil
}

// start spawns the runner goroutine; o.mu must be held
func (o *Orchestrator) start(e *entry) {
	ctx, cancel := context.WithCancel(o.runCtx)
	e.cancel = cancel
	o.group.Go(func() error {
		defer close(e.done)
		defer cancel()
		if err := e.runner.Run(ctx); err != nil {
			o.mu.Lock()
			e.err = err
			o.mu.Unlock()
		}
		return nil
	})
}

// Remove stops one input and waits for its runner to return
func (o *Orchestrator) Remove(ctx context.Context, name string) error {
	o.mu.Lock()
	e, ok := o.entries[name]
	if ok {
		delete(o.entries, name)
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInput, name)
	}
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for input %s to stop: %w", name, ctx.Err())
	}
}

// Run starts every registered input and blocks until ctx is done, then
// waits up to the shutdown grace period for all runners to return.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.runCtx != nil || o.stopped {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.runCtx = ctx
	for _, e := range o.entries {
		o.start(e)
	}
	n := len(o.entries)
	o.mu.Unlock()

	o.logger.Info().Int("inputs", n).Msg("orchestrator started")
	<-ctx.Done()

	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- o.group.Wait() }()

	timer := time.NewTimer(o.grace)
	defer timer.Stop()
	select {
	case err := <-done:
		o.logger.Info().Msg("orchestrator stopped")
		return err
	case <-timer.C:
		return ErrShutdownTimeout
	}
}

// Statuses returns a snapshot of every input, sorted by name
func (o *Orchestrator) Statuses() []Status {
	o.mu.Lock()
	runners := make([]*Runner, 0, len(o.entries))
	for _, e := range o.entries {
		runners = append(runners, e.runner)
	}
	o.mu.Unlock()

	out := make([]Status, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Input < out[j].Input })
	return out
}

// Status returns one input's snapshot
func (o *Orchestrator) Status(name string) (Status, bool) {
	o.mu.Lock()
	e, ok := o.entries[name]
	o.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	return e.runner.Status(), true
}

// Err returns the error that stopped an input, if any
func (o *Orchestrator) Err(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[name]; ok {
		return e.err
	}
	return nil
}
