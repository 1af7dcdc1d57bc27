// Package runner drives inputs: each Runner polls one input on its own
// schedule, and the Orchestrator owns the set of runners.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/tower-poller/checkpoint"
	"github.com/marcelsud/tower-poller/input"
	"github.com/marcelsud/tower-poller/schedule"
	"github.com/marcelsud/tower-poller/sink"
	"github.com/marcelsud/tower-poller/tower"
	"github.com/rs/zerolog"
)

const defaultCommitTimeout = 5 * time.Second

// Paginator drains an input's record collection from a cursor
type Paginator interface {
	Drain(ctx context.Context, cursor int64, fn tower.PageHandler) (int64, int, error)
}

type Option func(*Runner)

// WithClock replaces time.Now for scheduling decisions
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithPaginator replaces the HTTP client built from the input config
func WithPaginator(p Paginator) Option {
	return func(r *Runner) { r.pager = p }
}

// WithCommitTimeout bounds a checkpoint write that outlives cancellation
func WithCommitTimeout(d time.Duration) Option {
	return func(r *Runner) { r.commitTimeout = d }
}

/* Runner owns the polling loop of a single input
 * Fetch, emit and checkpoint are strictly sequential within one runner
 */
type Runner struct {
	cfg           input.Config
	pager         Paginator
	store         checkpoint.Store
	sink          sink.Writer
	logger        zerolog.Logger
	now           func() time.Time
	commitTimeout time.Duration

	mu     sync.RWMutex
	status Status
}

// New validates cfg and builds a runner. The logger gets the input name and
// the input's own minimum level.
func New(cfg input.Config, store checkpoint.Store, out sink.Writer, logger zerolog.Logger, opts ...Option) (*Runner, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:           cfg,
		store:         store,
		sink:          out,
		logger:        logger.With().Str("input", cfg.Name).Logger().Level(cfg.LogLevel.Zerolog()),
		now:           time.Now,
		commitTimeout: defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pager == nil {
		client, err := tower.NewClient(cfg, r.logger)
		if err != nil {
			return nil, err
		}
		r.pager = client
	}

	r.status = Status{
		Input:    cfg.Name,
		Category: cfg.Category.String(),
		Schedule: cfg.Schedule.String(),
		State:    Idle.String(),
		NextRun:  r.now(),
	}
	return r, nil
}

func (r *Runner) Name() string {
	return r.cfg.Name
}

// Status returns a snapshot of the runner
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) update(fn func(s *Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}

func (r *Runner) setState(s State) {
	r.update(func(st *Status) { st.State = s.String() })
}

// Run polls until ctx is cancelled. Cycle failures are logged and retried
// with backoff; only an error that no retry can fix is returned.
// Cancellation is not an error and is not logged as one.
func (r *Runner) Run(ctx context.Context) error {
	st := schedule.NewState(r.now())
	for {
		r.update(func(s *Status) {
			s.NextRun = st.NextRun
			s.Failures = st.Failures
			s.BackoffLevel = st.Level
		})

		if !sleep(ctx, st.NextRun.Sub(r.now())) {
			return nil
		}

		err := r.cycle(ctx)
		if ctx.Err() != nil {
			r.setState(Idle)
			return nil
		}

		now := r.now()
		if err == nil {
			st = st.Success(r.cfg.Schedule, now)
			r.setState(Idle)
			continue
		}

		if !input.Retryable(err) {
			r.logger.Error().Err(err).Str("kind", input.Kind(err)).Msg("input stopped")
			r.setState(Idle)
			return err
		}
		st = st.Failure(r.cfg.BackoffBase, r.cfg.BackoffCap, now)
		r.setState(BackingOff)
		r.logger.Error().
			Err(err).
			Str("kind", input.Kind(err)).
			Int("failures", st.Failures).
			Dur("retry_in", st.Delay).
			Msg("poll cycle failed")
	}
}

// RunOnce performs a single cycle: read the checkpoint and drain the API
// until it is exhausted.
func (r *Runner) RunOnce(ctx context.Context) error {
	err := r.cycle(ctx)
	if err == nil {
		r.setState(Idle)
	} else if ctx.Err() == nil {
		r.setState(BackingOff)
	}
	return err
}

func (r *Runner) cycle(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in poll cycle: %v", p)
		}
		r.record(ctx, err)
	}()

	cycleID := uuid.New().String()
	logger := r.logger.With().Str("cycle", cycleID).Logger()
	start := r.now()

	r.setState(Polling)
	cursor, err := r.store.Get(ctx, r.cfg.Name, r.cfg.Category)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}
	r.update(func(s *Status) { s.Cursor = cursor })
	logger.Debug().Int64("cursor", cursor).Msg("poll cycle started")

	var emitted int64
	final, pages, err := r.pager.Drain(ctx, cursor, func(ctx context.Context, page input.Page, next int64) error {
		r.setState(Draining)
		n, err := r.emit(ctx, page)
		emitted += n
		if err != nil {
			return err
		}
		return r.commit(ctx, next)
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int64("cursor", final).
		Int("pages", pages).
		Int64("records", emitted).
		Dur("took", r.now().Sub(start)).
		Msg("poll cycle finished")
	return nil
}

// emit hands every record of the page to the sink in received order.
// A page in progress is finished even if ctx is cancelled meanwhile.
func (r *Runner) emit(ctx context.Context, page input.Page) (int64, error) {
	wctx := context.WithoutCancel(ctx)
	now := r.now()
	var n int64
	for _, rec := range page.Records {
		env := input.Envelope{
			Input:    r.cfg.Name,
			Category: r.cfg.Category.String(),
			Time:     now,
			Data:     rec.Raw,
		}
		if err := r.sink.Write(wctx, env); err != nil {
			return n, fmt.Errorf("writing record %d to sink: %w", rec.ID, err)
		}
		n++
		r.update(func(s *Status) { s.RecordsEmitted++ })
	}
	return n, nil
}

// commit persists next after the page was emitted. The write is detached
// from cancellation and bounded by the commit timeout.
func (r *Runner) commit(ctx context.Context, next int64) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.commitTimeout)
	defer cancel()

	if err := r.store.Set(cctx, r.cfg.Name, r.cfg.Category, next); err != nil {
		return fmt.Errorf("committing cursor %d: %w", next, err)
	}
	r.update(func(s *Status) { s.Cursor = next })
	return nil
}

func (r *Runner) record(ctx context.Context, err error) {
	now := r.now()
	r.update(func(s *Status) {
		if err != nil && ctx.Err() != nil {
			return
		}
		s.Cycles++
		if err == nil {
			s.LastSuccess = &now
			s.LastError = ""
			s.LastErrorKind = ""
			return
		}
		s.FailedCycles++
		s.LastError = err.Error()
		s.LastErrorKind = input.Kind(err)
	})
}

// sleep waits for d or until ctx is done. It reports whether to continue.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
