package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"github.com/angelmondragon/vaccine-orders/pkg/metrics"
)

const (
	DefaultSyncDelay   = 500 * time.Millisecond
	DefaultPushTimeout = 10 * time.Second
)

// TokenProvider exposes the current bearer credential; "" means do not sync.
type TokenProvider interface {
	Token(ctx context.Context) string
}

// Pusher sends a full-replace write of lines to the remote cart endpoint.
type Pusher interface {
	Push(ctx context.Context, token string, lines []Line) error
}

// Scheduler is the sync surface the Store drives after every committed state.
type Scheduler interface {
	Schedule(state State)
	Cancel()
	Flush(ctx context.Context)
	Close()
}

type stopper interface {
	Stop() bool
}

type SyncerParams struct {
	Pusher  Pusher
	Tokens  TokenProvider
	Delay   time.Duration
	Timeout time.Duration
	Logger  *logger.Logger
	Metrics *metrics.SyncMetrics
}

// Syncer pushes the latest state to the remote endpoint once mutations settle
// (trailing debounce). Pushes are best effort: failures are logged and never retried.
type Syncer struct {
	pusher  Pusher
	tokens  TokenProvider
	delay   time.Duration
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.SyncMetrics

	afterFunc func(time.Duration, func()) stopper

	mu      sync.Mutex
	timer   stopper
	pending *State
	gen     uint64
	closed  bool
}

func NewSyncer(params SyncerParams) (*Syncer, error) {
	if params.Pusher == nil {
		return nil, errors.New("cart pusher required")
	}
	if params.Tokens == nil {
		return nil, errors.New("token provider required")
	}
	if params.Delay <= 0 {
		params.Delay = DefaultSyncDelay
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultPushTimeout
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Syncer{
		pusher:  params.Pusher,
		tokens:  params.Tokens,
		delay:   params.Delay,
		timeout: params.Timeout,
		logg:    params.Logger,
		metrics: params.Metrics,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}, nil
}

// Schedule (re)arms the push timer with a copy of state. Anonymous state cancels instead.
func (s *Syncer) Schedule(state State) {
	if state.Identity.IsAnonymous() {
		s.Cancel()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.disarmLocked()
	snapshot := State{Identity: state.Identity, Lines: cloneLines(state.Lines)}
	s.pending = &snapshot
	gen := s.gen
	s.timer = s.afterFunc(s.delay, func() { s.fire(gen) })
}

// Cancel drops a pending push. A push already in flight is not interrupted.
func (s *Syncer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

// Close cancels any pending push and ignores every later Schedule.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	s.closed = true
}

// Flush sends a pending push now instead of waiting for the timer.
func (s *Syncer) Flush(ctx context.Context) {
	s.mu.Lock()
	state := s.pending
	s.disarmLocked()
	s.mu.Unlock()

	if state != nil {
		s.push(ctx, *state)
	}
}

// disarmLocked stops the timer and bumps the generation so a callback that
// already started will find itself superseded.
func (s *Syncer) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.gen++
}

func (s *Syncer) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	state := *s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	s.push(context.Background(), state)
}

func (s *Syncer) push(ctx context.Context, state State) {
	ctx = s.logg.WithIdentity(ctx, string(state.Identity))

	token := s.tokens.Token(ctx)
	if token == "" {
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "no credential, cart push skipped")
		return
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.pusher.Push(pushCtx, token, state.Lines)
	took := time.Since(start)
	if err != nil {
		s.metrics.ObservePush(metrics.OutcomeFailure, took)
		s.logg.WarnErr(ctx, "cart push failed", err)
		return
	}
	s.metrics.ObservePush(metrics.OutcomeSuccess, took)
	s.logg.Debug(s.logg.WithField(ctx, "lines", len(state.Lines)), "cart pushed")
}
