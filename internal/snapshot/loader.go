package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrClosed is returned once the loader has been closed.
var ErrClosed = errors.New("snapshot loader closed")

// State is the lifecycle position of a Loader.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Listener receives the handle once it is available.
type Listener func(*Handle)

// Subscription identifies a registered Listener.
type Subscription uint64

// Config tunes a Loader.
type Config struct {
	Retry RetryPolicy
	// Digest is an optional hex BLAKE2b-256 the snapshot must match.
	Digest string
	// FetchTimeout bounds one fetch; 0 means no bound.
	FetchTimeout time.Duration
	// PrepareTimeout bounds one engine probe; 0 means no bound.
	PrepareTimeout time.Duration
	// MinAttemptInterval is the floor between attempt starts.
	MinAttemptInterval time.Duration
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		Retry:              DefaultRetryPolicy(),
		FetchTimeout:       30 * time.Second,
		PrepareTimeout:     10 * time.Second,
		MinAttemptInterval: 100 * time.Millisecond,
	}
}

// Status is a point-in-time view of a Loader.
type Status struct {
	State    State
	Attempts int
	Err      error
	LoadedAt time.Time
	Size     int64
}

// Loader fetches a snapshot once and hands the resulting Handle to listeners.
type Loader struct {
	source  Source
	engine  *Engine
	cfg     Config
	limiter *rate.Limiter

	mu        sync.Mutex
	state     State
	handle    *Handle
	lastErr   error
	attempts  int
	listeners map[Subscription]Listener
	nextID    Subscription
	closed    bool

	triggerOnce sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewLoader creates an idle loader. Nothing is fetched until Trigger.
func NewLoader(source Source, engine *Engine, cfg Config) *Loader {
	limit := rate.Inf
	if cfg.MinAttemptInterval > 0 {
		limit = rate.Every(cfg.MinAttemptInterval)
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Loader{
		source:    source,
		engine:    engine,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		listeners: make(map[Subscription]Listener),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Trigger starts the load sequence. Only the first call has any effect.
func (l *Loader) Trigger() {
	l.triggerOnce.Do(func() {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		l.state = StateLoading
		l.wg.Add(1)
		l.mu.Unlock()

		go l.run()
	})
}

// Subscribe registers fn to receive the handle. If the handle is already
// loaded fn is called immediately, before Subscribe returns, and is not kept.
func (l *Loader) Subscribe(fn Listener) Subscription {
	if fn == nil {
		return 0
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	if l.state == StateReady {
		h := l.handle
		l.mu.Unlock()
		fn(h)
		return id
	}
	if !l.closed {
		l.listeners[id] = fn
	}
	l.mu.Unlock()
	return id
}

// Unsubscribe removes a listener. Unknown subscriptions are ignored.
func (l *Loader) Unsubscribe(sub Subscription) {
	l.mu.Lock()
	delete(l.listeners, sub)
	l.mu.Unlock()
}

// Handle returns the loaded handle, or nil.
func (l *Loader) Handle() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

// State returns the current state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the most recent load error. It is nil once ready.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Status returns a snapshot of the loader state.
func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{
		State:    l.state,
		Attempts: l.attempts,
		Err:      l.lastErr,
	}
	if l.handle != nil {
		st.LoadedAt = l.handle.LoadedAt()
		st.Size = l.handle.Size()
	}
	return st
}

// Done is closed when the loader reaches Ready, Failed or Closed.
func (l *Loader) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the loader finishes or ctx ends. It does not call Trigger.
func (l *Loader) Wait(ctx context.Context) (*Handle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateReady {
		return l.handle, nil
	}
	return nil, l.lastErr
}

// Close cancels a running load, waits for it and releases the handle.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.state != StateIdle
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()

	l.mu.Lock()
	h := l.handle
	l.handle = nil
	l.state = StateClosed
	l.lastErr = ErrClosed
	l.listeners = make(map[Subscription]Listener)
	if !started {
		close(l.done)
	}
	l.mu.Unlock()

	if h != nil {
		return h.Close()
	}
	return nil
}

func (l *Loader) run() {
	defer l.wg.Done()

	for attempt := 1; ; attempt++ {
		if err := l.limiter.Wait(l.ctx); err != nil {
			l.fail(ErrClosed)
			return
		}

		l.mu.Lock()
		l.attempts = attempt
		l.mu.Unlock()

		log.Info().
			Int("attempt", attempt).
			Str("source", l.source.String()).
			Msg("Initializing database")

		h, err := l.attempt(l.ctx)
		if err == nil {
			l.complete(h)
			return
		}

		if l.ctx.Err() != nil {
			l.fail(ErrClosed)
			return
		}

		l.mu.Lock()
		l.lastErr = err
		l.mu.Unlock()

		if l.cfg.Retry.Exhausted(attempt) {
			log.Error().
				Err(err).
				Int("attempts", attempt).
				Msg("Failed to initialize database; giving up")
			l.fail(fmt.Errorf("snapshot load failed after %d attempts: %w", attempt, err))
			return
		}

		wait := l.cfg.Retry.Delay(attempt)
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Failed to initialize database; retrying")

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-l.ctx.Done():
			timer.Stop()
			l.fail(ErrClosed)
			return
		case <-timer.C:
		}
	}
}

// attempt prepares the engine and fetches the snapshot concurrently, then
// builds the handle.
func (l *Loader) attempt(ctx context.Context) (*Handle, error) {
	var data []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pctx, cancel := withOptionalTimeout(gctx, l.cfg.PrepareTimeout)
		defer cancel()
		if err := l.engine.Prepare(pctx); err != nil {
			return fmt.Errorf("failed to prepare database engine: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		fctx, cancel := withOptionalTimeout(gctx, l.cfg.FetchTimeout)
		defer cancel()
		b, err := l.source.Fetch(fctx)
		if err != nil {
			return fmt.Errorf("failed to fetch snapshot: %w", err)
		}
		data = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if l.cfg.Digest != "" {
		if err := VerifyDigest(data, l.cfg.Digest); err != nil {
			return nil, err
		}
	}

	h, err := l.engine.Open(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to construct database: %w", err)
	}
	return h, nil
}

func (l *Loader) complete(h *Handle) {
	l.mu.Lock()
	if l.closed {
		l.state = StateFailed
		l.lastErr = ErrClosed
		close(l.done)
		l.mu.Unlock()
		if err := h.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to release snapshot after close")
		}
		return
	}

	l.handle = h
	l.state = StateReady
	l.lastErr = nil
	listeners := make([]Listener, 0, len(l.listeners))
	for _, fn := range l.listeners {
		listeners = append(listeners, fn)
	}
	l.listeners = make(map[Subscription]Listener)
	close(l.done)
	l.mu.Unlock()

	log.Info().
		Int64("size", h.Size()).
		Int("listeners", len(listeners)).
		Msg("Database initialized")

	for _, fn := range listeners {
		fn(h)
	}
}

func (l *Loader) fail(err error) {
	l.mu.Lock()
	l.state = StateFailed
	l.lastErr = err
	close(l.done)
	l.mu.Unlock()
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
