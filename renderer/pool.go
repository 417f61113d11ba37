package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/pricehound/extract"
	"github.com/use-agent/pricehound/models"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("renderer: pool is closed")

// Session is one rendering session: a browser tab that can be navigated,
// waited on and queried.
type Session interface {
	// Navigate loads url, bounded by ctx.
	Navigate(ctx context.Context, url string) error

	// WaitFor blocks until an element matching selector exists or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// Containers returns every element matching selector in document order.
	Containers(ctx context.Context, selector string) ([]extract.Container, error)

	// Reset returns the session to a clean, reusable state.
	Reset() error

	// Close destroys the session.
	Close() error
}

// Factory creates a new Session.
type Factory func() (Session, error)

// State is the lifecycle state of a Handle.
type State int32

const (
	Idle State = iota
	InUse
	Dead
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InUse:
		return "in_use"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handle wraps a pooled Session with lifecycle metadata.
type Handle struct {
	ID      int64
	Session Session

	state   atomic.Int32
	created time.Time
}

// Age returns how long ago the session was created.
func (h *Handle) Age() time.Duration {
	return time.Since(h.created)
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Pool is a soft-bounded pool of rendering sessions.
//
// Acquire never waits: when no idle session exists a new one is created, so
// the number of live sessions may exceed the target under burst load.
// Release keeps at most target sessions idle and destroys the rest.
// It is safe for concurrent use.
type Pool struct {
	target  int
	factory Factory
	maxAge  time.Duration

	warmOnce sync.Once

	mu     sync.Mutex
	idle   []*Handle
	inUse  map[int64]*Handle
	closed bool

	nextID    atomic.Int64
	created   atomic.Int64
	destroyed atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxAge retires sessions older than d on release instead of reusing
// them. Zero disables age-based retirement.
func WithMaxAge(d time.Duration) Option {
	return func(p *Pool) { p.maxAge = d }
}

// NewPool creates a pool that keeps target sessions warm. No session is
// created until the first Acquire.
func NewPool(target int, factory Factory, opts ...Option) *Pool {
	if target < 1 {
		target = 1
	}
	p := &Pool{
		target:  target,
		factory: factory,
		inUse:   make(map[int64]*Handle),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns an idle handle, creating one on demand when none is idle.
// The first call pre-creates target sessions.
func (p *Pool) Acquire() (*Handle, error) {
	p.warmOnce.Do(p.warmUp)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		h.state.Store(int32(InUse))
		p.inUse[h.ID] = h
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	// Overflow: create outside the lock so other callers are not serialized
	// behind a browser tab spin-up.
	h, err := p.create()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create rendering session", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.destroy(h)
		return nil, ErrPoolClosed
	}
	h.state.Store(int32(InUse))
	p.inUse[h.ID] = h
	p.mu.Unlock()

	slog.Debug("renderer: overflow session created", "id", h.ID)
	return h, nil
}

// Release returns h to the pool. A healthy handle that has not exceeded the
// max age is reset and kept idle if fewer than target handles are idle;
// otherwise it is destroyed.
func (p *Pool) Release(h *Handle, healthy bool) {
	if h == nil {
		return
	}
	if !h.state.CompareAndSwap(int32(InUse), int32(Dead)) {
		// Dead here means Close already destroyed it.
		if h.State() != Dead {
			slog.Warn("renderer: release of handle not in use", "id", h.ID, "state", h.State().String())
		}
		return
	}

	p.mu.Lock()
	if _, ok := p.inUse[h.ID]; !ok {
		// Close took it between the state change and the lock.
		p.mu.Unlock()
		return
	}
	delete(p.inUse, h.ID)
	keep := healthy && !p.closed && len(p.idle) < p.target && !p.expired(h)
	p.mu.Unlock()

	if !keep {
		p.destroy(h)
		return
	}

	if err := h.Session.Reset(); err != nil {
		slog.Warn("renderer: session reset failed, discarding", "id", h.ID, "error", err)
		p.destroy(h)
		return
	}

	p.mu.Lock()
	if p.closed || len(p.idle) >= p.target {
		p.mu.Unlock()
		p.destroy(h)
		return
	}
	h.state.Store(int32(Idle))
	p.idle = append(p.idle, h)
	p.mu.Unlock()
}

// Do acquires a session, runs fn and releases the session on every exit
// path. The release is healthy only when fn returns nil; a panic in fn
// releases the session as unhealthy and is re-raised.
func (p *Pool) Do(fn func(Session) error) (err error) {
	h, err := p.Acquire()
	if err != nil {
		return err
	}

	healthy := false
	defer func() {
		p.Release(h, healthy)
	}()

	err = fn(h.Session)
	healthy = err == nil
	return err
}

// Stats returns a snapshot of the pool's current state.
func (p *Pool) Stats() models.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.PoolStats{
		Target:    p.target,
		Idle:      len(p.idle),
		InUse:     len(p.inUse),
		Created:   p.created.Load(),
		Destroyed: p.destroyed.Load(),
	}
}

// Close destroys every idle and in-use session. Later releases are no-ops
// and later acquires fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handles := make([]*Handle, 0, len(p.idle)+len(p.inUse))
	handles = append(handles, p.idle...)
	for _, h := range p.inUse {
		handles = append(handles, h)
	}
	p.idle = nil
	p.inUse = make(map[int64]*Handle)
	p.mu.Unlock()

	for _, h := range handles {
		h.state.Store(int32(Dead))
		p.destroy(h)
	}
	slog.Info("renderer: pool closed", "destroyed", len(handles))
}

// warmUp pre-creates target sessions. Failures are logged; Acquire falls
// back to on-demand creation.
func (p *Pool) warmUp() {
	for i := 0; i < p.target; i++ {
		h, err := p.create()
		if err != nil {
			slog.Warn("renderer: failed to pre-create session", "error", err)
			continue
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.destroy(h)
			return
		}
		p.idle = append(p.idle, h)
		p.mu.Unlock()
	}
	slog.Info("renderer: pool warmed up", "target", p.target, "idle", p.Stats().Idle)
}

func (p *Pool) expired(h *Handle) bool {
	return p.maxAge > 0 && h.Age() >= p.maxAge
}

func (p *Pool) create() (*Handle, error) {
	s, err := p.factory()
	if err != nil {
		return nil, err
	}
	h := &Handle{
		ID:      p.nextID.Add(1),
		Session: s,
		created: time.Now(),
	}
	p.created.Add(1)
	return h, nil
}

// destroy closes the session, logging and swallowing any error.
func (p *Pool) destroy(h *Handle) {
	h.state.Store(int32(Dead))
	p.destroyed.Add(1)
	if err := h.Session.Close(); err != nil {
		slog.Warn("renderer: failed to close session", "id", h.ID, "error", err)
	}
}
