package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// gauge is the value exported on the breaker state gauge.
func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	}
	return -1
}

// BreakerConfig tunes a Breaker. Zero values fall back to defaults.
type BreakerConfig struct {
	// Vendor labels metrics and log lines.
	Vendor string

	// Window is how many recent outcomes feed the failure ratio. MinRequests
	// outcomes must be recorded before the breaker may open.
	Window       int
	MinRequests  int
	FailureRatio float64

	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Vendor = strings.TrimSpace(c.Vendor); c.Vendor == "" {
		c.Vendor = "default"
	}
	if c.MinRequests <= 0 {
		c.MinRequests = 1
	}
	if c.Window < c.MinRequests {
		c.Window = max(20, c.MinRequests)
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker guards calls to one payment vendor. It keeps a ring of the most
// recent outcomes and opens once the failure share of that ring reaches
// FailureRatio. After Cooldown a single probe decides whether it closes again.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	ring     []bool
	next     int
	filled   int
	failed   int
	probing  bool
	openedAt time.Time
}

// NewBreaker returns a closed breaker for cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{cfg: cfg, ring: make([]bool, cfg.Window)}
	BreakerState.WithLabelValues(cfg.Vendor).Set(Closed.gauge())
	return b
}

// Vendor returns the label the breaker reports under.
func (b *Breaker) Vendor() string { return b.cfg.Vendor }

// Allow returns ErrOpenCircuit while the breaker rejects traffic. Exactly one
// caller is admitted per half-open period and must Report its outcome.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpenCircuit
		}
		b.moveLocked(ctx, HalfOpen)
	}
	if b.state == HalfOpen {
		if b.probing {
			return ErrOpenCircuit
		}
		b.probing = true
	}
	return nil
}

// Report records the outcome of an admitted request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if b.filled == len(b.ring) {
		if !b.ring[b.next] {
			b.failed--
		}
	} else {
		b.filled++
	}
	b.ring[b.next] = success
	if !success {
		b.failed++
	}
	b.next = (b.next + 1) % len(b.ring)

	if b.filled >= b.cfg.MinRequests && float64(b.failed)/float64(b.filled) >= b.cfg.FailureRatio {
		b.moveLocked(ctx, Open)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) moveLocked(ctx context.Context, to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.next, b.filled, b.failed = 0, 0, 0
	if to == Open {
		b.openedAt = b.cfg.Now()
		BreakerOpenedTotal.WithLabelValues(b.cfg.Vendor).Inc()
	}
	BreakerState.WithLabelValues(b.cfg.Vendor).Set(to.gauge())
	BreakerTransitions.WithLabelValues(b.cfg.Vendor, from.String(), to.String()).Inc()

	logger := b.cfg.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Warn()
	if to == Closed {
		evt = logger.Info()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("vendor", b.cfg.Vendor).
		Str("from_state", from.String()).
		Str("to_state", to.String()).
		Msg("vendor_breaker_transition")
}
