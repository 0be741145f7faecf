package session

import (
	"time"

	"github.com/okian/gridduel/internal/domain/scoring"
	"github.com/okian/gridduel/pkg/logger"
)

const (
	defaultHeartbeat    = 5 * time.Second
	defaultProgress     = 3 * time.Second
	defaultTimeLimit    = 10 * time.Minute
	defaultDrainTimeout = 3 * time.Second
	defaultOpTimeout    = 5 * time.Second
	defaultOutboxSize   = 1024
	defaultEventBuffer  = 256
	defaultBackoffMin   = 100 * time.Millisecond
	defaultBackoffMax   = 5 * time.Second
)

type options struct {
	heartbeat    time.Duration
	progress     time.Duration
	timeLimit    time.Duration
	drainTimeout time.Duration
	opTimeout    time.Duration
	outboxSize   int
	eventBuffer  int
	maxHints     int
	backoffMin   time.Duration
	backoffMax   time.Duration
	log          logger.Logger
	now          func() time.Time
}

func defaultOptions() options {
	return options{
		heartbeat:    defaultHeartbeat,
		progress:     defaultProgress,
		timeLimit:    defaultTimeLimit,
		drainTimeout: defaultDrainTimeout,
		opTimeout:    defaultOpTimeout,
		outboxSize:   defaultOutboxSize,
		eventBuffer:  defaultEventBuffer,
		maxHints:     scoring.DefaultMaxHints,
		backoffMin:   defaultBackoffMin,
		backoffMax:   defaultBackoffMax,
		log:          logger.Nop(),
		now:          time.Now,
	}
}

// Option configures a Controller.
type Option func(*options)

func positive(d time.Duration, dst *time.Duration) {
	if d > 0 {
		*dst = d
	}
}

// WithHeartbeatInterval sets how often presence is renewed.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) { positive(d, &o.heartbeat) }
}

// WithProgressInterval sets how often Blind Race progress is published.
func WithProgressInterval(d time.Duration) Option {
	return func(o *options) { positive(d, &o.progress) }
}

// WithTimeLimit sets the Live Battle wall-clock cap.
func WithTimeLimit(d time.Duration) Option {
	return func(o *options) { positive(d, &o.timeLimit) }
}

// WithDrainTimeout bounds how long teardown waits for queued writes.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) { positive(d, &o.drainTimeout) }
}

// WithOpTimeout bounds each queued write.
func WithOpTimeout(d time.Duration) Option {
	return func(o *options) { positive(d, &o.opTimeout) }
}

// WithOutboxSize sets the capacity of the write queue.
func WithOutboxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.outboxSize = n
		}
	}
}

// WithMaxHints caps hints per match.
func WithMaxHints(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxHints = n
		}
	}
}

// WithReconnectBackoff sets the resubscribe backoff bounds.
func WithReconnectBackoff(lo, hi time.Duration) Option {
	return func(o *options) {
		positive(lo, &o.backoffMin)
		positive(hi, &o.backoffMax)
	}
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
