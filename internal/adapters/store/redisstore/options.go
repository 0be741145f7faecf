package redisstore

import (
	"time"

	"github.com/okian/gridduel/pkg/logger"
)

const (
	defaultPrefix       = "gridduel:"
	defaultMaxRetries   = 200
	defaultReapInterval = time.Second
)

type options struct {
	prefix       string
	maxRetries   int
	reapInterval time.Duration
	log          logger.Logger
	now          func() time.Time
}

func defaultOptions() options {
	return options{
		prefix:       defaultPrefix,
		maxRetries:   defaultMaxRetries,
		reapInterval: defaultReapInterval,
		log:          logger.Nop(),
		now:          time.Now,
	}
}

// Option configures a Store.
type Option func(*options)

// WithPrefix namespaces every key and channel.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithMaxRetries bounds optimistic transaction retries before ErrConflict.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithReapInterval sets how often expired leases are looked for.
func WithReapInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reapInterval = d
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l.Named("redisstore")
		}
	}
}

// WithClock overrides the lease clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
