package store

import "github.com/okian/gridduel/pkg/logger"

type options struct {
	log logger.Logger
}

func defaultOptions() options { return options{log: logger.Nop()} }

// Option configures a MemoryStore.
type Option func(*options)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
