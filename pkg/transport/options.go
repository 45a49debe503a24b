package transport

import (
	"log/slog"
	"time"

	"posebridge/pkg/protocol"
)

type options struct {
	logger        *slog.Logger
	errorHandler  func(error)
	stateHandler  func(State)
	sampleHandler func(protocol.Sample)
	readTimeout   time.Duration
	dialTimeout   time.Duration
	writeTimeout  time.Duration
	reconnect     time.Duration
	reconnectMax  time.Duration
}

func defaultOptions() options {
	return options{
		logger:       slog.New(slog.DiscardHandler),
		dialTimeout:  5 * time.Second,
		writeTimeout: 5 * time.Second,
		reconnect:    1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
}

// Option configures a Receiver or a Sender.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.errorHandler = fn
		}
	}
}

// WithStateHandler is called on the receiver goroutine for every
// lifecycle transition. It must not block.
func WithStateHandler(fn func(State)) Option {
	return func(o *options) {
		if fn != nil {
			o.stateHandler = fn
		}
	}
}

// WithSampleHandler is called on the receiver goroutine after each
// decoded pose has been published. It must not block.
func WithSampleHandler(fn func(protocol.Sample)) Option {
	return func(o *options) {
		if fn != nil {
			o.sampleHandler = fn
		}
	}
}

// WithReadTimeout sets an idle read deadline on the connected client.
// An expired deadline is an I/O error and fails the receiver.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

func WithReconnectInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnect = d
		}
	}
}

func WithReconnectMax(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnectMax = d
		}
	}
}
