package vecdex

import (
	"log/slog"

	"github.com/hupe1980/vecdex/codec"
	"github.com/hupe1980/vecdex/dispatch"
	"github.com/hupe1980/vecdex/resource"
)

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	dispatcher       *dispatch.Dispatcher
	controller       *resource.Controller
}

// Option configures index construction and load behavior.
type Option func(*options)

// WithCodec configures the codec used for snapshot payloads.
//
// If nil is passed, codec.Default is used. Loading always honors the codec
// recorded in the snapshot, regardless of this option.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecdex.BasicMetricsCollector{}
//	ix, _ := vecdex.New(cfg, vecdex.WithMetricsCollector(metrics))
//	// ... use ix ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
//
// Example with JSON logging:
//
//	logger := vecdex.NewJSONLogger(slog.LevelInfo)
//	ix, _ := vecdex.New(cfg, vecdex.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithDispatcher configures a dedicated worker pool instead of the shared
// process-global one. The caller owns the dispatcher's lifecycle.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithResourceController bounds the memory, background-job and snapshot-IO
// footprint of this index.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}

	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.dispatcher == nil {
		o.dispatcher = dispatch.Default()
	}

	return o
}
