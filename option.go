package x402

import (
	"time"

	"github.com/vitwit/x402-gate/logger"
	"github.com/vitwit/x402-gate/metrics"
)

type Option func(*X402)

func WithLogger(l logger.Logger) Option {
	return func(x *X402) {
		if l != nil {
			x.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(x *X402) {
		if r != nil {
			x.metrics = r
		}
	}
}

// WithTimeout bounds facilitator calls whose requirements carry no timeout.
func WithTimeout(t time.Duration) Option {
	return func(x *X402) {
		x.timeout = t
	}
}
