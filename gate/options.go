package gate

import (
	"time"

	"github.com/vitwit/x402-gate/logger"
	"github.com/vitwit/x402-gate/metrics"
	"github.com/vitwit/x402-gate/reconcile"
	"github.com/vitwit/x402-gate/session"
	"github.com/vitwit/x402-gate/settlement"
	"github.com/vitwit/x402-gate/verification"
)

type Option func(*Gate)

func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		g.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gate) {
		g.metrics = r
	}
}

// WithTimeout sets the fallback timeout of facilitator calls.
func WithTimeout(t time.Duration) Option {
	return func(g *Gate) {
		g.timeout = t
	}
}

// WithVerifier replaces the verifier selected by Config.Verifier.
func WithVerifier(v verification.Verifier) Option {
	return func(g *Gate) {
		g.verifier = v
	}
}

// WithSettler replaces the facilitator settler.
func WithSettler(s settlement.Settler) Option {
	return func(g *Gate) {
		g.settler = s
	}
}

// WithSessionStore sets the paid session store used with
// Config.SessionHeader.
func WithSessionStore(s session.Store) Option {
	return func(g *Gate) {
		g.sessions = s
	}
}

// WithReconcileQueue receives payments whose response was delivered but
// whose settlement failed.
func WithReconcileQueue(q reconcile.Queue) Option {
	return func(g *Gate) {
		g.reconcile = q
	}
}
