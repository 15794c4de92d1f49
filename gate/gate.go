// Package gate implements the x402 payment gate: a net/http middleware that
// requires a verified payment before invoking the wrapped handler and
// settles it once the handler succeeded.
package gate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitwit/x402-gate/encoding"
	"github.com/vitwit/x402-gate/facilitator"
	"github.com/vitwit/x402-gate/logger"
	"github.com/vitwit/x402-gate/metrics"
	"github.com/vitwit/x402-gate/pathmatch"
	"github.com/vitwit/x402-gate/paywall"
	"github.com/vitwit/x402-gate/reconcile"
	"github.com/vitwit/x402-gate/session"
	"github.com/vitwit/x402-gate/settlement"
	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
	"github.com/vitwit/x402-gate/verification"
)

// Challenge error messages.
const (
	ErrMsgMissingHeader = "No X-PAYMENT header provided"
	ErrMsgInvalidHeader = "Invalid payment header format"
	ErrMsgNoMatch       = "No matching payment requirements found"
)

// Challenge reasons used as the metric label.
const (
	reasonMissingHeader = "missing_header"
	reasonDecode        = "decode_error"
	reasonNoMatch       = "no_matching_requirements"
	reasonInvalid       = "invalid_payment"
	reasonSettle        = "settle_failed"
)

// Gate is safe for concurrent use. Its configuration is immutable after New.
type Gate struct {
	cfg     Config
	price   *utils.Price
	paths   *pathmatch.Matcher
	allowed *pathmatch.Matcher

	verifier  verification.Verifier
	settler   settlement.Settler
	sessions  session.Store
	reconcile reconcile.Queue

	log     logger.Logger
	metrics metrics.Recorder
	timeout time.Duration
}

// New validates cfg and builds a gate. Every configuration problem is
// reported here as a CONFIG_ERROR, before any request is served.
func New(cfg Config, opts ...Option) (*Gate, error) {
	if err := utils.ValidateGateConfig(&cfg); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	price, err := utils.ConfigPrice(cfg)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfig, err.Error(), err)
	}

	paths, err := pathmatch.Compile(cfg.Path...)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfig, err.Error(), err)
	}
	allowed, err := pathmatch.Compile(cfg.AllowedPaths...)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfig, err.Error(), err)
	}

	g := &Gate{
		cfg:     cfg,
		price:   price,
		paths:   paths,
		allowed: allowed,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: facilitator.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.verifier == nil || g.settler == nil {
		fc, err := facilitator.New(cfg.Facilitator, facilitator.WithTimeout(g.timeout))
		if err != nil {
			return nil, err
		}
		if g.verifier == nil {
			if g.verifier, err = verification.New(cfg.Verifier, fc); err != nil {
				return nil, err
			}
		}
		if g.settler == nil {
			g.settler = fc
		}
	}

	if cfg.SessionHeader != "" && g.sessions == nil {
		store, err := session.NewBigCacheStore(session.DefaultTTL)
		if err != nil {
			return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("session store: %v", err), err)
		}
		g.sessions = store
	}

	return g, nil
}

// Config returns the effective configuration.
func (g *Gate) Config() Config {
	return g.cfg
}

// Requirements returns the requirements accepted for r.
func (g *Gate) Requirements(r *http.Request) []types.PaymentRequirements {
	return BuildRequirements(g.cfg, g.price, ResourceURL(r))
}

// Middleware wraps next with the gate.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, next)
	})
}

// Gated reports whether r must carry a payment. Paths outside the gating
// patterns, allowed paths and GET / pass through.
func (g *Gate) Gated(r *http.Request) bool {
	path := r.URL.Path
	if !g.paths.Match(path) {
		return false
	}
	if g.allowed.Match(path) {
		return false
	}
	if r.Method == http.MethodGet && path == "/" {
		return false
	}
	return true
}

func (g *Gate) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	labels := map[string]string{"network": string(g.cfg.Network)}

	if !g.Gated(r) {
		g.metrics.IncCounter(metrics.EventPassthrough, labels)
		next.ServeHTTP(w, r)
		return
	}

	accepts := g.Requirements(r)

	if g.sessions != nil {
		if id := r.Header.Get(g.cfg.SessionHeader); id != "" && g.sessions.IsPaid(id) {
			g.metrics.IncCounter(metrics.EventSessionHit, labels)
			next.ServeHTTP(w, r)
			return
		}
	}

	header := r.Header.Get(types.HeaderPayment)
	if header == "" {
		g.challenge(w, r, accepts, ErrMsgMissingHeader, reasonMissingHeader)
		return
	}

	payload, err := encoding.DecodePaymentPayload(header)
	if err != nil {
		g.log.Warn("invalid payment header", map[string]any{
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
			"error":  err,
		})
		g.challenge(w, r, accepts, ErrMsgInvalidHeader, reasonDecode)
		return
	}

	selected, ok := types.FindMatchingRequirements(accepts, payload)
	if !ok {
		g.challenge(w, r, accepts, ErrMsgNoMatch, reasonNoMatch)
		return
	}

	verified, ok := g.verify(r, payload, &selected)
	if !ok {
		g.challenge(w, r, accepts, verified.InvalidReason, reasonInvalid)
		return
	}

	buf := newBufferedWriter()
	ctx := withPayment(r.Context(), &Payment{Payload: payload, Requirements: selected, Verification: verified})
	next.ServeHTTP(buf, r.WithContext(ctx))

	if !buf.success() {
		g.flush(w, buf, nil)
		return
	}

	g.settle(w, r, buf, accepts, payload, &selected)
}

// verify reports whether the payment is valid. The returned response
// always carries a non-empty invalid reason when it is not.
func (g *Gate) verify(r *http.Request, payload *types.PaymentPayload, req *types.PaymentRequirements) (*types.VerifyResponse, bool) {
	labels := map[string]string{"network": req.Network}
	start := time.Now()
	res, err := g.verifier.Verify(r.Context(), payload, req)
	g.metrics.ObserveLatency(metrics.EventVerify, time.Since(start), labels)
	g.metrics.IncCounter(metrics.EventVerify, labels)

	if res == nil {
		res = &types.VerifyResponse{InvalidReason: types.InvalidReasonFacilitatorUnavailable}
	}
	if err != nil {
		g.log.Warn("payment verification unavailable", map[string]any{
			"path":    r.URL.Path,
			"network": req.Network,
			"error":   err,
		})
		res.IsValid = false
		if res.InvalidReason == "" {
			res.InvalidReason = types.InvalidReasonFacilitatorUnavailable
		}
	}
	if !res.IsValid && res.InvalidReason == "" {
		res.InvalidReason = types.InvalidReasonUnknown
	}
	return res, res.IsValid
}

func (g *Gate) settle(w http.ResponseWriter, r *http.Request, buf *bufferedWriter, accepts []types.PaymentRequirements,
	payload *types.PaymentPayload, req *types.PaymentRequirements) {
	labels := map[string]string{"network": req.Network}
	start := time.Now()
	res, err := settlement.Detached(r.Context(), g.settler, payload, req)
	g.metrics.ObserveLatency(metrics.EventSettle, time.Since(start), labels)

	if err == nil {
		g.metrics.IncCounter(metrics.EventSettle, labels)
		if g.sessions != nil {
			if id := r.Header.Get(g.cfg.SessionHeader); id != "" {
				if err := g.sessions.MarkPaid(id); err != nil {
					g.log.Warn("failed to mark session paid", map[string]any{"error": err})
				}
			}
		}
		g.flush(w, buf, res)
		return
	}

	g.fulfilledUnsettled(r, buf, payload, req, res, err)

	if g.cfg.SettleFailurePolicy == types.SettleFailureChallenge {
		g.challenge(w, r, accepts, err.Error(), reasonSettle)
		return
	}
	g.flush(w, buf, res)
}

// fulfilledUnsettled records a payment whose handler already ran but whose
// settlement failed, so it can be reconciled out of band.
func (g *Gate) fulfilledUnsettled(r *http.Request, buf *bufferedWriter, payload *types.PaymentPayload,
	req *types.PaymentRequirements, res *types.SettleResponse, cause error) {
	g.metrics.IncCounter(metrics.EventFulfilledUnsettled, map[string]string{"network": req.Network, "reason": res.Reason()})

	fields := map[string]any{
		"event":    metrics.EventFulfilledUnsettled,
		"path":     r.URL.Path,
		"resource": req.Resource,
		"network":  req.Network,
		"payTo":    req.PayTo,
		"amount":   req.MaxAmountRequired,
		"status":   buf.status,
		"error":    cause,
	}
	if res.Payer != "" {
		fields["payer"] = res.Payer
	}

	if g.reconcile != nil {
		entry := reconcile.Entry{
			Resource:     req.Resource,
			Status:       buf.status,
			LastError:    cause.Error(),
			Payload:      *payload,
			Requirements: *req,
		}
		if err := g.reconcile.Enqueue(context.WithoutCancel(r.Context()), entry); err != nil {
			fields["enqueueError"] = err
		}
	}

	g.log.Error("payment fulfilled but not settled", fields)
}

func (g *Gate) flush(w http.ResponseWriter, buf *bufferedWriter, res *types.SettleResponse) {
	var extra map[string]string
	if res != nil {
		header, err := encoding.EncodeSettleResponse(res)
		if err != nil {
			g.log.Error("failed to encode settlement response", map[string]any{"error": err})
		} else {
			extra = map[string]string{types.HeaderPaymentResponse: header}
		}
	}
	if err := buf.flush(w, extra); err != nil {
		g.log.Debug("failed to write response", map[string]any{"error": err})
	}
}

func (g *Gate) challenge(w http.ResponseWriter, r *http.Request, accepts []types.PaymentRequirements, msg, reason string) {
	g.log.Info("payment required", map[string]any{
		"reason":  reason,
		"error":   msg,
		"path":    r.URL.Path,
		"network": string(g.cfg.Network),
	})
	g.metrics.IncCounter(metrics.EventChallenge, map[string]string{"network": string(g.cfg.Network), "reason": reason})

	if err := paywall.WriteChallenge(w, r, msg, accepts); err != nil {
		g.log.Debug("failed to write challenge", map[string]any{"error": err})
	}
}
