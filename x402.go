// Package x402 implements the x402 payment protocol for HTTP services on
// Hedera and EVM networks: a payment gate for resource servers, an auto-pay
// transport for clients, and the facilitator client both rely on.
package x402

import (
	"context"
	"time"


	"github.com/vitwit/x402-gate/client"
	"github.com/vitwit/x402-gate/facilitator"
	"github.com/vitwit/x402-gate/gate"
	"github.com/vitwit/x402-gate/ledger"
	"github.com/vitwit/x402-gate/logger"
	"github.com/vitwit/x402-gate/metrics"
	"github.com/vitwit/x402-gate/settlement"
	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/verification"
)

// X402 bundles a facilitator connection with the logger and metrics shared
// by every gate built from it.
type X402 struct {
	facilitator *facilitator.Client
	verifier    verification.Verifier
	settler     settlement.Settler

	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration
}

// New connects to the facilitator described by cfg.
func New(cfg facilitator.Config, opts ...Option) (*X402, error) {
	x := &X402{
		logger:  logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: facilitator.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(x)
	}

	fc, err := facilitator.New(cfg, facilitator.WithTimeout(x.timeout))
	if err != nil {
		return nil, err
	}
	x.facilitator = fc
	x.verifier = fc
	x.settler = fc
	return x, nil
}

// NewWithDefaults uses the default facilitator.
func NewWithDefaults() *X402 {
	x, err := New(facilitator.Config{})
	if err != nil {
		// the default url is valid
		panic(err)
	}
	return x
}

// Facilitator returns the underlying facilitator client.
func (x *X402) Facilitator() *facilitator.Client {
	return x.facilitator
}

// NewGate builds a gate settling through this facilitator. opts are applied
// after the shared ones and may override them.
func (x *X402) NewGate(cfg gate.Config, opts ...gate.Option) (*gate.Gate, error) {
	base := []gate.Option{
		gate.WithLogger(x.logger),
		gate.WithMetrics(x.metrics),
		gate.WithTimeout(x.timeout),
		gate.WithSettler(x.settler),
	}
	if cfg.Verifier == "" || cfg.Verifier == types.VerifierFacilitator {
		base = append(base, gate.WithVerifier(x.verifier))
	} else {
		v, err := verification.New(cfg.Verifier, x.verifier)
		if err != nil {
			return nil, err
		}
		base = append(base, gate.WithVerifier(v))
	}
	return gate.New(cfg, append(base, opts...)...)
}

// NewClient returns an auto-pay client signing with l.
func (x *X402) NewClient(l ledger.Ledger, payer string, opts ...client.Option) *client.Client {
	return client.New(l, payer, append([]client.Option{client.WithLogger(x.logger)}, opts...)...)
}

// Verify asks the facilitator to verify a payment.
func (x *X402) Verify(ctx context.Context, payload *types.PaymentPayload, req *types.PaymentRequirements) (*types.VerifyResponse, error) {
	return x.verifier.Verify(ctx, payload, req)
}

// Settle settles a verified payment. A failed settlement is returned as a
// SETTLEMENT_FAILED error along with the facilitator's result.
func (x *X402) Settle(ctx context.Context, payload *types.PaymentPayload, req *types.PaymentRequirements) (*types.SettleResponse, error) {
	return settlement.Settle(ctx, x.settler, payload, req)
}

// QuickVerify performs the structural checks without contacting the
// facilitator.
func (x *X402) QuickVerify(ctx context.Context, payload *types.PaymentPayload, req *types.PaymentRequirements) (*types.VerifyResponse, error) {
	return verification.StructuralVerifier{}.Verify(ctx, payload, req)
}

// Supported lists what the facilitator can verify and settle.
func (x *X402) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	return x.facilitator.Supported(ctx)
}

// IsNetworkSupported reports whether the facilitator handles the exact
// scheme on network.
func (x *X402) IsNetworkSupported(ctx context.Context, network types.Network) bool {
	res, err := x.Supported(ctx)
	if err != nil {
		x.logger.Warn("failed to list supported kinds", map[string]any{"error": err})
		return false
	}
	for _, kind := range res.Kinds {
		if kind.Network == network.String() && kind.Scheme == client.SchemeExact {
			return true
		}
	}
	return false
}

// Version information
const (
	Version         = "1.0.0"
	ProtocolVersion = int(types.X402Version1)
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	networks := make([]string, 0, len(types.SupportedNetworks()))
	for _, n := range types.SupportedNetworks() {
		networks = append(networks, n.String())
	}
	return map[string]interface{}{
		"library_version":    Version,
		"protocol_version":   ProtocolVersion,
		"supported_networks": networks,
		"supported_schemes":  []string{client.SchemeExact},
	}
}
