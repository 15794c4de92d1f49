// Package client pays x402 challenges on the caller's behalf. Its Transport
// wraps an http.RoundTripper, answers a 402 with a signed payment and
// retries the request once.
package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/vitwit/x402-gate/encoding"
	"github.com/vitwit/x402-gate/ledger"
	"github.com/vitwit/x402-gate/logger"
	"github.com/vitwit/x402-gate/types"
)

// Client builds payment headers with a Ledger.
type Client struct {
	ledger ledger.Ledger
	payer  string

	selector Selector
	network  string
	scheme   string
	maxValue *big.Int

	log logger.Logger
}

type Option func(*Client)

// WithSelector replaces DefaultSelector.
func WithSelector(s Selector) Option {
	return func(c *Client) {
		if s != nil {
			c.selector = s
		}
	}
}

// WithNetwork only pays requirements on network.
func WithNetwork(network types.Network) Option {
	return func(c *Client) { c.network = string(network) }
}

// WithScheme only pays requirements of scheme.
func WithScheme(scheme string) Option {
	return func(c *Client) { c.scheme = scheme }
}

// WithMaxValue caps the atomic amount the client agrees to pay.
func WithMaxValue(v *big.Int) Option {
	return func(c *Client) { c.maxValue = v }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client paying from payer with l.
func New(l ledger.Ledger, payer string, opts ...Option) *Client {
	c := &Client{
		ledger:   l,
		payer:    payer,
		selector: DefaultSelector,
		log:      logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select applies the configured selector to accepts.
func (c *Client) Select(accepts []types.PaymentRequirements) (types.PaymentRequirements, error) {
	return c.selector(accepts, c.network, c.scheme, c.maxValue)
}

// Pay selects a requirement of challenge and returns the X-PAYMENT header
// paying it.
func (c *Client) Pay(ctx context.Context, challenge *types.PaymentRequiredResponse) (string, error) {
	req, err := c.Select(challenge.Accepts)
	if err != nil {
		return "", err
	}
	return c.CreatePaymentHeader(ctx, req, challenge.X402Version)
}

// CreatePaymentHeader signs a transfer of exactly req.MaxAmountRequired
// of req.Asset to req.PayTo and returns base64(JSON(PaymentPayload)).
// Every call uses a freshly generated transaction id.
func (c *Client) CreatePaymentHeader(ctx context.Context, req types.PaymentRequirements, version int) (string, error) {
	network := types.Network(req.Network)
	if _, ok := network.Info(); !ok {
		return "", types.NewError(types.ErrCodeUnsupportedNetwork, fmt.Sprintf("unsupported network: %s", req.Network), nil)
	}

	feePayer := req.FeePayer()
	if network.IsHedera() && feePayer == "" {
		return "", types.NewError(types.ErrCodePayment, "feePayer is required in paymentRequirements.extra", nil)
	}

	amount, err := req.Amount()
	if err != nil {
		return "", types.NewError(types.ErrCodePayment, err.Error(), err)
	}

	// Hedera transaction ids are issued under the account paying the fee.
	idAccount := feePayer
	if idAccount == "" {
		idAccount = c.payer
	}
	txID, err := c.ledger.GenerateTransactionID(ctx, idAccount)
	if err != nil {
		return "", types.NewError(types.ErrCodePayment, fmt.Sprintf("failed to generate transaction id: %v", err), err)
	}

	signed, err := c.ledger.SignTransfer(ctx, ledger.Transfer{
		TransactionID: txID,
		Network:       network,
		From:          c.payer,
		To:            req.PayTo,
		Asset:         req.Asset,
		Amount:        amount,
		FeePayer:      feePayer,
		ValidFor:      time.Duration(req.MaxTimeoutSeconds) * time.Second,
		Extra:         req.Extra,
	})
	if err != nil {
		return "", types.NewError(types.ErrCodePayment, fmt.Sprintf("failed to sign transfer: %v", err), err)
	}

	if version <= 0 {
		version = int(types.X402Version1)
	}
	payload := types.PaymentPayload{
		X402Version: version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload:     map[string]interface{}{"transaction": base64.StdEncoding.EncodeToString(signed)},
	}

	c.log.Debug("created payment", map[string]any{
		"network": req.Network,
		"payTo":   req.PayTo,
		"amount":  req.MaxAmountRequired,
		"txId":    txID,
	})
	return encoding.Encode(payload)
}

// DecodePaymentResponse decodes an X-PAYMENT-RESPONSE header.
func DecodePaymentResponse(header string) (*types.SettleResponse, error) {
	return encoding.DecodeSettleResponse(header)
}
