// Package facilitator is the RPC client of the x402 facilitator service,
// which verifies and settles payments on the resource server's behalf.
package facilitator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
	"gopkg.in/h2non/gentleman.v2"
	"gopkg.in/h2non/gentleman.v2/plugins/timeout"
)

// Config locates the facilitator.
type Config = types.FacilitatorConfig

// Operation keys used for per-call headers.
const (
	OpVerify    = "verify"
	OpSettle    = "settle"
	OpSupported = "supported"
)

// DefaultTimeout bounds calls whose requirements carry no timeout.
const DefaultTimeout = 30 * time.Second

// Client calls a facilitator. It is safe for concurrent use and shares one
// pooled HTTP client across requests.
type Client struct {
	url           string
	cli           *gentleman.Client
	createHeaders types.HeadersFunc
	timeout       time.Duration
}

type Option func(*Client)

// WithTimeout sets the fallback call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New validates cfg and builds a client. An empty url selects
// types.DefaultFacilitatorURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	url := cfg.URL
	if url == "" {
		url = types.DefaultFacilitatorURL
	}
	if err := utils.ValidateFacilitatorURL(url); err != nil {
		return nil, types.NewError(types.ErrCodeConfig, err.Error(), err)
	}
	url = strings.TrimRight(url, "/")

	c := &Client{
		url:           url,
		cli:           gentleman.New().URL(url),
		createHeaders: cfg.CreateHeaders,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the normalized facilitator base url.
func (c *Client) URL() string {
	return c.url
}

// Verify asks the facilitator whether payload satisfies req. It fails
// closed: when the facilitator cannot be reached or answers with garbage,
// the result is invalid with reason facilitator_unavailable or
// invalid_response and err describes the cause.
func (c *Client) Verify(ctx context.Context, payload *types.PaymentPayload, req *types.PaymentRequirements) (*types.VerifyResponse, error) {
	var out types.VerifyResponse
	body, status, err := c.post(ctx, OpVerify, payload, req)
	if err != nil {
		return &types.VerifyResponse{InvalidReason: types.InvalidReasonFacilitatorUnavailable}, err
	}

	// some facilitators answer an invalid payment with a 4xx and a verify body
	if status/100 != 2 && !gjson.GetBytes(body, "isValid").Exists() {
		return &types.VerifyResponse{InvalidReason: types.InvalidReasonFacilitatorUnavailable},
			statusError(OpVerify, status, body)
	}

	if err := decode(body, &out); err != nil {
		return &types.VerifyResponse{InvalidReason: types.InvalidReasonInvalidResponse}, err
	}
	if !out.IsValid && out.InvalidReason == "" {
		out.InvalidReason = types.InvalidReasonUnknown
	}
	return &out, nil
}

// Settle asks the facilitator to settle a verified payment. Failures are
// reported as an unsuccessful result plus the transport error.
func (c *Client) Settle(ctx context.Context, payload *types.PaymentPayload, req *types.PaymentRequirements) (*types.SettleResponse, error) {
	var out types.SettleResponse
	failed := func(reason string, err error) (*types.SettleResponse, error) {
		return &types.SettleResponse{
			Success:     false,
			Error:       err.Error(),
			ErrorReason: reason,
			Network:     req.Network,
		}, err
	}

	body, status, err := c.post(ctx, OpSettle, payload, req)
	if err != nil {
		return failed(types.InvalidReasonFacilitatorUnavailable, err)
	}

	if status/100 != 2 && !gjson.GetBytes(body, "success").Exists() {
		return failed(types.InvalidReasonFacilitatorUnavailable, statusError(OpSettle, status, body))
	}

	if err := decode(body, &out); err != nil {
		return failed(types.InvalidReasonInvalidResponse, err)
	}
	if out.Network == "" {
		out.Network = req.Network
	}
	return &out, nil
}

// Supported lists the scheme/network kinds the facilitator handles.
func (c *Client) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r := c.cli.Get()
	r.AddPath("/supported")
	if err := c.prepare(ctx, r, OpSupported, c.timeout); err != nil {
		return nil, err
	}

	res, err := r.Send()
	if err != nil {
		return nil, types.NewError(types.ErrCodeNetworkError, fmt.Sprintf("facilitator supported: %v", err), err)
	}
	defer res.Close()

	body := res.Bytes()
	if !res.Ok {
		return nil, statusError(OpSupported, res.StatusCode, body)
	}

	var out types.SupportedResponse
	if err := decode(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, op string, payload *types.PaymentPayload, req *types.PaymentRequirements) ([]byte, int, error) {
	d := c.callTimeout(req)
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	r := c.cli.Post()
	r.AddPath("/" + op)
	r.JSON(types.FacilitatorRequest{
		X402Version:         payload.X402Version,
		PaymentPayload:      *payload,
		PaymentRequirements: *req,
	})
	if err := c.prepare(ctx, r, op, d); err != nil {
		return nil, 0, err
	}

	res, err := r.Send()
	if err != nil {
		return nil, 0, types.NewError(types.ErrCodeNetworkError, fmt.Sprintf("facilitator %s: %v", op, err), err)
	}
	defer res.Close()

	return res.Bytes(), res.StatusCode, nil
}

func (c *Client) prepare(ctx context.Context, r *gentleman.Request, op string, d time.Duration) error {
	r.Use(timeout.Request(d))
	r.Context.SetCancelContext(ctx)

	if c.createHeaders == nil {
		return nil
	}
	headers, err := c.createHeaders(ctx)
	if err != nil {
		return types.NewError(types.ErrCodeNetworkError, fmt.Sprintf("facilitator headers: %v", err), err)
	}
	for k, v := range headers[op] {
		r.SetHeader(k, v)
	}
	return nil
}

// callTimeout derives the per-call bound from the requirement.
func (c *Client) callTimeout(req *types.PaymentRequirements) time.Duration {
	if req != nil && req.MaxTimeoutSeconds > 0 {
		return time.Duration(req.MaxTimeoutSeconds) * time.Second
	}
	return c.timeout
}

func statusError(op string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "message").String()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return types.NewError(types.ErrCodeNetworkError, fmt.Sprintf("facilitator %s returned %d: %s", op, status, msg), nil)
}
