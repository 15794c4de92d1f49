package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
)

type retriedKey struct{}

// Transport is an http.RoundTripper that pays x402 challenges. A request is
// retried at most once; a 402 on the retry is returned unchanged.
type Transport struct {
	Base   http.RoundTripper
	client *Client
}

// Transport wraps base, or http.DefaultTransport when base is nil.
func (c *Client) Transport(base http.RoundTripper) *Transport {
	return &Transport{Base: base, client: c}
}

// HTTPClient returns an *http.Client paying challenges with c.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c.Transport(nil)}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Context().Value(retriedKey{}) != nil {
		return t.base().RoundTrip(req)
	}

	firstBody, again, err := replayBody(req)
	if err != nil {
		return nil, err
	}

	first := req.Clone(req.Context())
	first.Body = firstBody
	res, err := t.base().RoundTrip(first)
	if err != nil || res.StatusCode != http.StatusPaymentRequired {
		return res, err
	}

	raw, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read payment challenge: %w", err)
	}

	challenge, ok := parseChallenge(raw)
	if !ok {
		// not an x402 challenge; hand it back as received
		res.Body = io.NopCloser(bytes.NewReader(raw))
		return res, nil
	}

	header, err := t.client.Pay(req.Context(), challenge)
	if err != nil {
		return nil, err
	}

	retryBody, err := again()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	retry := req.Clone(context.WithValue(req.Context(), retriedKey{}, true))
	retry.Body = retryBody
	retry.Header.Set(types.HeaderPayment, header)
	retry.Header.Set("Access-Control-Expose-Headers", types.HeaderPaymentResponse)
	return t.base().RoundTrip(retry)
}

// parseChallenge decodes a 402 body. Accepted requirements that do not
// validate are dropped, and a body left without any is not a challenge.
func parseChallenge(raw []byte) (*types.PaymentRequiredResponse, bool) {
	var body struct {
		X402Version int               `json:"x402Version"`
		Error       string            `json:"error"`
		Accepts     []json.RawMessage `json:"accepts"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}

	challenge := &types.PaymentRequiredResponse{X402Version: body.X402Version, Error: body.Error}
	for _, a := range body.Accepts {
		req, err := utils.ParsePaymentRequirements(a)
		if err != nil {
			continue
		}
		challenge.Accepts = append(challenge.Accepts, *req)
	}
	return challenge, len(challenge.Accepts) > 0
}

// replayBody returns the body for the first attempt and a function giving
// it again for the paid retry. The body is read into memory only when the
// request has no GetBody.
func replayBody(req *http.Request) (io.ReadCloser, func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req.Body, func() (io.ReadCloser, error) { return http.NoBody, nil }, nil
	}
	if req.GetBody != nil {
		return req.Body, req.GetBody, nil
	}

	defer req.Body.Close()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("buffer request body: %w", err)
	}
	again := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	first, _ := again()
	return first, again, nil
}
