// Package encoding implements the x402 header codec: canonical JSON wrapped
// in standard base64.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vitwit/x402-gate/types"
)

// Marshal serializes v as compact JSON. Map keys are emitted in sorted order
// and HTML characters are not escaped, so equal values always encode to the
// same bytes.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode returns base64(JSON(v)).
func Encode(v interface{}) (string, error) {
	raw, err := Marshal(v)
	if err != nil {
		return "", types.NewError(types.ErrCodeDecode, fmt.Sprintf("failed to encode payment: %v", err), err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeBase64 accepts padded and unpadded standard base64.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, types.NewError(types.ErrCodeDecode, fmt.Sprintf("invalid base64 encoding: %v", err), err)
	}
	return b, nil
}

// Decode base64-decodes header and unmarshals the JSON into v.
// An empty header means no payment was attempted and must be handled by the
// caller before decoding.
func Decode(header string, v interface{}) error {
	raw, err := DecodeBase64(header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return types.NewError(types.ErrCodeDecode, fmt.Sprintf("invalid payment json: %v", err), err)
	}
	return nil
}

// DecodePaymentPayload decodes and validates an X-PAYMENT header.
func DecodePaymentPayload(header string) (*types.PaymentPayload, error) {
	var p types.PaymentPayload
	if err := Decode(header, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, types.NewError(types.ErrCodeDecode, fmt.Sprintf("invalid payment payload: %v", err), err)
	}
	return &p, nil
}

// EncodeSettleResponse builds the X-PAYMENT-RESPONSE header value.
func EncodeSettleResponse(s *types.SettleResponse) (string, error) {
	return Encode(s)
}

// DecodeSettleResponse parses an X-PAYMENT-RESPONSE header value.
func DecodeSettleResponse(header string) (*types.SettleResponse, error) {
	var s types.SettleResponse
	if err := Decode(header, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
