package types

import (
	"fmt"
	"math/big"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

const (
	// HeaderPayment carries base64(JSON(PaymentPayload)) on the paid request.
	HeaderPayment = "X-PAYMENT"

	// HeaderPaymentResponse carries base64(JSON(SettleResponse)) on the paid response.
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// PaymentRequirements defines the requirements a resource server accepts for payment.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme" validate:"required"`

	// Network of the ledger to send payment on (e.g., "hedera-testnet").
	Network string `json:"network" validate:"required"`

	// Maximum amount required to pay for the resource in atomic units of the asset.
	// Represented as a string because amounts can exceed uint64.
	MaxAmountRequired string `json:"maxAmountRequired" validate:"required,numeric"`

	// URL of the resource to pay for.
	Resource string `json:"resource"`

	// Description of the resource being purchased.
	Description string `json:"description"`

	// MIME type of the resource response (e.g., "application/json").
	MimeType string `json:"mimeType"`

	// Address or account id to which the payment must be sent.
	PayTo string `json:"payTo" validate:"required"`

	// Maximum time in seconds for the resource server to respond.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds" validate:"gt=0"`

	// Asset identifier. The network's native sentinel denotes the native asset.
	Asset string `json:"asset" validate:"required"`

	// Extra information about payment details specific to the scheme,
	// e.g. the fee payer account on Hedera.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequiredResponse is the body of every 402 response.
type PaymentRequiredResponse struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version"`

	// Message from the resource server indicating any processing error.
	Error string `json:"error"`

	// List of payment requirements that the resource server accepts.
	Accepts []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is the decoded content of the X-PAYMENT header.
type PaymentPayload struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version"`

	Scheme string `json:"scheme"`

	Network string `json:"network"`

	// Scheme specific data. For "exact" it holds a base64 signed transaction
	// under the "transaction" key.
	Payload map[string]interface{} `json:"payload"`
}

// Validate checks that the decoded payload carries every required field.
func (p *PaymentPayload) Validate() error {
	if p.X402Version <= 0 {
		return fmt.Errorf("x402Version must be greater than 0")
	}
	if p.Scheme == "" {
		return fmt.Errorf("scheme is required")
	}
	if p.Network == "" {
		return fmt.Errorf("network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payload is required")
	}
	return nil
}

// Transaction returns the base64 signed transaction of an "exact" payload.
func (p *PaymentPayload) Transaction() string {
	if p.Payload == nil {
		return ""
	}
	tx, _ := p.Payload["transaction"].(string)
	return tx
}

// FacilitatorRequest is the body of the facilitator /verify and /settle calls.
type FacilitatorRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse represents the facilitator's verification result.
type VerifyResponse struct {
	// Indicates whether the payment is valid.
	IsValid bool `json:"isValid"`

	// Provides a reason if the payment is invalid.
	InvalidReason string `json:"invalidReason,omitempty"`

	Payer string `json:"payer,omitempty"`
}

// SettleResponse represents the facilitator's settlement result.
type SettleResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	ErrorReason   string `json:"errorReason,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	Network       string `json:"network,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Reason returns the most specific failure description of the settlement.
func (s *SettleResponse) Reason() string {
	if s.ErrorReason != "" {
		return s.ErrorReason
	}
	if s.Error != "" {
		return s.Error
	}
	return "Unknown error"
}

type SupportedItem struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

type SupportedResponse struct {
	Kinds []SupportedItem `json:"kinds"`
}

// Amount parses MaxAmountRequired as a base-10 nonnegative integer.
func (pr *PaymentRequirements) Amount() (*big.Int, error) {
	n, ok := new(big.Int).SetString(pr.MaxAmountRequired, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("maxAmountRequired %q is not a nonnegative integer", pr.MaxAmountRequired)
	}
	return n, nil
}

// FeePayer returns extra.feePayer if present.
func (pr *PaymentRequirements) FeePayer() string {
	if pr.Extra == nil {
		return ""
	}
	fp, _ := pr.Extra["feePayer"].(string)
	return fp
}

func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}

	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}

	if _, err := pr.Amount(); err != nil {
		return fmt.Errorf("paymentRequirements.%w", err)
	}

	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}

	if pr.Asset == "" {
		return fmt.Errorf("paymentRequirements.asset is required")
	}

	if pr.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must be greater than 0")
	}

	return nil
}

// FindMatchingRequirements returns the first requirement whose scheme and
// network equal the payload's.
func FindMatchingRequirements(accepts []PaymentRequirements, payment *PaymentPayload) (PaymentRequirements, bool) {
	for _, req := range accepts {
		if req.Scheme == payment.Scheme && req.Network == payment.Network {
			return req, true
		}
	}
	return PaymentRequirements{}, false
}
