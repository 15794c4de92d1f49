package types

import "errors"

// X402Error is the error type returned across the module.
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Err     error       `json:"-"`
}

func (e *X402Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *X402Error) Unwrap() error {
	return e.Err
}

// Is matches any X402Error carrying the same code.
func (e *X402Error) Is(target error) bool {
	var t *X402Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrCodeConfig                 = "CONFIG_ERROR"
	ErrCodeDecode                 = "DECODE_ERROR"
	ErrCodeNoMatchingRequirements = "NO_MATCHING_REQUIREMENTS"
	ErrCodeVerificationFailed     = "VERIFICATION_FAILED"
	ErrCodeSettlementFailed       = "SETTLEMENT_FAILED"
	ErrCodeAmountExceeded         = "AMOUNT_EXCEEDED"
	ErrCodeUnsupportedScheme      = "UNSUPPORTED_SCHEME"
	ErrCodeInvalidPrice           = "INVALID_PRICE"
	ErrCodeUnsupportedNetwork     = "UNSUPPORTED_NETWORK"
	ErrCodeNetworkError           = "NETWORK_ERROR"
	ErrCodePayment                = "PAYMENT_ERROR"
)

// Sentinels for errors.Is.
var (
	ErrConfiguration          = &X402Error{Code: ErrCodeConfig, Message: "configuration error"}
	ErrDecode                 = &X402Error{Code: ErrCodeDecode, Message: "decode error"}
	ErrNoMatchingRequirements = &X402Error{Code: ErrCodeNoMatchingRequirements, Message: "no matching payment requirements"}
	ErrVerification           = &X402Error{Code: ErrCodeVerificationFailed, Message: "verification failed"}
	ErrSettlement             = &X402Error{Code: ErrCodeSettlementFailed, Message: "settlement failed"}
	ErrAmountExceeded         = &X402Error{Code: ErrCodeAmountExceeded, Message: "payment amount exceeds maximum"}
	ErrUnsupportedScheme      = &X402Error{Code: ErrCodeUnsupportedScheme, Message: "no supported payment scheme found"}
	ErrInvalidPrice           = &X402Error{Code: ErrCodeInvalidPrice, Message: "invalid price"}
	ErrUnsupportedNetwork     = &X402Error{Code: ErrCodeUnsupportedNetwork, Message: "unsupported network"}
	ErrPayment                = &X402Error{Code: ErrCodePayment, Message: "payment error"}
)

// NewError builds an X402Error wrapping err.
func NewError(code, message string, err error) *X402Error {
	return &X402Error{Code: code, Message: message, Err: err}
}

// Invalid reasons reported when the facilitator cannot be consulted.
const (
	InvalidReasonFacilitatorUnavailable = "facilitator_unavailable"
	InvalidReasonInvalidResponse        = "invalid_response"
	InvalidReasonUnknown                = "Unknown error"
)
