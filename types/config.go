package types

import (
	"context"
	"encoding/json"
	"fmt"
)

// SettleFailurePolicy decides what the gate returns when settlement fails
// after the wrapped handler has already produced its response.
type SettleFailurePolicy string

const (
	// SettleFailureDeliver returns the fulfilled response and hands the
	// payment to reconciliation.
	SettleFailureDeliver SettleFailurePolicy = "deliver"

	// SettleFailureChallenge answers with a 402 challenge.
	SettleFailureChallenge SettleFailurePolicy = "challenge"
)

// VerifierKind selects the verification backing.
type VerifierKind string

const (
	VerifierFacilitator VerifierKind = "facilitator"
	VerifierStructural  VerifierKind = "structural"
)

// DefaultFacilitatorURL is used when no facilitator url is configured.
const DefaultFacilitatorURL = "https://x402-hedera-production.up.railway.app"

// HeadersFunc returns extra request headers per facilitator operation,
// keyed by "verify", "settle" and "supported".
type HeadersFunc func(ctx context.Context) (map[string]map[string]string, error)

// FacilitatorConfig locates the facilitator service.
type FacilitatorConfig struct {
	URL           string      `json:"url" validate:"omitempty,url"`
	CreateHeaders HeadersFunc `json:"-"`
}

// PathList is a list of path patterns that also unmarshals from a single
// JSON string.
type PathList []string

func (p *PathList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = PathList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("path must be a string or a list of strings: %w", err)
	}
	*p = many
	return nil
}

// PaymentConfig is the static configuration of a payment gate. It is
// immutable once the gate is built.
type PaymentConfig struct {
	// Price is a "$0.01" or "0.01" decimal string, a decimal.Decimal or a
	// float for decimal amounts, or an integer already in atomic units.
	Price interface{} `json:"price" validate:"required"`

	PayToAddress string `json:"payToAddress" validate:"required"`

	// Path is the gated pattern set, "*" when empty.
	Path PathList `json:"path"`

	Description string `json:"description"`
	MimeType    string `json:"mimeType"`

	// MaxDeadlineSeconds defaults to 60.
	MaxDeadlineSeconds int `json:"maxDeadlineSeconds" validate:"gte=0"`

	Facilitator FacilitatorConfig `json:"facilitatorConfig"`

	// Network defaults to hedera-testnet.
	Network Network `json:"network"`

	// Resource overrides the live request url.
	Resource string `json:"resource" validate:"omitempty,url"`

	// Asset overrides the network's default stable asset.
	Asset string `json:"asset"`

	// AssetDecimals is the true decimal count of Asset, if known.
	AssetDecimals *int `json:"assetDecimals,omitempty" validate:"omitempty,gte=0,lte=36"`

	// FeePayer is advertised as extra.feePayer.
	FeePayer string `json:"feePayer"`

	// AllowedPaths bypass gating even when Path matches.
	AllowedPaths PathList `json:"allowedPaths"`

	// SessionHeader names a request header carrying a paid session id.
	SessionHeader string `json:"sessionHeader"`

	SettleFailurePolicy SettleFailurePolicy `json:"settleFailurePolicy" validate:"omitempty,oneof=deliver challenge"`

	Verifier VerifierKind `json:"verifier" validate:"omitempty,oneof=facilitator structural"`
}

// WithDefaults fills the documented defaults.
func (c PaymentConfig) WithDefaults() PaymentConfig {
	if len(c.Path) == 0 {
		c.Path = PathList{"*"}
	}
	if c.MaxDeadlineSeconds == 0 {
		c.MaxDeadlineSeconds = 60
	}
	if c.Network == "" {
		c.Network = NetworkHederaTestnet
	}
	if c.Facilitator.URL == "" {
		c.Facilitator.URL = DefaultFacilitatorURL
	}
	if c.SettleFailurePolicy == "" {
		c.SettleFailurePolicy = SettleFailureDeliver
	}
	if c.Verifier == "" {
		c.Verifier = VerifierFacilitator
	}
	return c
}
