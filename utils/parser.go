package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/x402-gate/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ParsePaymentRequirements parses and validates PaymentRequirements from JSON
func ParsePaymentRequirements(data []byte) (*types.PaymentRequirements, error) {
	var req types.PaymentRequirements

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, types.NewError(types.ErrCodeDecode, fmt.Sprintf("failed to parse payment requirements: %v", err), err)
	}

	if err := validate.Struct(&req); err != nil {
		return nil, types.NewError(types.ErrCodeDecode, fmt.Sprintf("validation failed: %v", err), err)
	}

	return &req, nil
}

// ParseGateConfig decodes and validates a JSON gate configuration document.
func ParseGateConfig(data []byte) (*types.PaymentConfig, error) {
	cfg, err := DecodeGateConfig(data)
	if err != nil {
		return nil, err
	}

	if err := ValidateGateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DecodeGateConfig decodes a JSON gate configuration document without
// validating it. Integer prices are kept as json.Number so they are read as
// atomic units.
func DecodeGateConfig(data []byte) (*types.PaymentConfig, error) {
	var cfg types.PaymentConfig

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&cfg); err != nil {
		return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("failed to parse gate config: %v", err), err)
	}
	return &cfg, nil
}

// ValidateGateConfig runs the struct tag checks and the semantic checks that
// must pass before a gate serves any request.
func ValidateGateConfig(cfg *types.PaymentConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return types.NewError(types.ErrCodeConfig, fmt.Sprintf("validation failed: %v", err), err)
	}

	c := cfg.WithDefaults()

	if _, ok := c.Network.Info(); !ok {
		return types.NewError(types.ErrCodeConfig, fmt.Sprintf("unsupported network: %s", c.Network), types.ErrUnsupportedNetwork)
	}

	if err := ValidateAddressForNetwork(c.PayToAddress, c.Network); err != nil {
		return types.NewError(types.ErrCodeConfig, fmt.Sprintf("invalid payToAddress: %v", err), err)
	}

	if c.FeePayer != "" {
		if err := ValidateAddressForNetwork(c.FeePayer, c.Network); err != nil {
			return types.NewError(types.ErrCodeConfig, fmt.Sprintf("invalid feePayer: %v", err), err)
		}
	}

	if _, err := ConfigPrice(c); err != nil {
		return types.NewError(types.ErrCodeConfig, err.Error(), err)
	}

	if err := ValidateFacilitatorURL(c.Facilitator.URL); err != nil {
		return types.NewError(types.ErrCodeConfig, err.Error(), err)
	}

	return nil
}

// ValidateFacilitatorURL requires an http or https url.
func ValidateFacilitatorURL(url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("invalid facilitator url %q: must start with http:// or https://", url)
	}
	return nil
}

// CompactJSON removes whitespace from JSON
func CompactJSON(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, data); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
