// Package verification selects how a payment is checked before the gated
// handler runs.
package verification

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/vitwit/x402-gate/ledger"
	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
)

// Verifier interface defines the contract for payment verification. A nil
// error with IsValid false means the payment was rejected; a non-nil error
// means verification could not be carried out and the payment must be
// treated as invalid.
type Verifier interface {
	Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error)

func (f VerifierFunc) Verify(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	return f(ctx, payload, requirements)
}

// New returns the verifier of the given kind. remote backs the facilitator
// kind and may be nil for the structural one.
func New(kind types.VerifierKind, remote Verifier) (Verifier, error) {
	switch kind {
	case types.VerifierFacilitator, "":
		if remote == nil {
			return nil, types.NewError(types.ErrCodeConfig, "facilitator verifier requires a facilitator client", nil)
		}
		return remote, nil
	case types.VerifierStructural:
		return StructuralVerifier{}, nil
	default:
		return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("unknown verifier %q", kind), nil)
	}
}

// StructuralVerifier checks a payment without contacting any ledger. On
// EVM networks it also checks the EIP-3009 authorization: signer, recipient,
// value and validity window. Hedera transactions are only checked for
// shape. It is meant for local development and tests.
type StructuralVerifier struct{}

func (StructuralVerifier) Verify(_ context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.VerifyResponse, error) {
	if err := payload.Validate(); err != nil {
		return invalid(fmt.Sprintf("invalid payload: %v", err)), nil
	}

	if err := requirements.Validate(); err != nil {
		return invalid(fmt.Sprintf("invalid requirements: %v", err)), nil
	}

	if payload.X402Version != int(types.X402Version1) {
		return invalid(fmt.Sprintf("unsupported x402Version %d", payload.X402Version)), nil
	}

	if payload.Scheme != requirements.Scheme {
		return invalid("payload scheme does not match requirements scheme"), nil
	}

	if payload.Network != requirements.Network {
		return invalid("payload network does not match requirements network"), nil
	}

	tx := payload.Transaction()
	if tx == "" {
		return invalid("payload has no transaction"), nil
	}
	raw, err := base64.StdEncoding.DecodeString(tx)
	if err != nil {
		return invalid("transaction is not valid base64"), nil
	}

	network := types.Network(requirements.Network)
	if network.IsEVM() {
		return verifyAuthorization(network, raw, requirements, time.Now()), nil
	}
	return &types.VerifyResponse{IsValid: true}, nil
}

func verifyAuthorization(network types.Network, raw []byte, req *types.PaymentRequirements, now time.Time) *types.VerifyResponse {
	var p ledger.EVMPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return invalid("transaction is not an EIP-3009 authorization")
	}
	auth := p.Authorization

	info, _ := network.Info()
	signer, err := ledger.RecoverSigner(ledger.DomainFor(info.ChainID, req.Asset, req.Extra), p)
	if err != nil {
		return invalid(fmt.Sprintf("invalid authorization: %v", err))
	}
	if !strings.EqualFold(signer.Hex(), auth.From) {
		return invalid("invalid_exact_evm_payload_signature")
	}
	if !strings.EqualFold(auth.To, req.PayTo) {
		return invalid("invalid_exact_evm_payload_recipient_mismatch")
	}

	if res := checkTerms(auth, req, now); !res.IsValid {
		return res
	}
	return &types.VerifyResponse{IsValid: true, Payer: signer.Hex()}
}

// checkTerms checks the authorized value against the required amount and
// now against the validity window.
func checkTerms(auth ledger.Authorization, req *types.PaymentRequirements, now time.Time) *types.VerifyResponse {
	value, err := utils.ValidateBigInt(auth.Value)
	if err != nil {
		return invalid(fmt.Sprintf("invalid authorization value: %v", err))
	}
	required, err := utils.ValidateBigInt(req.MaxAmountRequired)
	if err != nil {
		return invalid(fmt.Sprintf("invalid maxAmountRequired: %v", err))
	}
	if value.Cmp(required) < 0 {
		return invalid("invalid_exact_evm_payload_authorization_value")
	}

	validAfter, err := utils.ValidateBigInt(auth.ValidAfter)
	if err != nil {
		return invalid(fmt.Sprintf("invalid validAfter: %v", err))
	}
	validBefore, err := utils.ValidateBigInt(auth.ValidBefore)
	if err != nil {
		return invalid(fmt.Sprintf("invalid validBefore: %v", err))
	}
	unix := big.NewInt(now.Unix())
	if unix.Cmp(validAfter) < 0 {
		return invalid("invalid_exact_evm_payload_authorization_valid_after")
	}
	if unix.Cmp(validBefore) >= 0 {
		return invalid("invalid_exact_evm_payload_authorization_valid_before")
	}
	return &types.VerifyResponse{IsValid: true}
}

func invalid(reason string) *types.VerifyResponse {
	return &types.VerifyResponse{IsValid: false, InvalidReason: reason}
}
