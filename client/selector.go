package client

import (
	"fmt"
	"math/big"

	"github.com/vitwit/x402-gate/types"
)

// SchemeExact pays the exact quoted amount.
const SchemeExact = "exact"

// Selector picks the requirement to pay out of a challenge. Empty filters
// and a nil maxValue are ignored.
type Selector func(accepts []types.PaymentRequirements, network, scheme string, maxValue *big.Int) (types.PaymentRequirements, error)

// DefaultSelector returns the first "exact" requirement passing the network
// and scheme filters. It fails with AMOUNT_EXCEEDED when that requirement
// asks for more than maxValue and UNSUPPORTED_SCHEME when none passes.
func DefaultSelector(accepts []types.PaymentRequirements, network, scheme string, maxValue *big.Int) (types.PaymentRequirements, error) {
	for _, req := range accepts {
		if scheme != "" && req.Scheme != scheme {
			continue
		}
		if network != "" && req.Network != network {
			continue
		}
		if req.Scheme != SchemeExact {
			continue
		}

		if maxValue != nil {
			amount, err := req.Amount()
			if err != nil {
				return types.PaymentRequirements{}, types.NewError(types.ErrCodePayment, err.Error(), err)
			}
			if amount.Cmp(maxValue) > 0 {
				return types.PaymentRequirements{}, types.NewError(types.ErrCodeAmountExceeded,
					fmt.Sprintf("payment amount %s exceeds maximum allowed value %s", amount, maxValue), nil)
			}
		}
		return req, nil
	}
	return types.PaymentRequirements{}, types.NewError(types.ErrCodeUnsupportedScheme, "no supported payment scheme found", nil)
}
