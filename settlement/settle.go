// Package settlement requests settlement of verified payments.
package settlement

import (
	"context"
	"time"

	"github.com/vitwit/x402-gate/types"
)

// Settler interface defines the contract for payment settlement
type Settler interface {
	Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error)
}

// SettlerFunc adapts a function to Settler.
type SettlerFunc func(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error)

func (f SettlerFunc) Settle(ctx context.Context, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	return f(ctx, payload, requirements)
}

// DefaultTimeout bounds settlement when the requirements carry no timeout.
const DefaultTimeout = 60 * time.Second

// Detached settles on a context that survives cancellation of ctx, bounded
// by the requirement's maxTimeoutSeconds. The handler has already produced
// its effect by the time settlement runs, so a dropped client connection
// must not abandon it.
func Detached(ctx context.Context, s Settler, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	d := DefaultTimeout
	if requirements.MaxTimeoutSeconds > 0 {
		d = time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d)
	defer cancel()

	return Settle(settleCtx, s, payload, requirements)
}

// Settle calls s and normalizes its outcome: the result is never nil, and a
// transport error or an unsuccessful result both yield success false with
// a reason.
func Settle(ctx context.Context, s Settler, payload *types.PaymentPayload, requirements *types.PaymentRequirements) (*types.SettleResponse, error) {
	res, err := s.Settle(ctx, payload, requirements)
	if res == nil {
		res = &types.SettleResponse{Network: requirements.Network}
		if err != nil {
			res.Error = err.Error()
			res.ErrorReason = types.InvalidReasonFacilitatorUnavailable
		}
	}
	if err != nil {
		res.Success = false
		return res, types.NewError(types.ErrCodeSettlementFailed, "Settle failed: "+res.Reason(), err)
	}
	if !res.Success {
		return res, types.NewError(types.ErrCodeSettlementFailed, "Settle failed: "+res.Reason(), nil)
	}
	return res, nil
}
