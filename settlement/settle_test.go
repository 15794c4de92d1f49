package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402-gate/types"
)

var requirements = &types.PaymentRequirements{Network: "hedera-testnet", MaxTimeoutSeconds: 5}

func TestDetached_SurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := SettlerFunc(func(ctx context.Context, _ *types.PaymentPayload, _ *types.PaymentRequirements) (*types.SettleResponse, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return &types.SettleResponse{Success: true, TransactionID: "tx"}, nil
	})

	res, err := Detached(ctx, s, &types.PaymentPayload{}, requirements)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "tx", res.TransactionID)
}

func TestSettle_Failures(t *testing.T) {
	unsuccessful := SettlerFunc(func(context.Context, *types.PaymentPayload, *types.PaymentRequirements) (*types.SettleResponse, error) {
		return &types.SettleResponse{Success: false, ErrorReason: "INSUFFICIENT_PAYER_BALANCE"}, nil
	})
	res, err := Settle(context.Background(), unsuccessful, &types.PaymentPayload{}, requirements)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSettlement))
	assert.Equal(t, "Settle failed: INSUFFICIENT_PAYER_BALANCE", err.Error())
	assert.False(t, res.Success)

	broken := SettlerFunc(func(context.Context, *types.PaymentPayload, *types.PaymentRequirements) (*types.SettleResponse, error) {
		return nil, errors.New("connection refused")
	})
	res, err = Settle(context.Background(), broken, &types.PaymentPayload{}, requirements)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, types.InvalidReasonFacilitatorUnavailable, res.ErrorReason)
	assert.Equal(t, "hedera-testnet", res.Network)
}
