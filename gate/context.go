package gate

import (
	"context"

	"github.com/vitwit/x402-gate/types"
)

// Payment is the verified payment of the current request. It lives only as
// long as the request.
type Payment struct {
	Payload      *types.PaymentPayload
	Requirements types.PaymentRequirements
	Verification *types.VerifyResponse
}

type paymentKey struct{}

func withPayment(ctx context.Context, p *Payment) context.Context {
	return context.WithValue(ctx, paymentKey{}, p)
}

// PaymentFromContext returns the payment the gate verified for the request
// being served.
func PaymentFromContext(ctx context.Context) (*Payment, bool) {
	p, ok := ctx.Value(paymentKey{}).(*Payment)
	return p, ok
}
