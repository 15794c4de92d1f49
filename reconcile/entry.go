// Package reconcile holds payments whose gated response was delivered but
// whose settlement failed, and retries their settlement out of band.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/vitwit/x402-gate/types"
)

var ErrNotExist = errors.New("reconcile entry does not exist")

// Entry is a fulfilled but unsettled payment.
type Entry struct {
	ID           string                    `json:"id"`
	CreatedAt    time.Time                 `json:"createdAt"`
	Attempts     int                       `json:"attempts"`
	LastError    string                    `json:"lastError,omitempty"`
	Resource     string                    `json:"resource"`
	Status       int                       `json:"status"`
	Payload      types.PaymentPayload      `json:"payload"`
	Requirements types.PaymentRequirements `json:"requirements"`
}

// Queue accepts unsettled payments from the gate.
type Queue interface {
	Enqueue(ctx context.Context, e Entry) error
}

// Store is a Queue that can be drained.
type Store interface {
	Queue
	Pending() ([]Entry, error)
	Update(e Entry) error
	Ack(id string) error
}
