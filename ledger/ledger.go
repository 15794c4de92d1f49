// Package ledger defines the signing collaborator used by the auto-pay
// client and ships an offline EVM signer for EIP-3009 transfers.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/vitwit/x402-gate/types"
)

// Ledger builds and signs transfers on behalf of a payer. Implementations
// must be safe for concurrent use and must never hand out the same
// transaction id twice.
type Ledger interface {
	// GenerateTransactionID returns a fresh id for a transfer paid by payer.
	GenerateTransactionID(ctx context.Context, payer string) (string, error)

	// SignTransfer returns the signed, serialized transfer.
	SignTransfer(ctx context.Context, t Transfer) ([]byte, error)
}

// Transfer describes a payment of Amount atomic units of Asset to To.
type Transfer struct {
	TransactionID string
	Network       types.Network

	From   string
	To     string
	Asset  string
	Amount *big.Int

	// FeePayer is the account paying the ledger fee, when the network
	// needs one named up front.
	FeePayer string

	// ValidFor bounds how long the signed transfer may be submitted.
	ValidFor time.Duration

	// Extra is the requirement's extra map.
	Extra map[string]interface{}
}

// Validate checks the fields every ledger needs.
func (t Transfer) Validate() error {
	if t.TransactionID == "" {
		return fmt.Errorf("transaction id is required")
	}
	if t.To == "" {
		return fmt.Errorf("recipient is required")
	}
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if _, ok := t.Network.Info(); !ok {
		return fmt.Errorf("unsupported network: %s", t.Network)
	}
	return nil
}

// HederaTransactionID formats a Hedera transaction id
// "<account>@<seconds>.<nanos>" for a transaction valid from at.
func HederaTransactionID(account string, at time.Time) string {
	return fmt.Sprintf("%s@%d.%09d", account, at.Unix(), at.Nanosecond())
}
