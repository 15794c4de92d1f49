package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-gate/encoding"
	"github.com/vitwit/x402-gate/types"
	"github.com/vitwit/x402-gate/utils"
)

// validAfterSkew backdates validAfter to tolerate clock drift between the
// payer and the chain.
const validAfterSkew = 10 * time.Minute

const defaultValidFor = 60 * time.Second

var _ Ledger = (*EVMSigner)(nil)

// EVMSigner signs EIP-3009 transferWithAuthorization messages offline. The
// facilitator relays them, so no RPC connection is needed.
type EVMSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	now     func() time.Time
}

// NewEVMSigner builds a signer from a hex encoded secp256k1 private key.
func NewEVMSigner(privateKeyHex string) (*EVMSigner, error) {
	key, err := utils.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("invalid private key: %v", err), err)
	}
	return &EVMSigner{
		key:     key,
		address: utils.AddressFromPrivateKey(key),
		now:     time.Now,
	}, nil
}

// Address returns the payer address.
func (s *EVMSigner) Address() string {
	return s.address.Hex()
}

// GenerateTransactionID returns a random 32 byte nonce. EIP-3009 nonces are
// not sequential, so concurrent payments never collide.
func (s *EVMSigner) GenerateTransactionID(_ context.Context, _ string) (string, error) {
	return utils.RandomNonce()
}

// SignTransfer signs t and returns the compact JSON of an EVMPayment.
func (s *EVMSigner) SignTransfer(_ context.Context, t Transfer) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, types.NewError(types.ErrCodePayment, err.Error(), err)
	}
	info, _ := t.Network.Info()
	if info.Family != types.ChainEVM {
		return nil, types.NewError(types.ErrCodePayment, fmt.Sprintf("evm signer cannot pay on %s", t.Network), types.ErrUnsupportedNetwork)
	}
	if !common.IsHexAddress(t.Asset) || !common.IsHexAddress(t.To) {
		return nil, types.NewError(types.ErrCodePayment, "asset and recipient must be hex addresses", nil)
	}
	if t.From != "" && !strings.EqualFold(t.From, s.Address()) {
		return nil, types.NewError(types.ErrCodePayment, fmt.Sprintf("signer %s cannot pay from %s", s.Address(), t.From), nil)
	}

	validFor := t.ValidFor
	if validFor <= 0 {
		validFor = defaultValidFor
	}
	now := s.now()

	auth := Authorization{
		From:        s.Address(),
		To:          utils.NormalizeAddress(t.To),
		Value:       t.Amount.String(),
		ValidAfter:  strconv.FormatInt(now.Add(-validAfterSkew).Unix(), 10),
		ValidBefore: strconv.FormatInt(now.Add(validFor).Unix(), 10),
		Nonce:       t.TransactionID,
	}

	digest, err := Digest(DomainFor(info.ChainID, t.Asset, t.Extra), auth)
	if err != nil {
		return nil, types.NewError(types.ErrCodePayment, fmt.Sprintf("failed to hash authorization: %v", err), err)
	}

	sig, err := utils.SignHash(digest.Bytes(), s.key)
	if err != nil {
		return nil, types.NewError(types.ErrCodePayment, err.Error(), err)
	}

	return encoding.Marshal(EVMPayment{Authorization: auth, Signature: sig})
}
