package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-gate/types"
)

const payTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

func newSigner(t *testing.T) *EVMSigner {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := NewEVMSigner(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func transfer(t *testing.T, s *EVMSigner) Transfer {
	id, err := s.GenerateTransactionID(context.Background(), s.Address())
	require.NoError(t, err)
	return Transfer{
		TransactionID: id,
		Network:       types.NetworkBaseSepolia,
		To:            payTo,
		Asset:         types.UsdcBaseSepolia,
		Amount:        big.NewInt(10000),
		ValidFor:      time.Minute,
	}
}

func TestEVMSigner_SignTransfer(t *testing.T) {
	s := newSigner(t)
	tr := transfer(t, s)

	raw, err := s.SignTransfer(context.Background(), tr)
	require.NoError(t, err)

	var p EVMPayment
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, s.Address(), p.Authorization.From)
	assert.Equal(t, payTo, p.Authorization.To)
	assert.Equal(t, "10000", p.Authorization.Value)
	assert.Equal(t, tr.TransactionID, p.Authorization.Nonce)
	assert.Equal(t, strconv.FormatInt(1700000060, 10), p.Authorization.ValidBefore)
	assert.Equal(t, strconv.FormatInt(1700000000-600, 10), p.Authorization.ValidAfter)

	domain := DomainFor(84532, types.UsdcBaseSepolia, nil)
	signer, err := RecoverSigner(domain, p)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), signer.Hex())

	p.Authorization.Value = "1"
	tampered, err := RecoverSigner(domain, p)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), tampered.Hex())
}

func TestEVMSigner_DomainOverride(t *testing.T) {
	s := newSigner(t)
	tr := transfer(t, s)
	tr.Extra = map[string]interface{}{"name": "USDC", "version": "2"}

	raw, err := s.SignTransfer(context.Background(), tr)
	require.NoError(t, err)
	var p EVMPayment
	require.NoError(t, json.Unmarshal(raw, &p))

	signer, err := RecoverSigner(DomainFor(84532, types.UsdcBaseSepolia, tr.Extra), p)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), signer.Hex())

	other, err := RecoverSigner(DomainFor(84532, types.UsdcBaseSepolia, nil), p)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other.Hex())
}

func TestEVMSigner_Rejects(t *testing.T) {
	s := newSigner(t)

	cases := map[string]func(tr *Transfer){
		"hedera network": func(tr *Transfer) { tr.Network = types.NetworkHederaTestnet },
		"zero amount":    func(tr *Transfer) { tr.Amount = big.NewInt(0) },
		"no id":          func(tr *Transfer) { tr.TransactionID = "" },
		"bad recipient":  func(tr *Transfer) { tr.To = "0.0.1234" },
		"other payer":    func(tr *Transfer) { tr.From = payTo },
		"short nonce":    func(tr *Transfer) { tr.TransactionID = "0x01" },
	}
	for name, mutate := range cases {
		tr := transfer(t, s)
		mutate(&tr)
		_, err := s.SignTransfer(context.Background(), tr)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, types.ErrPayment), name)
	}
}

func TestEVMSigner_IndependentIDs(t *testing.T) {
	s := newSigner(t)

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.GenerateTransactionID(context.Background(), s.Address())
			assert.NoError(t, err)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestNewEVMSigner_InvalidKey(t *testing.T) {
	_, err := NewEVMSigner("0xnothex")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestHederaTransactionID(t *testing.T) {
	at := time.Unix(1700000000, 42)
	assert.Equal(t, "0.0.98@1700000000.000000042", HederaTransactionID("0.0.98", at))
}
