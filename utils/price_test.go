package utils

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/x402-gate/types"
)

func TestNormalizePrice_DefaultStableAsset(t *testing.T) {
	p, err := NormalizePrice("$0.01", types.NetworkHederaTestnet, "")
	require.NoError(t, err)
	assert.Equal(t, "10000", p.MaxAmountRequired)
	assert.Equal(t, types.UsdcHederaTestnet, p.Asset)
	assert.Equal(t, 6, p.Decimals)

	p, err = NormalizePrice("0.01", types.NetworkHederaMainnet, "")
	require.NoError(t, err)
	assert.Equal(t, types.UsdcHederaMainnet, p.Asset)
}

func TestNormalizePrice_NativeAsset(t *testing.T) {
	p, err := NormalizePrice("0.5", types.NetworkHederaTestnet, "0.0.0")
	require.NoError(t, err)
	assert.Equal(t, "50000000", p.MaxAmountRequired)
	assert.Equal(t, types.HederaNativeAsset, p.Asset)

	p, err = NormalizePrice("0.5", types.NetworkHederaTestnet, "HBAR")
	require.NoError(t, err)
	assert.Equal(t, "50000000", p.MaxAmountRequired)
	assert.Equal(t, types.HederaNativeAsset, p.Asset)

	p, err = NormalizePrice("1", types.NetworkBaseSepolia, "eth")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", p.MaxAmountRequired)
}

func TestNormalizePrice_AtomicInteger(t *testing.T) {
	p, err := NormalizePrice(2500, types.NetworkHederaTestnet, "")
	require.NoError(t, err)
	assert.Equal(t, "2500", p.MaxAmountRequired)

	p, err = NormalizePrice(big.NewInt(7), types.NetworkBase, "")
	require.NoError(t, err)
	assert.Equal(t, "7", p.MaxAmountRequired)
	assert.Equal(t, types.UsdcBase, p.Asset)

	p, err = NormalizePrice(json.Number("15"), types.NetworkHederaTestnet, "")
	require.NoError(t, err)
	assert.Equal(t, "15", p.MaxAmountRequired)

	p, err = NormalizePrice(json.Number("1.5"), types.NetworkHederaTestnet, "")
	require.NoError(t, err)
	assert.Equal(t, "1500000", p.MaxAmountRequired)
}

func TestNormalizePrice_Truncates(t *testing.T) {
	p, err := NormalizePrice("0.0000019", types.NetworkHederaTestnet, "")
	require.NoError(t, err)
	assert.Equal(t, "1", p.MaxAmountRequired)
}

func TestNormalizePrice_CustomDecimals(t *testing.T) {
	p, err := NormalizePriceWithDecimals("1.25", types.NetworkHederaTestnet, "0.0.1234", 2)
	require.NoError(t, err)
	assert.Equal(t, "125", p.MaxAmountRequired)
	assert.Equal(t, "0.0.1234", p.Asset)
	assert.Equal(t, 2, p.Extra["decimals"])
}

func TestNormalizePrice_Invalid(t *testing.T) {
	for _, price := range []interface{}{"abc", "$", "", "-1", -5, nil, struct{}{}} {
		_, err := NormalizePrice(price, types.NetworkHederaTestnet, "")
		require.Error(t, err, "price %v", price)
		assert.True(t, errors.Is(err, types.ErrInvalidPrice), "price %v", price)
	}

	_, err := NormalizePrice("1", types.Network("solana"), "")
	assert.True(t, errors.Is(err, types.ErrUnsupportedNetwork))
}

func TestDisplayAmount_RoundTrip(t *testing.T) {
	cases := []struct {
		price    string
		network  types.Network
		asset    string
		decimals int
	}{
		{"0.01", types.NetworkHederaTestnet, "", -1},
		{"123.456789", types.NetworkHederaMainnet, "", -1},
		{"0.5", types.NetworkHederaTestnet, "0.0.0", -1},
		{"0.12345678", types.NetworkHederaTestnet, "hbar", -1},
		{"42", types.NetworkBaseSepolia, "", -1},
		{"0.000000000000000001", types.NetworkBase, "eth", -1},
		{"9.99", types.NetworkHederaTestnet, "0.0.5555", 2},
		{"3.1415", types.NetworkHederaTestnet, "0.0.7777", 18},
	}

	for _, c := range cases {
		var (
			p   *Price
			err error
		)
		if c.decimals >= 0 {
			p, err = NormalizePriceWithDecimals(c.price, c.network, c.asset, c.decimals)
		} else {
			p, err = NormalizePrice(c.price, c.network, c.asset)
		}
		require.NoError(t, err)

		req := &types.PaymentRequirements{
			Network:           string(c.network),
			Asset:             p.Asset,
			MaxAmountRequired: p.MaxAmountRequired,
			Extra:             p.Extra,
		}
		got, err := DisplayAmount(req)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString(c.price).Equal(got), "%s on %s: got %s", c.price, c.network, got)
	}
}

func TestDisplayAmount_JSONDecodedExtra(t *testing.T) {
	req := &types.PaymentRequirements{
		Network:           "hedera-testnet",
		Asset:             "0.0.5555",
		MaxAmountRequired: "999",
		Extra:             map[string]interface{}{"decimals": float64(2)},
	}
	got, err := DisplayAmount(req)
	require.NoError(t, err)
	assert.Equal(t, "9.99", got.String())
}

func TestConfigPrice(t *testing.T) {
	d := 3
	p, err := ConfigPrice(types.PaymentConfig{Price: "$1", Asset: "0.0.42", AssetDecimals: &d})
	require.NoError(t, err)
	assert.Equal(t, "1000", p.MaxAmountRequired)
	assert.Equal(t, "0.0.42", p.Asset)
}
