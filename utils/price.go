package utils

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vitwit/x402-gate/types"
)

// Price is a normalized price: an atomic amount of a concrete asset.
type Price struct {
	MaxAmountRequired string
	Asset             string
	Decimals          int
	Extra             map[string]interface{}
}

// NormalizePrice converts price into atomic units of asset on network.
// An empty asset selects the network's default stable asset. Decimal
// precision is the native one for the native asset and the stablecoin one
// for every other asset.
func NormalizePrice(price interface{}, network types.Network, asset string) (*Price, error) {
	return normalizePrice(price, network, asset, -1)
}

// NormalizePriceWithDecimals is NormalizePrice for an asset whose true
// decimal count is known. The decimals are recorded in extra so the display
// amount can be recovered exactly.
func NormalizePriceWithDecimals(price interface{}, network types.Network, asset string, decimals int) (*Price, error) {
	if decimals < 0 {
		return nil, invalidPrice(price, fmt.Errorf("decimals must be nonnegative"))
	}
	return normalizePrice(price, network, asset, decimals)
}

func normalizePrice(price interface{}, network types.Network, asset string, decimals int) (*Price, error) {
	info, ok := network.Info()
	if !ok {
		return nil, &types.X402Error{
			Code:    types.ErrCodeUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", network),
		}
	}

	assetID, assetDecimals := resolveAsset(info, network, asset)
	extra := map[string]interface{}{}
	if decimals >= 0 {
		assetDecimals = decimals
		extra["decimals"] = decimals
	}

	atomic, err := toAtomic(price, assetDecimals)
	if err != nil {
		return nil, invalidPrice(price, err)
	}

	return &Price{
		MaxAmountRequired: atomic.String(),
		Asset:             assetID,
		Decimals:          assetDecimals,
		Extra:             extra,
	}, nil
}

func resolveAsset(info types.NetworkInfo, network types.Network, asset string) (string, int) {
	switch {
	case asset == "":
		return info.StableAsset, info.StableDecimals
	case network.IsNativeAsset(asset):
		return info.NativeAsset, info.NativeDecimals
	default:
		return asset, types.UsdcDecimals
	}
}

func toAtomic(price interface{}, decimals int) (*big.Int, error) {
	switch p := price.(type) {
	case string:
		amount, err := ParseMoney(p)
		if err != nil {
			return nil, err
		}
		return ParseAmountWithDecimals(amount.String(), decimals)
	case decimal.Decimal:
		return ParseAmountWithDecimals(p.String(), decimals)
	case float64:
		return ParseAmountWithDecimals(decimal.NewFromFloat(p).String(), decimals)
	case float32:
		return ParseAmountWithDecimals(decimal.NewFromFloat32(p).String(), decimals)
	case json.Number:
		if n, err := p.Int64(); err == nil {
			return atomicInt(big.NewInt(n))
		}
		return ParseAmountWithDecimals(p.String(), decimals)
	case int:
		return atomicInt(big.NewInt(int64(p)))
	case int64:
		return atomicInt(big.NewInt(p))
	case uint64:
		return new(big.Int).SetUint64(p), nil
	case *big.Int:
		if p == nil {
			return nil, fmt.Errorf("price is nil")
		}
		return atomicInt(new(big.Int).Set(p))
	case nil:
		return nil, fmt.Errorf("price is required")
	default:
		return nil, fmt.Errorf("unsupported price type %T", price)
	}
}

func atomicInt(n *big.Int) (*big.Int, error) {
	if n.Sign() < 0 {
		return nil, fmt.Errorf("amount cannot be negative")
	}
	return n, nil
}

// ParseMoney parses a "$X.XX" or bare decimal string.
func ParseMoney(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	return ValidateAmount(strings.TrimSpace(s))
}

func invalidPrice(price interface{}, err error) error {
	return &types.X402Error{
		Code:    types.ErrCodeInvalidPrice,
		Message: fmt.Sprintf("invalid price format: %v: %v", price, err),
		Err:     err,
	}
}

// AssetDecimals returns the decimal precision used for asset on network.
// extra.decimals, when present, takes precedence. Unknown networks fall
// back to treating "0.0.0"/"hbar" as native HBAR and anything else as a
// stablecoin.
func AssetDecimals(network types.Network, asset string, extra map[string]interface{}) int {
	if d, ok := extraDecimals(extra); ok {
		return d
	}
	if info, ok := network.Info(); ok {
		if network.IsNativeAsset(asset) {
			return info.NativeDecimals
		}
		return types.UsdcDecimals
	}
	if asset == types.HederaNativeAsset || strings.EqualFold(asset, "hbar") {
		return types.HbarDecimals
	}
	return types.UsdcDecimals
}

func extraDecimals(extra map[string]interface{}) (int, bool) {
	if extra == nil {
		return 0, false
	}
	switch d := extra["decimals"].(type) {
	case int:
		return d, true
	case int64:
		return int(d), true
	case float64:
		return int(d), true
	case json.Number:
		n, err := d.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// DisplayAmount is the inverse of NormalizePrice: it turns the atomic
// maxAmountRequired of req back into a decimal amount of its asset.
func DisplayAmount(req *types.PaymentRequirements) (decimal.Decimal, error) {
	amount, err := req.Amount()
	if err != nil {
		return decimal.Zero, err
	}
	decimals := AssetDecimals(types.Network(req.Network), req.Asset, req.Extra)
	return decimal.NewFromBigInt(amount, -int32(decimals)), nil
}

// ConfigPrice normalizes the price of a gate configuration, honoring its
// asset override and optional asset decimals.
func ConfigPrice(cfg types.PaymentConfig) (*Price, error) {
	cfg = cfg.WithDefaults()
	if cfg.AssetDecimals != nil {
		return NormalizePriceWithDecimals(cfg.Price, cfg.Network, cfg.Asset, *cfg.AssetDecimals)
	}
	return NormalizePrice(cfg.Price, cfg.Network, cfg.Asset)
}
