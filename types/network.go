package types

import "strings"

// ChainFamily classifies a network into a ledger family.
type ChainFamily string

const (
	ChainHedera ChainFamily = "hedera"
	ChainEVM    ChainFamily = "evm"
)

// Network represents supported ledger networks
type Network string

const (
	NetworkHederaTestnet Network = "hedera-testnet"
	NetworkHederaMainnet Network = "hedera-mainnet"

	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
)

// NetworkInfo describes how amounts are denominated on a network.
type NetworkInfo struct {
	Family ChainFamily

	// NativeAsset is the sentinel asset id of the ledger's native coin.
	NativeAsset    string
	NativeSymbol   string
	NativeDecimals int

	// StableAsset is the default asset used when a price carries no asset.
	StableAsset    string
	StableDecimals int

	Testnet bool
	ChainID int64
}

const (
	HbarDecimals = 8
	EthDecimals  = 18
	UsdcDecimals = 6

	HederaNativeAsset = "0.0.0"
	EVMNativeAsset    = "0x0000000000000000000000000000000000000000"

	UsdcHederaTestnet = "0.0.429274"
	UsdcHederaMainnet = "0.0.456858"
	UsdcBaseSepolia   = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	UsdcBase          = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

var networks = map[Network]NetworkInfo{
	NetworkHederaTestnet: {
		Family: ChainHedera, NativeAsset: HederaNativeAsset, NativeSymbol: "hbar", NativeDecimals: HbarDecimals,
		StableAsset: UsdcHederaTestnet, StableDecimals: UsdcDecimals, Testnet: true,
	},
	NetworkHederaMainnet: {
		Family: ChainHedera, NativeAsset: HederaNativeAsset, NativeSymbol: "hbar", NativeDecimals: HbarDecimals,
		StableAsset: UsdcHederaMainnet, StableDecimals: UsdcDecimals,
	},
	NetworkBaseSepolia: {
		Family: ChainEVM, NativeAsset: EVMNativeAsset, NativeSymbol: "eth", NativeDecimals: EthDecimals,
		StableAsset: UsdcBaseSepolia, StableDecimals: UsdcDecimals, Testnet: true, ChainID: 84532,
	},
	NetworkBase: {
		Family: ChainEVM, NativeAsset: EVMNativeAsset, NativeSymbol: "eth", NativeDecimals: EthDecimals,
		StableAsset: UsdcBase, StableDecimals: UsdcDecimals, ChainID: 8453,
	},
}

// Info returns the registry entry of the network.
func (n Network) Info() (NetworkInfo, bool) {
	info, ok := networks[n]
	return info, ok
}

// IsNativeAsset reports whether asset denotes the network's native coin,
// either by its sentinel id or by its symbol.
func (n Network) IsNativeAsset(asset string) bool {
	info, ok := networks[n]
	if !ok {
		return false
	}
	return asset == info.NativeAsset || strings.EqualFold(asset, info.NativeSymbol)
}

// Helper functions for network classification
func (n Network) IsHedera() bool {
	info, ok := networks[n]
	return ok && info.Family == ChainHedera
}

func (n Network) IsEVM() bool {
	info, ok := networks[n]
	return ok && info.Family == ChainEVM
}

func (n Network) IsTestnet() bool {
	info, ok := networks[n]
	return ok && info.Testnet
}

func (n Network) String() string {
	return string(n)
}

// SupportedNetworks lists every network known to the registry.
func SupportedNetworks() []Network {
	return []Network{NetworkHederaTestnet, NetworkHederaMainnet, NetworkBaseSepolia, NetworkBase}
}
