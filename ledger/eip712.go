package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vitwit/x402-gate/utils"
)

var (
	// TRANSFER_WITH_AUTHORIZATION_TYPEHASH
	transferAuthTypeHash = crypto.Keccak256Hash([]byte("TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"))

	domainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
)

// Default token domain, as deployed by Circle's USDC.
const (
	DefaultTokenName    = "USD Coin"
	DefaultTokenVersion = "2"
)

// Domain is the EIP-712 domain of a token contract.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Authorization is an EIP-3009 transferWithAuthorization message. Numeric
// fields are decimal strings and Nonce is 0x-prefixed 32 byte hex.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// EVMPayment is the signed transfer produced by EVMSigner.
type EVMPayment struct {
	Authorization Authorization `json:"authorization"`
	Signature     string        `json:"signature"`
}

// DomainSeparator computes
// keccak256(abi.encode(domainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract)).
func DomainSeparator(d Domain) (common.Hash, error) {
	if d.Name == "" || d.Version == "" || d.ChainID == nil {
		return common.Hash{}, errors.New("incomplete domain")
	}
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		padLeft32(d.ChainID),
		addressTo32(d.VerifyingContract),
	), nil
}

// StructHash computes the EIP-712 hash of the authorization.
func (a Authorization) StructHash() (common.Hash, error) {
	if !common.IsHexAddress(a.From) || !common.IsHexAddress(a.To) {
		return common.Hash{}, errors.New("from and to must be hex addresses")
	}
	value, err := utils.ValidateBigInt(a.Value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("value: %w", err)
	}
	validAfter, err := utils.ValidateBigInt(a.ValidAfter)
	if err != nil {
		return common.Hash{}, fmt.Errorf("validAfter: %w", err)
	}
	validBefore, err := utils.ValidateBigInt(a.ValidBefore)
	if err != nil {
		return common.Hash{}, fmt.Errorf("validBefore: %w", err)
	}
	nonce, err := hexutil.Decode(a.Nonce)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	if len(nonce) != 32 {
		return common.Hash{}, fmt.Errorf("nonce must be 32 bytes, got %d", len(nonce))
	}

	return crypto.Keccak256Hash(
		transferAuthTypeHash.Bytes(),
		addressTo32(common.HexToAddress(a.From)),
		addressTo32(common.HexToAddress(a.To)),
		padLeft32(value),
		padLeft32(validAfter),
		padLeft32(validBefore),
		nonce,
	), nil
}

// Digest returns keccak256("\x19\x01" || domainSeparator || structHash),
// the hash the payer signs.
func Digest(d Domain, a Authorization) (common.Hash, error) {
	sep, err := DomainSeparator(d)
	if err != nil {
		return common.Hash{}, err
	}
	structHash, err := a.StructHash()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, sep.Bytes(), structHash.Bytes()), nil
}

// RecoverSigner returns the address that signed p under d.
func RecoverSigner(d Domain, p EVMPayment) (common.Address, error) {
	digest, err := Digest(d, p.Authorization)
	if err != nil {
		return common.Address{}, err
	}
	return utils.RecoverAddressFromSignature(digest.Bytes(), p.Signature)
}

// DomainFor derives the token domain from a requirement's network, asset
// and extra map. extra.name and extra.version override the USDC defaults.
func DomainFor(chainID int64, asset string, extra map[string]interface{}) Domain {
	d := Domain{
		Name:              DefaultTokenName,
		Version:           DefaultTokenVersion,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(asset),
	}
	if name, ok := extra["name"].(string); ok && name != "" {
		d.Name = name
	}
	if version, ok := extra["version"].(string); ok && version != "" {
		d.Version = version
	}
	return d
}

func padLeft32(i *big.Int) []byte {
	return common.LeftPadBytes(i.Bytes(), 32)
}

func addressTo32(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}
