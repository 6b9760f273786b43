package eip712

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Typed-data domain the together contract verifies against.
const (
	DomainName    = "Together"
	DomainVersion = "1"
)

// DeadlineWindow is how long a signed permit stays valid.
const DeadlineWindow = 10 * time.Minute

// Permit is a signed authorization for one together attestation.
type Permit struct {
	OnBehalfOf   common.Address
	TogetherWith common.Address
	Timestamp    *big.Int
	Nonce        [32]byte
	Deadline     *big.Int
	Signature    []byte
}

// Signer produces TogetherData permits for a fixed chain and contract.
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  int64
	contract common.Address
}

// NewSigner builds a Signer from the relayer key.
func NewSigner(key *ecdsa.PrivateKey, chainID int64, contract common.Address) *Signer {
	return &Signer{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		contract: contract,
	}
}

// Address returns the signing address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTogether signs TogetherData{onBehalfOf, togetherWith, timestamp,
// nonce, deadline} and returns the permit with a 65-byte signature whose
// recovery byte is on the 27/28 convention contracts expect.
func (s *Signer) SignTogether(
	onBehalfOf common.Address,
	togetherWith common.Address,
	timestamp *big.Int,
	nonce [32]byte,
	deadline *big.Int,
) (Permit, error) {
	digest, err := s.Digest(onBehalfOf, togetherWith, timestamp, nonce, deadline)
	if err != nil {
		return Permit{}, err
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return Permit{}, fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27

	return Permit{
		OnBehalfOf:   onBehalfOf,
		TogetherWith: togetherWith,
		Timestamp:    timestamp,
		Nonce:        nonce,
		Deadline:     deadline,
		Signature:    sig,
	}, nil
}

// Digest returns the EIP-712 signing hash for the given TogetherData fields.
func (s *Signer) Digest(
	onBehalfOf common.Address,
	togetherWith common.Address,
	timestamp *big.Int,
	nonce [32]byte,
	deadline *big.Int,
) ([]byte, error) {
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TogetherData": {
				{Name: "onBehalfOf", Type: "address"},
				{Name: "togetherWith", Type: "address"},
				{Name: "timestamp", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "TogetherData",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: s.contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"onBehalfOf":   onBehalfOf.Hex(),
			"togetherWith": togetherWith.Hex(),
			"timestamp":    timestamp.String(),
			"nonce":        hexutil.Encode(nonce[:]),
			"deadline":     deadline.String(),
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return digest, nil
}

// NewNonce returns 32 random bytes from crypto/rand.
func NewNonce() ([32]byte, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("read nonce: %w", err)
	}
	return nonce, nil
}

// Deadline returns now plus the permit validity window as a unix timestamp.
func Deadline(now time.Time) *big.Int {
	return big.NewInt(now.Add(DeadlineWindow).Unix())
}

// ParseKey decodes a hex private key, with or without the 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
