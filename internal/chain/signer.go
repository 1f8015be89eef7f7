package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ledgertypes "github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain is the EIP-712 domain the pool contract verifies against
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// WithdrawalPayload is the UserInfo struct signed for a withdrawal
type WithdrawalPayload struct {
	User             common.Address
	WithdrawalAmount *big.Int // wei
	Timestamp        int64
	Nonce            uint64
}

var userInfoTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"UserInfo": {
		{Name: "user", Type: "address"},
		{Name: "withdrawalAmount", Type: "uint256"},
		{Name: "timestamp", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// TypedDataSigner signs withdrawal authorizations with a local secp256k1 key
type TypedDataSigner struct {
	key    *ecdsa.PrivateKey
	domain Domain
}

// NewTypedDataSigner parses a hex private key, with or without 0x
func NewTypedDataSigner(privateKeyHex string, domain Domain) (*TypedDataSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}
	return &TypedDataSigner{key: key, domain: domain}, nil
}

// Address is the signer account the pool contract must trust
func (s *TypedDataSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// TypedData builds the EIP-712 document for payload
func (d Domain) TypedData(payload WithdrawalPayload) apitypes.TypedData {
	amount := new(big.Int)
	if payload.WithdrawalAmount != nil {
		amount.Set(payload.WithdrawalAmount)
	}
	return apitypes.TypedData{
		Types:       userInfoTypes,
		PrimaryType: "UserInfo",
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           math.NewHexOrDecimal256(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"user":             payload.User.Hex(),
			"withdrawalAmount": amount,
			"timestamp":        big.NewInt(payload.Timestamp),
			"nonce":            new(big.Int).SetUint64(payload.Nonce),
		},
	}
}

// Hash returns the EIP-712 digest of payload
func (d Domain) Hash(payload WithdrawalPayload) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(d.TypedData(payload))
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return hash, nil
}

// RecoverSigner returns the account that produced signature over payload
func RecoverSigner(domain Domain, payload WithdrawalPayload, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: signature: %v", ledgertypes.ErrValidation, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes", ledgertypes.ErrValidation, crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	hash, err := domain.Hash(payload)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: recover signer: %v", ledgertypes.ErrValidation, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// TypedData builds the EIP-712 document for payload under the signer's domain
func (s *TypedDataSigner) TypedData(payload WithdrawalPayload) apitypes.TypedData {
	return s.domain.TypedData(payload)
}

// Hash returns the EIP-712 digest of payload under the signer's domain
func (s *TypedDataSigner) Hash(payload WithdrawalPayload) ([]byte, error) {
	return s.domain.Hash(payload)
}

// SignWithdrawal returns the 65 byte signature as 0x hex with v in {27, 28}
func (s *TypedDataSigner) SignWithdrawal(_ context.Context, payload WithdrawalPayload) (string, error) {
	if payload.WithdrawalAmount == nil {
		return "", fmt.Errorf("%w: withdrawal amount is required", ledgertypes.ErrValidation)
	}
	hash, err := s.Hash(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledgertypes.ErrExternalUnavailable, err)
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("%w: sign typed data: %v", ledgertypes.ErrExternalUnavailable, err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
