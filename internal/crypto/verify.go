package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// sigLen is the length of a secp256k1 signature with recovery byte.
const sigLen = 65

// PersonalHash computes the EIP-191 personal-sign digest of a message:
//
//	keccak256("\x19Ethereum Signed Message:\n" || len(msg) || msg)
//
// This matches what wallet software produces for personal_sign requests, so
// callers can authorize API mutations with an ordinary wallet signature.
func PersonalHash(msg []byte) []byte {
	prefix := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg))
	return ethcrypto.Keccak256([]byte(prefix), msg)
}

// RecoverAddress recovers the signing address from a personal-sign signature
// over msg. The signature is hex-encoded (with or without 0x prefix) and may
// carry its recovery byte as either {0,1} or {27,28}.
func RecoverAddress(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: invalid signature hex: %w", err)
	}
	if len(sig) != sigLen {
		return common.Address{}, fmt.Errorf("crypto: expected %d-byte signature, got %d bytes", sigLen, len(sig))
	}

	// Normalise the recovery byte to {0,1} for go-ethereum.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(PersonalHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether sigHex is a valid personal-sign signature
// over msg by the given wallet address.
func VerifySignature(wallet string, msg []byte, sigHex string) (bool, error) {
	recovered, err := RecoverAddress(msg, sigHex)
	if err != nil {
		return false, err
	}
	return recovered == common.HexToAddress(wallet), nil
}

// Signer signs messages with the platform operator key. Its address is the
// identity the server reports as the custodied settlement authority.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage produces a hex-encoded personal-sign signature over msg with
// the recovery byte in {27,28}.
func (s *Signer) SignMessage(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(PersonalHash(msg), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}
