// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the number of hex characters in an address. An address
// is the hex encoding of an uncompressed secp256k1 public key.
const AddressLength = 130

// addressPrefix marks an uncompressed public key.
const addressPrefix = "04"

// ErrInvalidAddress is returned when a string can't be decoded into a
// public key.
var ErrInvalidAddress = errors.New("invalid address")

// =============================================================================

// Hash returns the hex encoded SHA256 hash of the specified content.
func Hash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// Sign uses the specified private key to sign the hex encoded hash. The
// hash must represent 32 bytes of data. Signing is deterministic, the same
// key and hash always produce the same signature.
func Sign(hash string, privateKey *ecdsa.PrivateKey) (hexutil.Bytes, error) {
	digest, err := toDigest(hash)
	if err != nil {
		return nil, err
	}

	// The signature is produced in the [R|S|V] format.
	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, err
	}

	return sig, nil
}

// Verify checks the signature was produced over the hash by the private key
// belonging to the specified address.
func Verify(hash string, sig []byte, address string) bool {
	digest, err := toDigest(hash)
	if err != nil {
		return false
	}

	publicKey, err := hex.DecodeString(address)
	if err != nil {
		return false
	}

	// The recovery id is not needed to verify against a known public key.
	if len(sig) < crypto.RecoveryIDOffset {
		return false
	}

	return crypto.VerifySignature(publicKey, digest, sig[:crypto.RecoveryIDOffset])
}

// PublicKeyToAddress converts the public key to an address.
func PublicKeyToAddress(pk ecdsa.PublicKey) string {
	return hex.EncodeToString(crypto.FromECDSAPub(&pk))
}

// ToPublicKey decodes an address back into the public key it represents.
func ToPublicKey(address string) (*ecdsa.PublicKey, error) {
	if !IsValidAddress(address) {
		return nil, ErrInvalidAddress
	}

	data, err := hex.DecodeString(address)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	pk, err := crypto.UnmarshalPubkey(data)
	if err != nil {
		return nil, ErrInvalidAddress
	}

	return pk, nil
}

// IsValidAddress verifies the string is formatted as an address. Only the
// lowercase hex form is accepted so every address has one spelling.
func IsValidAddress(address string) bool {
	if len(address) != AddressLength {
		return false
	}

	if !strings.HasPrefix(address, addressPrefix) {
		return false
	}

	if strings.ToLower(address) != address {
		return false
	}

	_, err := hex.DecodeString(address)
	return err == nil
}

// =============================================================================

// toDigest converts the hex encoded hash into the 32 bytes needed for
// signing and verification.
func toDigest(hash string) ([]byte, error) {
	digest, err := hex.DecodeString(hash)
	if err != nil {
		return nil, err
	}

	if len(digest) != crypto.DigestLength {
		return nil, errors.New("hash is not 32 bytes")
	}

	return digest, nil
}
