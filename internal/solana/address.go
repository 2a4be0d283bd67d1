package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Address validation errors.
var (
	ErrInvalidAddress = errors.New("invalid solana address")
)

// pubkeyLen is the byte length of an ed25519 public key.
const pubkeyLen = 32

// DecodeAddress decodes a base58 Solana address and validates its length.
func DecodeAddress(addr string) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if len(decoded) != pubkeyLen {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(decoded))
	}
	return decoded, nil
}

// ValidateAddress reports whether addr is a well-formed Solana address.
func ValidateAddress(addr string) error {
	_, err := DecodeAddress(addr)
	return err
}

// IsOnCurve reports whether the address lies on the ed25519 curve.
// Wallet keypairs are on-curve; program derived addresses are not.
// An authority held by a PDA is program-controlled rather than
// wallet-held, which matters for rug risk.
func IsOnCurve(addr string) (bool, error) {
	decoded, err := DecodeAddress(addr)
	if err != nil {
		return false, err
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil, nil
}
