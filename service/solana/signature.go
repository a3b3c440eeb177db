package solana

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// SignatureLength is the size of a decoded transaction signature.
const SignatureLength = 64

var (
	// ErrInvalidSignature is returned when a string is not a base58 encoded
	// 64 byte signature.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidAddress is returned when a string is not a base58 public key.
	ErrInvalidAddress = errors.New("invalid address")
)

// ParseSignature decodes raw and checks that it is exactly 64 bytes.
// Nothing is fetched for a signature that fails this check.
func ParseSignature(raw string) (solana.Signature, error) {
	decoded, err := base58.Decode(raw)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %q", ErrInvalidSignature, raw)
	}
	if len(decoded) != SignatureLength {
		return solana.Signature{}, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidSignature, raw, len(decoded))
	}
	return solana.SignatureFromBytes(decoded), nil
}

// ParseAddress decodes a base58 account address.
func ParseAddress(raw string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return pk, nil
}
