package service

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// signatureLength is r || s || v
const signatureLength = 65

// SignatureVerifier checks that a submitted address signed the accompanying
// message with personal_sign (EIP-191).
type SignatureVerifier struct{}

// NewSignatureVerifier creates a new signature verifier
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

// RecoverAddress returns the address whose key produced signature over message
func (v *SignatureVerifier) RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("signature is not valid hex: %w", err)
	}
	if len(sig) != signatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", signatureLength, len(sig))
	}

	// Wallets emit v as 27/28; SigToPub expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports an error unless signature over message recovers to address.
// Addresses are compared case-insensitively.
func (v *SignatureVerifier) Verify(address, message, signature string) error {
	recovered, err := v.RecoverAddress(message, signature)
	if err != nil {
		return err
	}

	if !strings.EqualFold(recovered.Hex(), address) {
		return fmt.Errorf("signer mismatch: message signed by %s but submitted address is %s", recovered.Hex(), address)
	}
	return nil
}
