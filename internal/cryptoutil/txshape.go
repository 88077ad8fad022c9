package cryptoutil

import "fmt"

// Size limits from the tx wire contract.
const (
	MaxIDSize        = 32
	MaxOwnerSize     = 512
	MaxSignatureSize = 512
	MaxTagsSize      = 2048
	MaxDecimalDigits = 21
	MaxTxSize        = 50 * 1024 * 1024
)

// ValidateTxShape checks the size limits of the tx wire contract, independent of signature
// verification or balance checks (those belong to internal/validator and internal/wallet).
func ValidateTxShape(owner, signature, tags []byte, quantity, reward string, data []byte) error {
	if len(owner) > MaxOwnerSize {
		return fmt.Errorf("owner exceeds %d bytes", MaxOwnerSize)
	}
	if len(signature) > MaxSignatureSize {
		return fmt.Errorf("signature exceeds %d bytes", MaxSignatureSize)
	}
	if len(tags) > MaxTagsSize {
		return fmt.Errorf("tags exceed %d bytes", MaxTagsSize)
	}
	if len(quantity) > MaxDecimalDigits {
		return fmt.Errorf("quantity exceeds %d decimal digits", MaxDecimalDigits)
	}
	if len(reward) > MaxDecimalDigits {
		return fmt.Errorf("reward exceeds %d decimal digits", MaxDecimalDigits)
	}
	total := len(owner) + len(signature) + len(tags) + len(data)
	if total > MaxTxSize {
		return fmt.Errorf("tx exceeds %d bytes", MaxTxSize)
	}
	return nil
}
