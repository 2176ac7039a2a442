// internal/utils/crypto.go
package utils

import (
	"crypto/rand"
	"math/big"
)

func GenerateRandomString(length int) (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)

	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		b[i] = charset[n.Int64()]
	}

	return string(b), nil
}

// GeneratePaymentReference returns an opaque reference for payments recorded
// without one from the payment provider.
func GeneratePaymentReference() (string, error) {
	randomPart, err := GenerateRandomString(16)
	if err != nil {
		return "", err
	}
	return "PAY-" + randomPart, nil
}
