package usecase

import (
	"crypto/rand"
	"io"

	"commerce-access/internal/domain/model"
)

// generateOtoCode creates a secure, random, and human-readable offer code.
// Format: OTO-XXXXXXXX
func generateOtoCode() (string, error) {
	// A character set that avoids ambiguous characters like O/0, I/1, l.
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLength = 8

	buffer := make([]byte, codeLength)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}

	for i := 0; i < codeLength; i++ {
		buffer[i] = chars[int(buffer[i])%len(chars)]
	}

	return model.OtoCodePrefix + string(buffer), nil
}
