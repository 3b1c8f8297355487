package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// idSize is 32 bytes = 256 bits of entropy.
const idSize = 32

var encodedIDLen = base64.RawURLEncoding.EncodedLen(idSize)

// GenerateID generates a cryptographically secure session ID.
func GenerateID() (string, error) {
	b := make([]byte, idSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// wellFormedID rejects cookie values GenerateID could not have produced,
// so garbage never reaches the store.
func wellFormedID(id string) bool {
	if len(id) != encodedIDLen {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil
}
