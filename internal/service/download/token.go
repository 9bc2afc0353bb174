package download

import (
	"crypto/rand"
	"encoding/base64"
)

const tokenAttempts = 5

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
