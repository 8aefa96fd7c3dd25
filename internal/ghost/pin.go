package ghost

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	minPinLen   = 4
	maxPinLen   = 8
	grantPinLen = 6
)

// validIdentityPin reports whether pin is an acceptable Ghost Mode unlock PIN:
// 4-8 characters, all digits.
func validIdentityPin(pin string) bool {
	if len(pin) < minPinLen || len(pin) > maxPinLen {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// hashPin returns SHA-256(subject:pin:salt) as hex for DB storage. The subject
// (username) binds the hash to its owner so equal PINs never collide.
func hashPin(subject, pin, salt string) string {
	data := fmt.Sprintf("%s:%s:%s", subject, pin, salt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// generateGrantPin produces a fresh 6-digit one-time PIN from crypto/rand.
func generateGrantPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// generateSessionToken returns a random Base64URL token (32 bytes).
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func constantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var result int
	for i := 0; i < len(a); i++ {
		result |= int(a[i]) ^ int(b[i])
	}
	return result == 0
}
