package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// RandomDigits returns a string of length digits drawn from crypto/rand.
// Used for one-time verification codes, so predictability is not acceptable.
func RandomDigits(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: digit length must be positive")
	}

	digits := make([]byte, length)
	max := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// GenerateToken returns a URL-safe random token built from size random bytes.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", errors.New("crypto: token size must be positive")
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
