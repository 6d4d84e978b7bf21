package bcryptutil

import (
	"golang.org/x/crypto/bcrypt"
)

// GenerateHash returns the bcrypt hash of the given string.
func GenerateHash(s string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareHash reports whether the plain text string matches the stored hash.
func CompareHash(s string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(s)) == nil
}
