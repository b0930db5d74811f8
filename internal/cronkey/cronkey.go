// Package cronkey hashes and verifies the per tenant shared secrets that
// authenticate unattended sync triggers.
package cronkey

import (
	"golang.org/x/crypto/bcrypt"
)

// HashKey produces a salted digest of a plaintext cron key. The plaintext is
// never stored anywhere.
func HashKey(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyKey checks a candidate against a stored digest. bcrypt's comparison
// does not short circuit on the first differing byte, so response time leaks
// nothing about where a guess went wrong.
func VerifyKey(digest string, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate)) == nil
}
