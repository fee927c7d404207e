package session

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Keys is the static manager id to secret mapping. A secret starting with
// "$2" is a bcrypt hash; anything else is compared verbatim.
type Keys map[string]string

func (k Keys) Verify(managerID, supplied string) bool {
	secret, ok := k[managerID]
	if !ok || secret == "" {
		return false
	}
	if strings.HasPrefix(secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(supplied)) == 1
}

// Hash returns the bcrypt form of a secret for use in MANAGER_KEYS.
func Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
