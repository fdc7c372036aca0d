// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// referralPrefix tags generated member referral codes.
const referralPrefix = "MBR"

// GenerateReferralCode returns a shareable code of the form MBR-XXXXXX where
// XXXXXX is 6 random base32 characters. Uniqueness is enforced by the
// database index; a collision fails the insert and the registration path
// retries with a fresh code.
func GenerateReferralCode() (string, error) {
	// 4 random bytes give 6 usable base32 characters.
	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	s := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	s = strings.ToUpper(s)[:6]
	return referralPrefix + "-" + s, nil
}
