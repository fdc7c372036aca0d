package utils

import (
	"regexp"
	"testing"
)

func TestGenerateReferralCode(t *testing.T) {
	codeRE := regexp.MustCompile(`^MBR-[A-Z2-7]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateReferralCode()
		if err != nil {
			t.Fatalf("GenerateReferralCode: %v", err)
		}
		if !codeRE.MatchString(code) {
			t.Fatalf("code %q does not match MBR-XXXXXX base32 form", code)
		}
		seen[code] = true
	}
	// 100 draws from a 32^6 space should essentially never repeat.
	if len(seen) < 99 {
		t.Fatalf("generated codes collide far too often: %d unique of 100", len(seen))
	}
}
