package auth

import (
	"strings"
	"testing"
)

func TestCsrfService_roundTrip(t *testing.T) {
	svc := NewCsrfService("test-csrf-secret-at-least-32-chars!!")

	token, err := svc.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.Verify(token); err != nil {
		t.Errorf("freshly issued token should verify: %v", err)
	}

	// Tokens are unique per issue.
	token2, _ := svc.Issue()
	if token == token2 {
		t.Error("two issued tokens should differ")
	}
}

func TestCsrfService_rejectsTampering(t *testing.T) {
	svc := NewCsrfService("test-csrf-secret-at-least-32-chars!!")
	token, _ := svc.Issue()

	if err := svc.Verify(token + "x"); err == nil {
		t.Error("tampered token should not verify")
	}
	if err := svc.Verify(""); err == nil {
		t.Error("empty token should not verify")
	}

	// A token signed under a different secret is rejected.
	other := NewCsrfService("a-completely-different-secret-value!")
	otherToken, _ := other.Issue()
	if err := svc.Verify(otherToken); err == nil {
		t.Error("token from another secret should not verify")
	}

	// Token body swapped between two valid tokens breaks the signature.
	parts := strings.Split(token, ".")
	otherParts := strings.Split(otherToken, ".")
	if len(parts) == 3 && len(otherParts) == 3 {
		frankenstein := parts[0] + "." + otherParts[1] + "." + parts[2]
		if err := svc.Verify(frankenstein); err == nil {
			t.Error("spliced token should not verify")
		}
	}
}
