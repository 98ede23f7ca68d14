package auth

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestTokenRoundTrip(t *testing.T) {
	userUID := uuid.New()

	token, err := GenerateToken(userUID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserUID != userUID {
		t.Errorf("user_uid = %s, want %s", claims.UserUID, userUID)
	}
	if claims.Issuer != issuer || claims.Audience != audience {
		t.Errorf("iss/aud = %q/%q", claims.Issuer, claims.Audience)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	token, err := GenerateToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	parts := strings.Split(token, ".")

	// Swap the payload for another user's.
	other, err := GenerateToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	otherParts := strings.Split(other, ".")

	forged := parts[0] + "." + otherParts[1] + "." + parts[2]
	if _, err := ValidateToken(forged); err == nil {
		t.Error("forged payload accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{
		"",
		"not-a-token",
		"a.b",
		"a.b.c.d",
		"a.b.c",
	} {
		if _, err := ValidateToken(token); err == nil {
			t.Errorf("token %q accepted", token)
		}
	}
}
