// Package auth issues and validates the HS256 tokens used by the API.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Claims carries the authenticated user identity plus the standard JWT
// registered claims.
type Claims struct {
	UserUID   uuid.UUID `json:"user_uid"`
	Issuer    string    `json:"iss"`
	Audience  string    `json:"aud"`
	ExpiresAt int64     `json:"exp"`
	IssuedAt  int64     `json:"iat"`
	NotBefore int64     `json:"nbf"`
}

const (
	issuer   = "feedforge"
	audience = "feedforge-api"
	tokenTTL = 24 * time.Hour
)

var jwtSecret []byte

func init() {
	secret := os.Getenv("JWT_SECRET")
	switch {
	case secret == "":
		log.Printf("auth: JWT_SECRET not set, using insecure development secret")
		jwtSecret = []byte("insecure_default_secret_for_dev_mode_only_32bytes")
	case len(secret) < 32:
		panic("JWT_SECRET must be at least 32 characters long")
	default:
		jwtSecret = []byte(secret)
	}
}

// GenerateToken creates a signed token for the given user.
func GenerateToken(userUID uuid.UUID) (string, error) {
	now := time.Now().Unix()
	claims := Claims{
		UserUID:   userUID,
		Issuer:    issuer,
		Audience:  audience,
		ExpiresAt: now + int64(tokenTTL.Seconds()),
		IssuedAt:  now,
		NotBefore: now,
	}

	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, _ := json.Marshal(header)
	claimsJSON, _ := json.Marshal(claims)

	signingInput := base64URLEncode(headerJSON) + "." + base64URLEncode(claimsJSON)
	return signingInput + "." + computeHMAC(signingInput, jwtSecret), nil
}

// ValidateToken verifies the signature and the registered claims, returning
// the embedded identity.
func ValidateToken(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, errors.New("invalid token format")
	}

	signingInput := parts[0] + "." + parts[1]
	expected := computeHMAC(signingInput, jwtSecret)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, errors.New("invalid signature")
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}

	now := time.Now().Unix()
	if now > claims.ExpiresAt {
		return nil, errors.New("token expired")
	}
	if now < claims.NotBefore {
		return nil, errors.New("token not yet valid")
	}
	if claims.Issuer != issuer {
		return nil, errors.New("invalid issuer")
	}
	if claims.Audience != audience {
		return nil, errors.New("invalid audience")
	}
	if claims.UserUID == uuid.Nil {
		return nil, errors.New("missing user identity")
	}

	return &claims, nil
}

func computeHMAC(message string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return base64URLEncode(h.Sum(nil))
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func base64URLDecode(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(data)
}
