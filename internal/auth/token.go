// Package auth issues and verifies the compact access tokens the API
// hands out on signin: a base64 JSON claims payload signed with
// HMAC-SHA256. Refresh tokens are opaque and only ever stored hashed.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims is the signed payload carried by an access token. Sub is the
// user id; JTI ties the token to the refresh session that minted it.
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	Role string `json:"role"`
	JTI  string `json:"jti"`
	Exp  int64  `json:"exp"`
}

func (c Claims) valid() bool {
	return c.Sub != "" && c.JTI != "" && c.Exp != 0
}

// IssueToken serializes claims and appends their signature.
func IssueToken(secret []byte, claims Claims) (string, error) {
	body, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + mac(secret, encoded), nil
}

// ParseToken verifies the signature before decoding anything, then
// checks shape and expiry. All verification failures collapse into
// ErrInvalidToken so callers leak nothing about which check tripped.
func ParseToken(secret []byte, token string) (Claims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(sig), []byte(mac(secret, encoded))) {
		return Claims{}, ErrInvalidToken
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil || !claims.valid() {
		return Claims{}, ErrInvalidToken
	}
	if time.Now().Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func mac(secret []byte, encoded string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// HashToken is the stored form of a refresh token.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
