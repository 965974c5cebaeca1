package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Claims is the opaque payload embedded in a generated bearer token.
type Claims struct {
	TenantID    string `json:"tn"`
	PrincipalID string `json:"pr"`
	TS          int64  `json:"t"`
}

// Generate creates a signed opaque bearer token scoping (tenantID,
// principalID). Nothing in this module issues tokens with it.
func Generate(tenantID, principalID string, secret []byte) (string, error) {
	cl := Claims{TenantID: tenantID, PrincipalID: principalID, TS: time.Now().Unix()}
	data, err := json.Marshal(cl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks token integrity and expiry, returning its Claims.
func Verify(token string, secret []byte, ttl time.Duration) (Claims, error) {
	var cl Claims
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return cl, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return cl, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return cl, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return cl, ErrInvalid
	}

	if err := json.Unmarshal(data, &cl); err != nil {
		return cl, ErrInvalid
	}
	if ttl > 0 && time.Since(time.Unix(cl.TS, 0)) > ttl {
		return cl, ErrExpired
	}
	return cl, nil
}

// Sign computes a hex-encoded HMAC-SHA256 signature over body, used for the
// HMAC-SHA256 push-notification auth scheme and outbound webhook signing.
func Sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex-encoded HMAC-SHA256 signature in constant time.
func VerifySignature(body []byte, signature string, secret []byte) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
