// Package session implements the signed session identifier protocol (spec
// §4.4): a random 128-bit sid, HMAC-signed for the px_session_id cookie.
package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is returned by Codec.Verify when the signature does
// not match, or the value is malformed.
var ErrInvalidSignature = errors.New("session: invalid signature")

// Codec signs and verifies session identifiers with a process-wide secret.
// Secret rotation invalidates all existing sessions, which is acceptable
// signed with HMAC-SHA256.
type Codec struct {
	secret []byte
}

// New builds a Codec from the configured secret.
func New(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// GenerateSID returns a cryptographically random 128-bit value, hex encoded.
func GenerateSID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (c *Codec) mac(sid string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(sid))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Sign returns "<sid>.<base64url(HMAC-SHA256(secret, sid))>".
func (c *Codec) Sign(sid string) string {
	return sid + "." + c.mac(sid)
}

// Verify splits signed on the last dot, recomputes the MAC, and compares in
// constant time. It returns the raw sid on success.
func (c *Codec) Verify(signed string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i < 0 {
		return "", ErrInvalidSignature
	}
	sid, mac := signed[:i], signed[i+1:]
	expected := c.mac(sid)
	if !hmac.Equal([]byte(expected), []byte(mac)) {
		return "", ErrInvalidSignature
	}
	return sid, nil
}

// NewSigned mints a fresh sid and returns both the raw sid and its signed
// cookie value.
func (c *Codec) NewSigned() (sid, signed string, err error) {
	sid, err = GenerateSID()
	if err != nil {
		return "", "", err
	}
	return sid, c.Sign(sid), nil
}
