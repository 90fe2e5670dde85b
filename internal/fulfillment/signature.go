package fulfillment

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// SignatureHeader carries the PayU notification signature.
const SignatureHeader = "OpenPayU-Signature"

// WebhookVerifier authenticates inbound payment notifications.
type WebhookVerifier interface {
	Verify(header string, body []byte) error
}

// SignatureVerifier checks OpenPayU-Signature headers against the shop's second key.
type SignatureVerifier struct {
	secondKey string
}

// NewSignatureVerifier constructs a verifier.
func NewSignatureVerifier(secondKey string) *SignatureVerifier {
	return &SignatureVerifier{secondKey: secondKey}
}

// ParseSignatureHeader splits "sender=..;signature=..;algorithm=.." into a map.
func ParseSignatureHeader(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key == "" {
			continue
		}
		out[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return out
}

func newHash(algorithm string) (hash.Hash, error) {
	switch strings.ToUpper(strings.ReplaceAll(algorithm, "-", "")) {
	case "", "SHA256":
		return sha256.New(), nil
	case "MD5":
		return md5.New(), nil
	}
	return nil, fmt.Errorf("%w: unsupported signature algorithm %q", shared.ErrUnauthorized, algorithm)
}

// Sign computes hex(hash(body || secondKey)).
func Sign(body []byte, secondKey, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	h.Write(body)
	h.Write([]byte(secondKey))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify returns an error wrapping shared.ErrUnauthorized unless the header signs body.
func (v *SignatureVerifier) Verify(header string, body []byte) error {
	if strings.TrimSpace(header) == "" {
		return fmt.Errorf("%w: missing %s header", shared.ErrUnauthorized, SignatureHeader)
	}
	if v.secondKey == "" {
		return fmt.Errorf("%w: signature key not configured", shared.ErrUnauthorized)
	}
	parts := ParseSignatureHeader(header)
	got := strings.ToLower(parts["signature"])
	if got == "" {
		return fmt.Errorf("%w: signature missing from header", shared.ErrUnauthorized)
	}
	want, err := Sign(body, v.secondKey, parts["algorithm"])
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("%w: signature mismatch", shared.ErrUnauthorized)
	}
	return nil
}
