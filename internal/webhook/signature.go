package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// VerifySignature checks the hex HMAC-SHA256 of body against signature.
// The returned error never contains the expected digest.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return errors.New("webhook signature: secret is empty")
	}
	if len(body) == 0 {
		return errors.New("webhook signature: body is empty")
	}
	if signature == "" {
		return errors.New("webhook signature: signature is empty")
	}

	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return fmt.Errorf("webhook signature: invalid hex: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), got) != 1 {
		return errors.New("webhook signature: mismatch")
	}
	return nil
}

// Sign returns the hex signature Linear would send for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
