package webhookingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature implements spec.md's P8: sigHex must equal the
// hex-encoded SHA-256 HMAC of body under secret, compared in constant
// time so a timing side channel can't be used to guess the signature
// byte by byte.
func VerifySignature(body []byte, sigHex, secret string) bool {
	expected := computeSignature(body, secret)
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func computeSignature(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignBody is the producer-side counterpart of VerifySignature, exposed
// for tests and for any internal tooling that needs to generate a valid
// X-Webhook-Signature header.
func SignBody(body []byte, secret string) string {
	return hex.EncodeToString(computeSignature(body, secret))
}
