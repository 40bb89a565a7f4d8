package execution

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"
)

// Signer authenticates an order request before it is sent.
// body is the exact payload that will be written to the wire.
type Signer interface {
	Sign(req *http.Request, body []byte) error
}

// NopSigner leaves requests untouched.
type NopSigner struct{}

func (NopSigner) Sign(*http.Request, []byte) error { return nil }

// HMACSigner adds API-KEY / API-SIGN / API-TIMESTAMP / API-PASSPHRASE headers.
// The signature is base64(HMAC-SHA256(secret, timestamp + method + requestURI + body)).
type HMACSigner struct {
	apiKey     string
	secret     string
	passphrase string
	now        func() time.Time
}

// NewHMACSigner creates a new HMACSigner instance
func NewHMACSigner(apiKey, secret, passphrase string) *HMACSigner {
	return &HMACSigner{
		apiKey:     apiKey,
		secret:     secret,
		passphrase: passphrase,
		now:        time.Now,
	}
}

func (s *HMACSigner) Sign(req *http.Request, body []byte) error {
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	payload := timestamp + req.Method + req.URL.RequestURI() + string(body)

	req.Header.Set("API-KEY", s.apiKey)
	req.Header.Set("API-SIGN", computeHmacSha256(payload, s.secret))
	req.Header.Set("API-TIMESTAMP", timestamp)
	if s.passphrase != "" {
		req.Header.Set("API-PASSPHRASE", s.passphrase)
	}
	return nil
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
