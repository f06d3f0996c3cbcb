// Package webhook authenticates and decodes inbound GitHub webhook requests.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// Supported signature algorithms.
const (
	AlgorithmSHA1   = "sha1"
	AlgorithmSHA256 = "sha256"
)

var (
	ErrMissingSecret        = errors.New("webhook secret is required")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrSignatureMissing     = errors.New("signature header is missing")
	ErrSignatureMalformed   = errors.New("signature header is malformed")
	ErrSignatureMismatch    = errors.New("signature does not match payload")
)

// Verifier checks request bodies against a shared secret using one fixed
// HMAC algorithm. It is safe for concurrent use.
type Verifier struct {
	secret    []byte
	algorithm string
}

// NewVerifier returns a verifier for the given secret. An empty secret is a
// configuration error and must stop the process before the endpoint is live.
func NewVerifier(secret, algorithm string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if algorithm == "" {
		algorithm = AlgorithmSHA1
	}
	if hashFor(algorithm) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return &Verifier{secret: []byte(secret), algorithm: algorithm}, nil
}

// Algorithm returns the digest algorithm the verifier expects.
func (v *Verifier) Algorithm() string {
	return v.algorithm
}

// SignatureHeader returns the request header GitHub puts the signature in
// for the verifier's algorithm.
func (v *Verifier) SignatureHeader() string {
	if v.algorithm == AlgorithmSHA256 {
		return "X-Hub-Signature-256"
	}
	return "X-Hub-Signature"
}

// Check reports why a signature header does not authenticate body, or nil
// when it does.
func (v *Verifier) Check(body []byte, header string) error {
	if header == "" {
		return ErrSignatureMissing
	}
	alg, sig, ok := strings.Cut(header, "=")
	if !ok || alg != v.algorithm {
		return ErrSignatureMalformed
	}
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureMalformed
	}
	if !hmac.Equal(provided, computeHMAC(v.algorithm, v.secret, body)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Verify reports whether header is a valid signature of body.
func (v *Verifier) Verify(body []byte, header string) bool {
	return v.Check(body, header) == nil
}

// Verify reports whether header is a valid HMAC-SHA1 signature of body under
// secret, in the "sha1=<hex>" form GitHub sends. Malformed input yields false.
func Verify(secret, body []byte, header string) bool {
	v := Verifier{secret: secret, algorithm: AlgorithmSHA1}
	return v.Verify(body, header)
}

// Sign returns the signature header value for body, e.g. "sha1=9f2c...".
func Sign(algorithm string, secret, body []byte) string {
	return algorithm + "=" + hex.EncodeToString(computeHMAC(algorithm, secret, body))
}

// computeHMAC generates the raw HMAC digest of payload.
func computeHMAC(algorithm string, secret, payload []byte) []byte {
	newHash := hashFor(algorithm)
	if newHash == nil {
		return nil
	}
	mac := hmac.New(newHash, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func hashFor(algorithm string) func() hash.Hash {
	switch algorithm {
	case AlgorithmSHA1:
		return sha1.New
	case AlgorithmSHA256:
		return sha256.New
	default:
		return nil
	}
}
