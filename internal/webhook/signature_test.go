package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"testing"
)

func TestVerify(t *testing.T) {
	secret := []byte("topsecret")
	body := []byte(`{"zen":"ok"}`)

	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	valid := "sha1=" + hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "valid signature", header: valid, want: true},
		{name: "wrong secret", header: Sign(AlgorithmSHA1, []byte("wrongsecret"), body), want: false},
		{name: "missing header", header: "", want: false},
		{name: "missing separator", header: hex.EncodeToString(mac.Sum(nil)), want: false},
		{name: "empty digest", header: "sha1=", want: false},
		{name: "non-hex digest", header: "sha1=zzzz", want: false},
		{name: "wrong algorithm prefix", header: Sign(AlgorithmSHA256, secret, body), want: false},
		{name: "truncated digest", header: valid[:len(valid)-2], want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(secret, body, tt.header); got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestVerify_RoundTripAcrossPayloads(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{}`),
		[]byte(`{"action":"opened","issue":{"number":1}}`),
		[]byte(`{"name":"café","price":"€10"}`),
		{},
	}
	secrets := []string{"s", "topsecret", "unicode-key-日本語"}

	for _, p := range payloads {
		for _, s := range secrets {
			if !Verify([]byte(s), p, Sign(AlgorithmSHA1, []byte(s), p)) {
				t.Errorf("signature made with %q did not verify for %q", s, p)
			}
			if Verify([]byte(s), p, Sign(AlgorithmSHA1, []byte(s+"x"), p)) {
				t.Errorf("signature made with a different secret verified for %q", p)
			}
		}
	}
}

func TestVerifier_SHA256(t *testing.T) {
	v, err := NewVerifier("topsecret", AlgorithmSHA256)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	body := []byte(`{"zen":"ok"}`)

	if v.SignatureHeader() != "X-Hub-Signature-256" {
		t.Errorf("SignatureHeader = %q", v.SignatureHeader())
	}
	if !v.Verify(body, Sign(AlgorithmSHA256, []byte("topsecret"), body)) {
		t.Error("sha256 signature should verify")
	}
	if v.Verify(body, Sign(AlgorithmSHA1, []byte("topsecret"), body)) {
		t.Error("sha1 signature should not verify against a sha256 verifier")
	}
}

func TestVerifier_CheckReasons(t *testing.T) {
	v, err := NewVerifier("topsecret", "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if v.Algorithm() != AlgorithmSHA1 {
		t.Errorf("default algorithm = %q, want sha1", v.Algorithm())
	}
	body := []byte(`{}`)

	if err := v.Check(body, ""); !errors.Is(err, ErrSignatureMissing) {
		t.Errorf("missing header: got %v", err)
	}
	if err := v.Check(body, "garbage"); !errors.Is(err, ErrSignatureMalformed) {
		t.Errorf("malformed header: got %v", err)
	}
	if err := v.Check(body, Sign(AlgorithmSHA1, []byte("other"), body)); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("mismatch: got %v", err)
	}
}

func TestNewVerifier_Errors(t *testing.T) {
	if _, err := NewVerifier("", AlgorithmSHA1); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("empty secret: got %v, want ErrMissingSecret", err)
	}
	if _, err := NewVerifier("s", "md5"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("md5: got %v, want ErrUnsupportedAlgorithm", err)
	}
}
