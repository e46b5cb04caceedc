package webhook

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/calltrail/calltrail/internal/errs"
)

func signDelivery(t *testing.T, priv ed25519.PrivateKey, timestamp string, body []byte) string {
	t.Helper()
	signed := append([]byte(timestamp+"."), body...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, signed))
}

func TestVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	v := NewVerifier(pub)

	body := []byte(`{"data":{"event_type":"call.answered"}}`)
	ts := "1767225600"
	sig := signDelivery(t, priv, ts, body)

	if err := v.Verify(body, sig, ts); err != nil {
		t.Fatalf("Verify() error on valid signature: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	v := NewVerifier(pub)

	body := []byte(`{"data":{"event_type":"call.answered"}}`)
	ts := "1767225600"
	sig := signDelivery(t, priv, ts, body)

	tampered := []byte(`{"data":{"event_type":"call.hangup"}}`)
	err = v.Verify(tampered, sig, ts)
	if !errs.IsAuthentication(err) {
		t.Fatalf("Verify() on tampered body = %v, want authentication error", err)
	}
}

func TestVerifyRejectsTamperedTimestamp(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	v := NewVerifier(pub)

	body := []byte(`{}`)
	sig := signDelivery(t, priv, "1767225600", body)

	// The timestamp is part of the signed payload.
	if err := v.Verify(body, sig, "1767225601"); !errs.IsAuthentication(err) {
		t.Fatalf("Verify() with shifted timestamp = %v, want authentication error", err)
	}
}

func TestVerifyMissingHeaders(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	v := NewVerifier(pub)

	if err := v.Verify([]byte(`{}`), "", "1767225600"); !errs.IsAuthentication(err) {
		t.Errorf("missing signature = %v, want authentication error", err)
	}
	if err := v.Verify([]byte(`{}`), "c2ln", ""); !errs.IsAuthentication(err) {
		t.Errorf("missing timestamp = %v, want authentication error", err)
	}
	if err := v.Verify([]byte(`{}`), "not base64!!", "1767225600"); !errs.IsAuthentication(err) {
		t.Errorf("invalid base64 = %v, want authentication error", err)
	}
}

func TestVerifyUnconfiguredKey(t *testing.T) {
	v := NewVerifier(nil)
	if err := v.Verify([]byte(`{}`), "c2ln", "1767225600"); !errs.IsAuthentication(err) {
		t.Fatalf("Verify() without key = %v, want authentication error", err)
	}
}
