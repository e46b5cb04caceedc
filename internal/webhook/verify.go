// Package webhook implements the provider webhook ingestion path:
// signature verification, event normalization, and idempotent application
// of deliveries to call aggregates.
package webhook

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/calltrail/calltrail/internal/errs"
)

// Verifier validates that an inbound webhook body was produced by the
// trusted provider. The signature is computed over the raw request bytes,
// never over re-serialized JSON, since re-serialization is not
// byte-stable.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier creates a Verifier for the given provider public key. A nil
// key produces a Verifier that rejects everything; callers that disable
// verification skip the call entirely.
func NewVerifier(publicKey ed25519.PublicKey) *Verifier {
	return &Verifier{publicKey: publicKey}
}

// Verify checks the detached Ed25519 signature over the delivery. The
// signed payload is the timestamp header, a ".", and the raw body.
func (v *Verifier) Verify(rawBody []byte, signatureHeader, timestampHeader string) error {
	if len(v.publicKey) != ed25519.PublicKeySize {
		return errs.Authenticationf("webhook public key not configured")
	}
	if signatureHeader == "" {
		return errs.Authenticationf("missing signature header")
	}
	if timestampHeader == "" {
		return errs.Authenticationf("missing timestamp header")
	}

	sig, err := base64.StdEncoding.DecodeString(signatureHeader)
	if err != nil {
		return errs.Authenticationf("signature is not valid base64")
	}

	signed := make([]byte, 0, len(timestampHeader)+1+len(rawBody))
	signed = append(signed, timestampHeader...)
	signed = append(signed, '.')
	signed = append(signed, rawBody...)

	if !ed25519.Verify(v.publicKey, signed, sig) {
		return errs.Authenticationf("signature verification failed")
	}
	return nil
}
