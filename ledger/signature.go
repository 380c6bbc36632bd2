package ledger

import "golang.org/x/crypto/ed25519"

// VerifyFunc checks signature of the message against the public key.
// Must be deterministic and without side effects
type VerifyFunc func(pubKey, msg, sig []byte) bool

// VerifyED25519 is the default signature check. Keys and signatures of wrong length do not verify
func VerifyED25519(pubKey, msg, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pubKey, msg, sig)
}
