/*
Package keys derives the per-space host keypair used to mint a space's
did:key identity (spec.md §5, §6 GET /peer/generate). Derivation is
deterministic from a 32-byte server secret, so no keypair is ever
persisted: Blake3(secret ∥ space-id) seeds an Ed25519 key, mirroring the
teacher's DeriveKeyFromClusterID (pkg/security/secrets.go) but with
Blake3 in place of SHA-256, per spec.md's exact construction.
*/
package keys

import (
	"crypto/ed25519"
	"fmt"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/verifier"
)

// SecretSize is the required length of the server's static secret.
const SecretSize = 32

// Derive computes a deterministic Ed25519 keypair for a space from the
// server secret. The same (secret, space) pair always yields the same
// key — no storage required.
func Derive(secret [SecretSize]byte, space tctypes.SpaceID) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	seed := tctypes.SumBlake3(append(append([]byte{}, secret[:]...), []byte(space)...))
	priv := ed25519.NewKeyFromSeed(seed.Bytes())
	pub := priv.Public().(ed25519.PublicKey)
	return pub, priv, nil
}

// DeriveDID derives a space's host did:key DID directly.
func DeriveDID(secret [SecretSize]byte, space tctypes.SpaceID) (tctypes.DID, error) {
	pub, _, err := Derive(secret, space)
	if err != nil {
		return "", err
	}
	did, err := verifier.EncodeDIDKey(pub)
	if err != nil {
		return "", fmt.Errorf("encode host did:key: %w", err)
	}
	return did, nil
}

// ParseSecret validates a raw secret byte slice and copies it into the
// fixed-size form Derive expects.
func ParseSecret(raw []byte) ([SecretSize]byte, error) {
	var out [SecretSize]byte
	if len(raw) != SecretSize {
		return out, fmt.Errorf("server secret must be %d bytes, got %d", SecretSize, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
