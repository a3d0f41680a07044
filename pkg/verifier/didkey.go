/*
Package verifier implements spec.md §4.3: signature verification for both
credential formats, time-bound checks, and ReCap capability extraction.
It depends on pkg/codec for parsed envelopes and pkg/tctypes for the
common event shapes, but never on pkg/delegation or pkg/eventlog — the
Verifier only answers "is this credential authentic and currently valid",
never "is it authorized".
*/
package verifier

import (
	"crypto/ed25519"
	"strings"

	"github.com/multiformats/go-multibase"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// multicodecEd25519Pub is the varint-encoded "ed25519-pub" multicodec
// prefix (0xed01) prepended to the raw public key before multibase
// encoding, per the did:key method spec.
var multicodecEd25519Pub = []byte{0xed, 0x01}

// ResolveDIDKey extracts the Ed25519 public key embedded in a did:key DID
// URL. A fragment (e.g. "did:key:z6Mk...#z6Mk...") is stripped first, as
// session-key DIDs are always self-referencing.
func ResolveDIDKey(did tctypes.DID) (ed25519.PublicKey, error) {
	base := did.WithoutFragment()
	const prefix = "did:key:"
	if !strings.HasPrefix(string(base), prefix) {
		return nil, tcerr.New(tcerr.UnsupportedSignatureType, "not a did:key DID: %s", did)
	}
	mb := strings.TrimPrefix(string(base), prefix)

	_, data, err := multibase.Decode(mb)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.MalformedCredential, err, "decode did:key multibase")
	}
	if len(data) < 2 || data[0] != multicodecEd25519Pub[0] || data[1] != multicodecEd25519Pub[1] {
		return nil, tcerr.New(tcerr.UnsupportedSignatureType, "did:key %s is not an ed25519-pub key", did)
	}
	raw := data[2:]
	if len(raw) != ed25519.PublicKeySize {
		return nil, tcerr.New(tcerr.MalformedCredential, "did:key %s has unexpected key length %d", did, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeDIDKey builds a did:key DID URL from a raw Ed25519 public key, for
// minting host DIDs (spec.md §6 /peer/generate) and test fixtures.
func EncodeDIDKey(pub ed25519.PublicKey) (tctypes.DID, error) {
	data := append(append([]byte{}, multicodecEd25519Pub...), pub...)
	mb, err := multibase.Encode(multibase.Base58BTC, data)
	if err != nil {
		return "", err
	}
	return tctypes.DID("did:key:" + mb), nil
}
