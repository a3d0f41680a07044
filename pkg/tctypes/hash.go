package tctypes

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"lukechampine.com/blake3"
)

// Multicodec prefixes used when converting a Hash to a CID — spec.md §3.
const (
	CodecRaw     = 0x55
	CodecDagCBOR = 0x71
)

// Hash is a 32-byte Blake3 digest identifying an event, epoch, or blob.
type Hash [32]byte

// SumBlake3 computes the Blake3-256 digest of data.
func SumBlake3(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// Bytes returns the digest's raw bytes.
func (h Hash) Bytes() []byte { return h[:] }

// IsZero reports whether h is the zero hash (used as a sentinel for "no
// parent"/"not set").
func (h Hash) IsZero() bool { return h == Hash{} }

// CID converts h to a CID using the given multicodec prefix (CodecRaw for
// events/blobs, CodecDagCBOR for epochs).
func (h Hash) CID(codec uint64) (cid.Cid, error) {
	mh, err := multihash.Encode(h[:], multihash.BLAKE3)
	if err != nil {
		return cid.Undef, fmt.Errorf("encode multihash: %w", err)
	}
	return cid.NewCidV1(codec, mh), nil
}

// String renders h as a raw-codec CID string, falling back to hex if CID
// construction somehow fails.
func (h Hash) String() string {
	c, err := h.CID(CodecRaw)
	if err != nil {
		return hex.EncodeToString(h[:])
	}
	return c.String()
}

// ParseHash recovers a Hash from a CID string previously produced by
// Hash.String/Hash.CID, regardless of which multicodec prefix was used.
func ParseHash(s string) (Hash, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("decode cid %q: %w", s, err)
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return Hash{}, fmt.Errorf("decode multihash of %q: %w", s, err)
	}
	if len(decoded.Digest) != 32 {
		return Hash{}, fmt.Errorf("unexpected digest length %d in %q", len(decoded.Digest), s)
	}
	var h Hash
	copy(h[:], decoded.Digest)
	return h, nil
}
