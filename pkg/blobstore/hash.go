package blobstore

import (
	"lukechampine.com/blake3"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// hashWriter wraps a blake3 hasher so Staged implementations can hash
// incrementally as bytes are written, rather than buffering then hashing.
type hashWriter struct {
	h *blake3.Hasher
}

func newHashWriter() hashWriter {
	return hashWriter{h: blake3.New(32, nil)}
}

func (w hashWriter) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

func (w hashWriter) Sum() tctypes.Hash {
	var out tctypes.Hash
	copy(out[:], w.h.Sum(nil))
	return out
}
