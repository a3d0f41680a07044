/*
Package blobstore implements the content-addressed storage trait of
spec.md §6: stage-then-persist writes with a running hasher, idempotent
duplicate writes, and a per-space byte accumulator. Three backends are
provided — Memory, Filesystem, Bolt — plus Either, which composes two of
them for tiered reads (original_source/tinycloud-core/src/storage/either.rs).
*/
package blobstore

import (
	"io"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Staged is an in-flight write: bytes accumulate through a hasher so the
// final Hash is known only once the caller stops writing.
type Staged interface {
	io.Writer
	// Hash returns the digest of everything written so far.
	Hash() tctypes.Hash
	// Size returns the number of bytes written so far.
	Size() int64
	// Discard releases any resources without persisting (cancellation).
	Discard() error
}

// Store is the per-space content-addressed blob store of spec.md §6.
// Every method's space argument is a tctypes.SpaceID; all methods must be
// safe for concurrent use across spaces and, for reads, within a space.
type Store interface {
	// Create ensures the per-space container exists and its size
	// accumulator is initialized. Idempotent.
	Create(space tctypes.SpaceID) error

	// Contains reports whether a blob exists at (space, hash).
	Contains(space tctypes.SpaceID, hash tctypes.Hash) (bool, error)

	// Read opens the blob at (space, hash). The returned length is the
	// blob's total size; ok is false if no blob exists at that key.
	Read(space tctypes.SpaceID, hash tctypes.Hash) (length int64, data io.ReadCloser, ok bool, err error)

	// Stage opens a write sink with a running hasher; callers call
	// Persist or PersistKeyed once done writing.
	Stage(space tctypes.SpaceID) (Staged, error)

	// Persist commits a staged write under the hash computed from its
	// own contents, returning that hash. Writing a hash that already
	// exists is a no-op (spec.md §3 invariant 6).
	Persist(space tctypes.SpaceID, staged Staged) (tctypes.Hash, error)

	// PersistKeyed commits a staged write only if its computed hash
	// equals expected; otherwise returns an IncorrectHash error and
	// discards the staged bytes.
	PersistKeyed(space tctypes.SpaceID, staged Staged, expected tctypes.Hash) error

	// Remove deletes the blob at (space, hash) if present, decrementing
	// the size accumulator by the size discovered before deletion.
	// ok is false if no blob existed.
	Remove(space tctypes.SpaceID, hash tctypes.Hash) (ok bool, err error)

	// TotalSize returns the per-space byte accumulator. ok is false if
	// the space has never been Create'd.
	TotalSize(space tctypes.SpaceID) (size int64, ok bool, err error)
}
