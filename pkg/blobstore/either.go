package blobstore

import (
	"io"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Either composes two backends behind a single Store: reads try Primary
// first, falling back to Fallback on a miss; writes and removes always go
// to Primary. Ported from original_source/tinycloud-core/src/storage/
// either.rs, used for deployments that want a fast primary (e.g. local
// disk) and a slow/cold fallback (e.g. a network-mounted Filesystem).
type Either struct {
	Primary  Store
	Fallback Store
}

func (e *Either) Create(space tctypes.SpaceID) error {
	return e.Primary.Create(space)
}

func (e *Either) Contains(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	ok, err := e.Primary.Contains(space, hash)
	if err != nil || ok {
		return ok, err
	}
	return e.Fallback.Contains(space, hash)
}

func (e *Either) Read(space tctypes.SpaceID, hash tctypes.Hash) (int64, io.ReadCloser, bool, error) {
	length, data, ok, err := e.Primary.Read(space, hash)
	if err != nil || ok {
		return length, data, ok, err
	}
	return e.Fallback.Read(space, hash)
}

func (e *Either) Stage(space tctypes.SpaceID) (Staged, error) {
	return e.Primary.Stage(space)
}

func (e *Either) Persist(space tctypes.SpaceID, staged Staged) (tctypes.Hash, error) {
	return e.Primary.Persist(space, staged)
}

func (e *Either) PersistKeyed(space tctypes.SpaceID, staged Staged, expected tctypes.Hash) error {
	return e.Primary.PersistKeyed(space, staged, expected)
}

func (e *Either) Remove(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	return e.Primary.Remove(space, hash)
}

func (e *Either) TotalSize(space tctypes.SpaceID) (int64, bool, error) {
	return e.Primary.TotalSize(space)
}
