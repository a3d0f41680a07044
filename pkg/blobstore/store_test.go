package blobstore

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	boltPath := filepath.Join(t.TempDir(), "blobs.bolt")
	bdb, err := NewBolt(boltPath)
	require.NoError(t, err)
	t.Cleanup(func() { bdb.Close() })

	return map[string]Store{
		"memory":     NewMemory(),
		"filesystem": NewFilesystem(t.TempDir()),
		"bolt":       bdb,
	}
}

func TestStorePersistIsIdempotentAndReadable(t *testing.T) {
	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Create(space))

			staged, err := store.Stage(space)
			require.NoError(t, err)
			_, err = staged.Write([]byte("hello"))
			require.NoError(t, err)

			hash, err := store.Persist(space, staged)
			require.NoError(t, err)
			assert.Equal(t, tctypes.SumBlake3([]byte("hello")), hash)

			ok, err := store.Contains(space, hash)
			require.NoError(t, err)
			assert.True(t, ok)

			length, r, ok, err := store.Read(space, hash)
			require.NoError(t, err)
			require.True(t, ok)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))
			assert.Equal(t, int64(5), length)

			size, ok, err := store.TotalSize(space)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(5), size)

			// Re-persisting identical bytes must not double the accumulator.
			staged2, err := store.Stage(space)
			require.NoError(t, err)
			_, _ = staged2.Write([]byte("hello"))
			hash2, err := store.Persist(space, staged2)
			require.NoError(t, err)
			assert.Equal(t, hash, hash2)

			size, _, err = store.TotalSize(space)
			require.NoError(t, err)
			assert.Equal(t, int64(5), size)
		})
	}
}

func TestStorePersistKeyedRejectsMismatch(t *testing.T) {
	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Create(space))
			staged, err := store.Stage(space)
			require.NoError(t, err)
			_, _ = staged.Write([]byte("hello"))

			err = store.PersistKeyed(space, staged, tctypes.SumBlake3([]byte("not hello")))
			require.Error(t, err)
			assert.Equal(t, tcerr.IncorrectHash, tcerr.KindOf(err))
		})
	}
}

func TestStoreRemoveDecrementsAccumulator(t *testing.T) {
	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Create(space))
			staged, err := store.Stage(space)
			require.NoError(t, err)
			_, _ = staged.Write([]byte("payload"))
			hash, err := store.Persist(space, staged)
			require.NoError(t, err)

			removed, err := store.Remove(space, hash)
			require.NoError(t, err)
			assert.True(t, removed)

			ok, err := store.Contains(space, hash)
			require.NoError(t, err)
			assert.False(t, ok)

			size, _, err := store.TotalSize(space)
			require.NoError(t, err)
			assert.Equal(t, int64(0), size)
		})
	}
}

func TestEitherFallsBackOnMiss(t *testing.T) {
	space := tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default")
	primary := NewMemory()
	fallback := NewMemory()
	require.NoError(t, primary.Create(space))
	require.NoError(t, fallback.Create(space))

	staged, err := fallback.Stage(space)
	require.NoError(t, err)
	_, _ = staged.Write([]byte("cold"))
	hash, err := fallback.Persist(space, staged)
	require.NoError(t, err)

	either := &Either{Primary: primary, Fallback: fallback}
	ok, err := either.Contains(space, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, r, ok, err := either.Read(space, hash)
	require.NoError(t, err)
	require.True(t, ok)
	data, _ := io.ReadAll(r)
	assert.Equal(t, "cold", string(data))

	primOk, err := primary.Contains(space, hash)
	require.NoError(t, err)
	assert.False(t, primOk, "Either.Read must not write through to primary")
}
