package blobstore

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

var bucketSizes = []byte("_sizes")

// Bolt is a single-file Store, one bucket per space holding hash→blob
// entries plus a top-level "_sizes" bucket tracking each space's
// accumulator. Adapted from the teacher's BoltStore bucket-per-collection
// layout (pkg/storage/boltdb.go).
type Bolt struct {
	db *bolt.DB
	mu sync.Mutex
}

// NewBolt opens (creating if absent) a bbolt file at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, tcerr.Wrap(tcerr.BlobStoreError, err, "open bolt blob store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSizes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, tcerr.Wrap(tcerr.BlobStoreError, err, "create sizes bucket")
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error { return b.db.Close() }

func spaceBucket(space tctypes.SpaceID) []byte {
	return []byte("space:" + string(space))
}

func (b *Bolt) Create(space tctypes.SpaceID) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(spaceBucket(space)); err != nil {
			return err
		}
		sizes := tx.Bucket(bucketSizes)
		if sizes.Get([]byte(space)) == nil {
			return sizes.Put([]byte(space), encodeSize(0))
		}
		return nil
	})
}

func (b *Bolt) Contains(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(spaceBucket(space))
		if bkt == nil {
			return nil
		}
		found = bkt.Get(hash.Bytes()) != nil
		return nil
	})
	return found, err
}

func (b *Bolt) Read(space tctypes.SpaceID, hash tctypes.Hash) (int64, io.ReadCloser, bool, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(spaceBucket(space))
		if bkt == nil {
			return nil
		}
		if v := bkt.Get(hash.Bytes()); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return 0, nil, false, tcerr.Wrap(tcerr.BlobStoreError, err, "read blob")
	}
	if data == nil {
		return 0, nil, false, nil
	}
	return int64(len(data)), io.NopCloser(bytes.NewReader(data)), true, nil
}

func (b *Bolt) Stage(space tctypes.SpaceID) (Staged, error) {
	return newMemStaged(), nil
}

func (b *Bolt) Persist(space tctypes.SpaceID, staged Staged) (tctypes.Hash, error) {
	ms, ok := staged.(*memStaged)
	if !ok {
		return tctypes.Hash{}, fmt.Errorf("blobstore: staged value not produced by Bolt.Stage")
	}
	hash := ms.Hash()

	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(spaceBucket(space))
		if bkt == nil {
			return tcerr.New(tcerr.SpaceNotFound, "space %s not created", space)
		}
		if bkt.Get(hash.Bytes()) != nil {
			return nil
		}
		if err := bkt.Put(hash.Bytes(), ms.buf.Bytes()); err != nil {
			return err
		}
		sizes := tx.Bucket(bucketSizes)
		return sizes.Put([]byte(space), encodeSize(decodeSize(sizes.Get([]byte(space)))+ms.Size()))
	})
	return hash, err
}

func (b *Bolt) PersistKeyed(space tctypes.SpaceID, staged Staged, expected tctypes.Hash) error {
	ms, ok := staged.(*memStaged)
	if !ok {
		return fmt.Errorf("blobstore: staged value not produced by Bolt.Stage")
	}
	if ms.Hash() != expected {
		_ = ms.Discard()
		return tcerr.New(tcerr.IncorrectHash, "staged hash %s does not match expected %s", ms.Hash(), expected)
	}
	_, err := b.Persist(space, staged)
	return err
}

func (b *Bolt) Remove(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	var removed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(spaceBucket(space))
		if bkt == nil {
			return nil
		}
		v := bkt.Get(hash.Bytes())
		if v == nil {
			return nil
		}
		size := int64(len(v))
		if err := bkt.Delete(hash.Bytes()); err != nil {
			return err
		}
		removed = true
		sizes := tx.Bucket(bucketSizes)
		return sizes.Put([]byte(space), encodeSize(decodeSize(sizes.Get([]byte(space)))-size))
	})
	return removed, err
}

func (b *Bolt) TotalSize(space tctypes.SpaceID) (int64, bool, error) {
	var size int64
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		sizes := tx.Bucket(bucketSizes)
		v := sizes.Get([]byte(space))
		if v == nil {
			return nil
		}
		ok = true
		size = decodeSize(v)
		return nil
	})
	return size, ok, err
}

func encodeSize(n int64) []byte {
	return []byte(fmt.Sprintf("%020d", n))
}

func decodeSize(b []byte) int64 {
	if b == nil {
		return 0
	}
	var n int64
	fmt.Sscanf(string(b), "%020d", &n)
	return n
}
