package blobstore

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// memStaged buffers writes in memory while hashing incrementally.
type memStaged struct {
	buf    bytes.Buffer
	hasher hashWriter
}

func newMemStaged() *memStaged {
	return &memStaged{hasher: newHashWriter()}
}

func (s *memStaged) Write(p []byte) (int, error) {
	if _, err := s.hasher.Write(p); err != nil {
		return 0, err
	}
	return s.buf.Write(p)
}

func (s *memStaged) Hash() tctypes.Hash { return s.hasher.Sum() }
func (s *memStaged) Size() int64        { return int64(s.buf.Len()) }
func (s *memStaged) Discard() error     { s.buf.Reset(); return nil }

type memSpace struct {
	blobs     map[tctypes.Hash][]byte
	totalSize int64
}

// Memory is an in-process Store, used by unit tests and ephemeral
// deployments. All state is lost on process exit.
type Memory struct {
	mu     sync.RWMutex
	spaces map[tctypes.SpaceID]*memSpace
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{spaces: make(map[tctypes.SpaceID]*memSpace)}
}

func (m *Memory) Create(space tctypes.SpaceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spaces[space]; !ok {
		m.spaces[space] = &memSpace{blobs: make(map[tctypes.Hash][]byte)}
	}
	return nil
}

func (m *Memory) space(space tctypes.SpaceID) (*memSpace, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[space]
	return s, ok
}

func (m *Memory) Contains(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	s, ok := m.space(space)
	if !ok {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok = s.blobs[hash]
	return ok, nil
}

func (m *Memory) Read(space tctypes.SpaceID, hash tctypes.Hash) (int64, io.ReadCloser, bool, error) {
	s, ok := m.space(space)
	if !ok {
		return 0, nil, false, nil
	}
	m.mu.RLock()
	data, ok := s.blobs[hash]
	m.mu.RUnlock()
	if !ok {
		return 0, nil, false, nil
	}
	return int64(len(data)), io.NopCloser(bytes.NewReader(data)), true, nil
}

func (m *Memory) Stage(space tctypes.SpaceID) (Staged, error) {
	return newMemStaged(), nil
}

func (m *Memory) Persist(space tctypes.SpaceID, staged Staged) (tctypes.Hash, error) {
	ms, ok := staged.(*memStaged)
	if !ok {
		return tctypes.Hash{}, fmt.Errorf("blobstore: staged value not produced by Memory.Stage")
	}
	hash := ms.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spaces[space]
	if !ok {
		return tctypes.Hash{}, tcerr.New(tcerr.SpaceNotFound, "space %s not created", space)
	}
	if _, exists := s.blobs[hash]; !exists {
		s.blobs[hash] = append([]byte(nil), ms.buf.Bytes()...)
		s.totalSize += ms.Size()
	}
	return hash, nil
}

func (m *Memory) PersistKeyed(space tctypes.SpaceID, staged Staged, expected tctypes.Hash) error {
	ms, ok := staged.(*memStaged)
	if !ok {
		return fmt.Errorf("blobstore: staged value not produced by Memory.Stage")
	}
	if ms.Hash() != expected {
		_ = ms.Discard()
		return tcerr.New(tcerr.IncorrectHash, "staged hash %s does not match expected %s", ms.Hash(), expected)
	}
	_, err := m.Persist(space, staged)
	return err
}

func (m *Memory) Remove(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spaces[space]
	if !ok {
		return false, nil
	}
	data, ok := s.blobs[hash]
	if !ok {
		return false, nil
	}
	delete(s.blobs, hash)
	s.totalSize -= int64(len(data))
	return true, nil
}

func (m *Memory) TotalSize(space tctypes.SpaceID) (int64, bool, error) {
	s, ok := m.space(space)
	if !ok {
		return 0, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return s.totalSize, true, nil
}
