package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tcerr"
	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// fsStaged buffers a write to a temp file while hashing incrementally,
// so Stage never holds the whole blob in memory for large puts.
type fsStaged struct {
	file   *os.File
	hasher hashWriter
	size   int64
}

func (s *fsStaged) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	if err != nil {
		return n, err
	}
	if _, herr := s.hasher.Write(p[:n]); herr != nil {
		return n, herr
	}
	s.size += int64(n)
	return n, nil
}

func (s *fsStaged) Hash() tctypes.Hash { return s.hasher.Sum() }
func (s *fsStaged) Size() int64        { return s.size }

func (s *fsStaged) Discard() error {
	name := s.file.Name()
	s.file.Close()
	return os.Remove(name)
}

// Filesystem is a Store backed by one directory per space under root,
// blobs named by hex-encoded hash. The per-space size accumulator is kept
// in memory, reconstructed on Create by walking existing blob files.
type Filesystem struct {
	root string

	mu    sync.Mutex
	sizes map[tctypes.SpaceID]int64
	known map[tctypes.SpaceID]bool
}

// NewFilesystem opens (without yet creating any space directories) a
// Filesystem store rooted at root.
func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: root, sizes: make(map[tctypes.SpaceID]int64), known: make(map[tctypes.SpaceID]bool)}
}

func (f *Filesystem) spaceDir(space tctypes.SpaceID) string {
	return filepath.Join(f.root, spaceDirName(space))
}

// spaceDirName escapes a SpaceID into a filesystem-safe directory name;
// SpaceIDs contain only "tinycloud:{did-suffix}:{name}" which includes
// colons, so they're replaced with "_".
func spaceDirName(space tctypes.SpaceID) string {
	out := make([]byte, 0, len(space))
	for _, c := range []byte(space) {
		if c == ':' || c == '/' {
			out = append(out, '_')
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}

func (f *Filesystem) blobPath(space tctypes.SpaceID, hash tctypes.Hash) string {
	return filepath.Join(f.spaceDir(space), fmt.Sprintf("%x", hash[:]))
}

func (f *Filesystem) Create(space tctypes.SpaceID) error {
	dir := f.spaceDir(space)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return tcerr.Wrap(tcerr.BlobStoreError, err, "create space directory")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known[space] {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return tcerr.Wrap(tcerr.BlobStoreError, err, "read space directory")
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	f.sizes[space] = total
	f.known[space] = true
	return nil
}

func (f *Filesystem) Contains(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	_, err := os.Stat(f.blobPath(space, hash))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, tcerr.Wrap(tcerr.BlobStoreError, err, "stat blob")
	}
	return true, nil
}

func (f *Filesystem) Read(space tctypes.SpaceID, hash tctypes.Hash) (int64, io.ReadCloser, bool, error) {
	file, err := os.Open(f.blobPath(space, hash))
	if os.IsNotExist(err) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, tcerr.Wrap(tcerr.BlobStoreError, err, "open blob")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, nil, false, tcerr.Wrap(tcerr.BlobStoreError, err, "stat blob")
	}
	return info.Size(), file, true, nil
}

func (f *Filesystem) Stage(space tctypes.SpaceID) (Staged, error) {
	dir := f.spaceDir(space)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tcerr.Wrap(tcerr.BlobStoreError, err, "create space directory")
	}
	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return nil, tcerr.Wrap(tcerr.BlobStoreError, err, "create staging file")
	}
	return &fsStaged{file: tmp, hasher: newHashWriter()}, nil
}

func (f *Filesystem) Persist(space tctypes.SpaceID, staged Staged) (tctypes.Hash, error) {
	fs, ok := staged.(*fsStaged)
	if !ok {
		return tctypes.Hash{}, fmt.Errorf("blobstore: staged value not produced by Filesystem.Stage")
	}
	hash := fs.Hash()
	dest := f.blobPath(space, hash)

	if exists, err := f.Contains(space, hash); err != nil {
		return tctypes.Hash{}, err
	} else if exists {
		return hash, fs.Discard()
	}

	fs.file.Close()
	if err := os.Rename(fs.file.Name(), dest); err != nil {
		return tctypes.Hash{}, tcerr.Wrap(tcerr.BlobStoreError, err, "rename staged blob into place")
	}

	f.mu.Lock()
	f.sizes[space] += fs.Size()
	f.mu.Unlock()
	return hash, nil
}

func (f *Filesystem) PersistKeyed(space tctypes.SpaceID, staged Staged, expected tctypes.Hash) error {
	fs, ok := staged.(*fsStaged)
	if !ok {
		return fmt.Errorf("blobstore: staged value not produced by Filesystem.Stage")
	}
	if fs.Hash() != expected {
		_ = fs.Discard()
		return tcerr.New(tcerr.IncorrectHash, "staged hash %s does not match expected %s", fs.Hash(), expected)
	}
	_, err := f.Persist(space, staged)
	return err
}

func (f *Filesystem) Remove(space tctypes.SpaceID, hash tctypes.Hash) (bool, error) {
	path := f.blobPath(space, hash)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, tcerr.Wrap(tcerr.BlobStoreError, err, "stat blob before removal")
	}
	if err := os.Remove(path); err != nil {
		return false, tcerr.Wrap(tcerr.BlobStoreError, err, "remove blob")
	}

	f.mu.Lock()
	f.sizes[space] -= info.Size()
	f.mu.Unlock()
	return true, nil
}

func (f *Filesystem) TotalSize(space tctypes.SpaceID) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[space] {
		return 0, false, nil
	}
	return f.sizes[space], true, nil
}
