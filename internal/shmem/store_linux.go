//go:build linux

package shmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Store is a named, fixed-size, single-writer/multi-reader shared-memory
// region backed by an mmap'd file under a tmpfs-mounted directory (spec §6
// "shared-memory surfaces"). The router is the sole writer; observers open
// the same path read-only.
type Store struct {
	file *os.File
	data []byte
}

// OpenStore creates (if needed) and maps a region of the given size at path.
func OpenStore(path string, size int) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shmem: open %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: truncate %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shmem: mmap %s: %w", path, err)
	}
	return &Store{file: f, data: data}, nil
}

// Write copies buf into the region starting at offset 0, truncating or
// zero-padding to the region's fixed size.
func (s *Store) Write(buf []byte) {
	n := copy(s.data, buf)
	for i := n; i < len(s.data); i++ {
		s.data[i] = 0
	}
}

// Read returns a copy of the region's current contents. Readers tolerate
// torn reads across update boundaries (spec §5).
func (s *Store) Read() []byte {
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// Close unmaps and closes the backing file.
func (s *Store) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return err
	}
	return s.file.Close()
}
