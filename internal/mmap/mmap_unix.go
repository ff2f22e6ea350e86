//go:build linux || darwin

package mmap

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Create creates the backing file for a new region, sizes it and maps it.
// The file is created exclusively; if it already exists, Create fails with
// an error satisfying os.IsExist and the caller may Open it instead.
func Create(path string, size int64, perm os.FileMode) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("mmap: invalid region size %d", size)
	}
	// Parent directories are a caller convenience, mkdir errors surface
	// through OpenFile below.
	_ = os.MkdirAll(filepath.Dir(path), os.ModePerm)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, perm)
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(path)
	}

	// Truncate reserves the full extent without committing pages.
	if err := f.Truncate(size); err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap: truncate %s to %d bytes: %w", path, size, err)
	}

	data, err := mapFile(f, int(size))
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = unix.Munmap(data)
		_ = os.Remove(path)
		return nil, err
	}
	return &Region{Data: data, Path: path, Created: true}, nil
}

// Open maps an existing region file at its current size.
func Open(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: stat %s: %w", path, err)
	}
	data, err := mapFile(f, int(info.Size()))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	return &Region{Data: data, Path: path}, nil
}

// Close unmaps the region. The backing file is left in place; removal is a
// separate policy decision made by the caller (see Remove).
func (r *Region) Close() error {
	if r.Data == nil {
		return nil
	}
	data := r.Data
	r.Data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("mmap: munmap %s: %w", r.Path, err)
	}
	return nil
}

func mapFile(f *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: map %s: %w", f.Name(), err)
	}
	return data, nil
}
