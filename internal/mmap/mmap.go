// Package mmap is the region provider for shmcast: it creates, opens and
// maps the file-backed shared memory regions the container lives in.
//
// A region is a plain file (usually under /dev/shm) mapped MAP_SHARED into
// every attached process. Creation truncates the file to its full size
// without writing it, so the file is sparse: virtual address space is
// reserved up front while physical pages are committed lazily as bytes are
// first touched. Platform-specific code lives in mmap_unix.go.
package mmap

import "os"

// Region is an open, mapped shared memory region.
type Region struct {
	// Data is the mapped byte range, valid until Close.
	Data []byte
	// Path is the backing file path.
	Path string
	// Created reports whether this handle created the backing file.
	Created bool
}

// Remove deletes the backing file of a region. The mapping of any process
// that still has the region open stays valid until it unmaps.
func Remove(path string) error {
	return os.Remove(path)
}
