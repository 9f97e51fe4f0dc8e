//go:build linux

package shm

import "golang.org/x/sys/unix"

const (
	mmapProt = unix.PROT_READ | unix.PROT_WRITE
	mmapMode = unix.MAP_ANON | unix.MAP_PRIVATE
)

// AllocSlab maps anonymous page-aligned memory outside the Go heap.
func AllocSlab(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, mmapProt, mmapMode)
}

// DeallocSlab unmaps memory returned by AllocSlab.
func DeallocSlab(b []byte) error {
	return unix.Munmap(b)
}
