//go:build !linux

package shm

import "github.com/ncw/directio"

// AllocSlab returns a block aligned to the platform's direct I/O alignment.
func AllocSlab(size int) ([]byte, error) {
	return directio.AlignedBlock(size), nil
}

// DeallocSlab is a no-op; the block is garbage collected.
func DeallocSlab([]byte) error {
	return nil
}
