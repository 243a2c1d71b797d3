//go:build linux || darwin

package sim

import "golang.org/x/sys/unix"

// mapHost backs a node with anonymous private pages.
func mapHost(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapHost(b []byte) error {
	return unix.Munmap(b)
}
