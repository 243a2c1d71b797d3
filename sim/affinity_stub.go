//go:build !linux

package sim

//go:nosplit
//go:inline
func setAffinity(int) {}
