// affinity_linux.go - consumer thread pinning via sched_setaffinity(2)

//go:build linux

package sim

import (
	"golang.org/x/sys/unix"

	"mcfe/debug"
)

// setAffinity pins the calling OS thread to cpu. Negative cpu leaves the
// thread unpinned.
func setAffinity(cpu int) {
	if cpu < 0 {
		return
	}
	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		debug.DropError("SIM affinity", err)
	}
}
