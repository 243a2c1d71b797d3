package ring

import (
	"errors"

	"mcfe/hal"
)

// ============================================================================
// TEST COLLABORATORS
// ============================================================================

// fakeRegs is a plain register map with write logging.
type fakeRegs struct {
	vals   map[uint32]uint32
	writes []uint32 // offsets in write order
	reads  map[uint32]int
}

func newFakeRegs() *fakeRegs {
	return &fakeRegs{vals: map[uint32]uint32{}, reads: map[uint32]int{}}
}

func (f *fakeRegs) Read32(off uint32) uint32 {
	f.reads[off]++
	return f.vals[off]
}

func (f *fakeRegs) Write32(off, v uint32) {
	f.writes = append(f.writes, off)
	f.vals[off] = v
}

// fakeMem hands out heap-backed nodes and records every call.
type fakeMem struct {
	next      hal.Handle
	nodes     map[hal.Handle][]byte
	phys      uint64
	gpu       uint64
	allocs    int
	releases  int
	unlocks   int
	cleans    int
	failAlloc bool
	failHost  bool
}

var errFake = errors.New("fake failure")

func newFakeMem() *fakeMem {
	return &fakeMem{nodes: map[hal.Handle][]byte{}, phys: 0x8000_0000, gpu: 0x4000_0000}
}

func (m *fakeMem) Allocate(size, align int, flags hal.AllocFlags) (hal.Handle, error) {
	if m.failAlloc {
		return hal.NoHandle, errFake
	}
	m.next++
	m.allocs++
	m.nodes[m.next] = make([]byte, size)
	return m.next, nil
}

func (m *fakeMem) Lock(h hal.Handle) (uint64, error) {
	return m.gpu + uint64(h)<<12, nil
}

func (m *fakeMem) LockHost(h hal.Handle) ([]byte, error) {
	if m.failHost {
		return nil, errFake
	}
	return m.nodes[h], nil
}

func (m *fakeMem) PhysicalAddress(h hal.Handle) (uint64, error) {
	return m.phys + uint64(h)<<12, nil
}

func (m *fakeMem) CleanCache(h hal.Handle, offset, size int) error {
	m.cleans++
	return nil
}

func (m *fakeMem) UnlockHost(h hal.Handle) error {
	m.unlocks++
	return nil
}

func (m *fakeMem) Release(h hal.Handle) error {
	m.releases++
	delete(m.nodes, h)
	return nil
}
