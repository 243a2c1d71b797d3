package sim

import (
	"sync/atomic"

	"mcfe/constants"
)

const regWords = constants.RegSpaceEnd >> 2

// Registers is the simulated MMIO register file. Every register is a
// 32-bit atomic so producer and device goroutines may touch it freely.
// Host-side accesses (Read32/Write32) are counted; device-side accesses
// (Peek/Poke) are not.
type Registers struct {
	vals   [regWords]atomic.Uint32
	reads  [regWords]atomic.Uint32
	writes [regWords]atomic.Uint32

	onWrite func(offset, value uint32)
}

// NewRegisters returns a register file with the pipeline reporting idle.
func NewRegisters() *Registers {
	r := &Registers{}
	r.vals[constants.RegPipeIdle>>2].Store(constants.PipeIdleAll)
	return r
}

// OnWrite installs a hook run after every host write. Install before the
// register file is shared.
func (r *Registers) OnWrite(fn func(offset, value uint32)) {
	r.onWrite = fn
}

func slot(offset uint32) (uint32, bool) {
	if offset&3 != 0 || offset>>2 >= regWords {
		return 0, false
	}
	return offset >> 2, true
}

// Read32 implements hal.Registers. Unmapped offsets read as zero.
func (r *Registers) Read32(offset uint32) uint32 {
	i, ok := slot(offset)
	if !ok {
		return 0
	}
	r.reads[i].Add(1)
	return r.vals[i].Load()
}

// Write32 implements hal.Registers. Unmapped offsets are ignored.
func (r *Registers) Write32(offset, value uint32) {
	i, ok := slot(offset)
	if !ok {
		return
	}
	r.writes[i].Add(1)
	r.vals[i].Store(value)
	if r.onWrite != nil {
		r.onWrite(offset, value)
	}
}

// Peek is a device-side read.
func (r *Registers) Peek(offset uint32) uint32 {
	i, ok := slot(offset)
	if !ok {
		return 0
	}
	return r.vals[i].Load()
}

// Poke is a device-side write.
func (r *Registers) Poke(offset, value uint32) {
	if i, ok := slot(offset); ok {
		r.vals[i].Store(value)
	}
}

// Reads returns how often the host read offset.
func (r *Registers) Reads(offset uint32) uint32 {
	if i, ok := slot(offset); ok {
		return r.reads[i].Load()
	}
	return 0
}

// Writes returns how often the host wrote offset.
func (r *Registers) Writes(offset uint32) uint32 {
	if i, ok := slot(offset); ok {
		return r.writes[i].Load()
	}
	return 0
}

// ResetCounters zeroes the access counters.
func (r *Registers) ResetCounters() {
	for i := range r.reads {
		r.reads[i].Store(0)
		r.writes[i].Store(0)
	}
}
