package sim

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mcfe/constants"
	"mcfe/control"
	"mcfe/hal"
	"mcfe/ring"
)

// ============================================================================
// REGISTER FILE
// ============================================================================

func TestRegistersIdleAtReset(t *testing.T) {
	r := NewRegisters()
	if v := r.Read32(constants.RegPipeIdle); v != constants.PipeIdleAll {
		t.Fatalf("idle register = %#x, want %#x", v, constants.PipeIdleAll)
	}
	if r.Reads(constants.RegPipeIdle) != 1 {
		t.Fatalf("read counter = %d, want 1", r.Reads(constants.RegPipeIdle))
	}
}

func TestRegistersCountHostAccessOnly(t *testing.T) {
	r := NewRegisters()
	off := ring.Standard.WritePtr(3)
	r.Write32(off, 7)
	r.Poke(off, 9)
	if got := r.Peek(off); got != 9 {
		t.Fatalf("Peek = %d, want 9", got)
	}
	if r.Writes(off) != 1 || r.Reads(off) != 0 {
		t.Fatalf("counters writes=%d reads=%d, want 1/0", r.Writes(off), r.Reads(off))
	}
	r.ResetCounters()
	if r.Writes(off) != 0 {
		t.Fatal("ResetCounters kept write count")
	}
}

func TestRegistersUnmapped(t *testing.T) {
	r := NewRegisters()
	r.Write32(constants.RegSpaceEnd, 1)
	r.Write32(0x2401, 1)
	if r.Read32(constants.RegSpaceEnd) != 0 || r.Read32(0x2401) != 0 {
		t.Fatal("unmapped register returned data")
	}
}

func TestRegistersWriteHook(t *testing.T) {
	r := NewRegisters()
	var seen []uint32
	r.OnWrite(func(off, v uint32) { seen = append(seen, off, v) })
	r.Write32(constants.RegEventEnable, constants.EventEnableAll)
	r.Poke(constants.RegEventEnable, 0)
	if len(seen) != 2 || seen[0] != constants.RegEventEnable || seen[1] != constants.EventEnableAll {
		t.Fatalf("hook saw %v", seen)
	}
}

// ============================================================================
// DEVICE MEMORY
// ============================================================================

func TestMemoryWindows(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	h, err := m.Allocate(constants.RingBytes, constants.RingAlignment, hal.AllocContiguous)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	phys, _ := m.PhysicalAddress(h)
	gpu, err := m.Lock(h)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if phys != DefaultPhysicalBase || gpu != DefaultGPUBase {
		t.Fatalf("phys=%#x gpu=%#x", phys, gpu)
	}
	host, err := m.LockHost(h)
	if err != nil || len(host) != constants.RingBytes {
		t.Fatalf("LockHost len=%d err=%v", len(host), err)
	}
	host[16] = 0xAB

	for _, addr := range []uint64{phys, gpu} {
		b, ok := m.Resolve(uint32(addr)+16, 1)
		if !ok || b[0] != 0xAB {
			t.Fatalf("Resolve(%#x) = %v %v", addr+16, b, ok)
		}
	}
	if _, ok := m.Resolve(uint32(phys)+constants.RingBytes-4, 8); ok {
		t.Fatal("Resolve crossed the node end")
	}
}

func TestMemorySecondNodeDisjoint(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	a, _ := m.Allocate(100, 64, 0)
	b, _ := m.Allocate(100, 64, 0)
	pa, _ := m.PhysicalAddress(a)
	pb, _ := m.PhysicalAddress(b)
	if pb < pa+pageSize {
		t.Fatalf("nodes overlap: %#x %#x", pa, pb)
	}
}

func TestMemoryLimit(t *testing.T) {
	m := NewMemory(MemoryConfig{Limit: 2 * pageSize})
	if _, err := m.Allocate(pageSize, 64, 0); err != nil {
		t.Fatalf("first: %v", err)
	}
	h, err := m.Allocate(pageSize, 64, 0)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if _, err := m.Allocate(1, 64, 0); !errors.Is(err, hal.ErrAllocation) {
		t.Fatalf("over limit: %v", err)
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := m.Allocate(1, 64, 0); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestMemoryInjectedMappingFailure(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	h, _ := m.Allocate(64, 64, 0)

	m.FailMapping(true, false)
	if _, err := m.Lock(h); !errors.Is(err, hal.ErrMapping) {
		t.Fatalf("Lock: %v", err)
	}
	m.FailMapping(false, true)
	if _, err := m.LockHost(h); !errors.Is(err, hal.ErrMapping) {
		t.Fatalf("LockHost: %v", err)
	}
	m.FailMapping(false, false)
	if _, err := m.LockHost(h); err != nil {
		t.Fatalf("LockHost after reset: %v", err)
	}
}

func TestMemoryCleanAndRelease(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	h, _ := m.Allocate(64, 64, hal.AllocCacheable)
	if err := m.CleanCache(h, 56, 8); err != nil {
		t.Fatalf("CleanCache: %v", err)
	}
	if err := m.CleanCache(h, 60, 8); !errors.Is(err, hal.ErrInvalidArgument) {
		t.Fatalf("CleanCache past end: %v", err)
	}
	if m.Cleans() != 1 {
		t.Fatalf("Cleans = %d", m.Cleans())
	}
	if err := m.UnlockHost(h); err != nil {
		t.Fatalf("UnlockHost: %v", err)
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := m.Release(h); !errors.Is(err, hal.ErrInvalidArgument) {
		t.Fatalf("double Release: %v", err)
	}
	if m.Live() != 0 || m.Allocations() != 1 || m.Releases() != 1 {
		t.Fatalf("live=%d allocs=%d releases=%d", m.Live(), m.Allocations(), m.Releases())
	}
}

func TestMemoryRejectsBadRequests(t *testing.T) {
	m := NewMemory(MemoryConfig{})
	if _, err := m.Allocate(0, 64, 0); !errors.Is(err, hal.ErrInvalidArgument) {
		t.Fatalf("zero size: %v", err)
	}
	if _, err := m.Allocate(64, 3*pageSize, 0); !errors.Is(err, hal.ErrInvalidArgument) {
		t.Fatalf("odd alignment: %v", err)
	}
	if _, err := m.Lock(99); !errors.Is(err, hal.ErrInvalidArgument) {
		t.Fatalf("unknown handle: %v", err)
	}
}

// ============================================================================
// DEVICE
// ============================================================================

type rig struct {
	regs *Registers
	mem  *Memory
	r    ring.Ring
	cmd  hal.Handle
	buf  []byte
	addr uint32
}

func newRig(t *testing.T, priority bool) *rig {
	t.Helper()
	g := &rig{regs: NewRegisters(), mem: NewMemory(MemoryConfig{})}
	if err := g.r.Allocate(g.mem, hal.AllocContiguous); err != nil {
		t.Fatalf("ring Allocate: %v", err)
	}
	if err := g.r.Program(g.regs, 1, priority, true); err != nil {
		t.Fatalf("Program: %v", err)
	}
	h, err := g.mem.Allocate(pageSize, 64, 0)
	if err != nil {
		t.Fatalf("cmd Allocate: %v", err)
	}
	g.cmd = h
	g.buf, _ = g.mem.LockHost(h)
	gpu, _ := g.mem.Lock(h)
	g.addr = uint32(gpu)
	return g
}

func (g *rig) submit(off, n uint32) {
	g.r.Stage(g.addr+off, g.addr+off+n)
	g.r.Publish(g.regs)
}

func TestDeviceStepDrains(t *testing.T) {
	for _, pri := range []bool{false, true} {
		g := newRig(t, pri)
		var got []Descriptor
		d := NewDevice(g.regs, g.mem, 2, func(desc Descriptor, _ []byte) {
			got = append(got, desc)
		}, nil)

		g.submit(8, 8)
		g.submit(16, 8)
		if v := g.regs.Peek(constants.RegPipeIdle); v != constants.PipeIdleAll {
			t.Fatalf("idle before Step = %#x", v)
		}
		if n := d.Step(); n != 2 {
			t.Fatalf("Step = %d, want 2", n)
		}
		if len(got) != 2 || got[0].Channel != 1 || got[0].Priority != pri || got[1].Slot != 1 {
			t.Fatalf("descriptors %+v", got)
		}
		if got[0].Start != g.addr+8 || got[0].End != g.addr+16 {
			t.Fatalf("descriptor %+v", got[0])
		}
		bank := ring.BankFor(pri)
		if rp := g.regs.Peek(bank.ReadPtr(1)); rp != 2 {
			t.Fatalf("read ptr = %d", rp)
		}
		if d.Fetched() != 2 || d.Faults() != 0 {
			t.Fatalf("fetched=%d faults=%d", d.Fetched(), d.Faults())
		}
		if v := g.regs.Peek(constants.RegPipeIdle); v != constants.PipeIdleAll {
			t.Fatalf("idle after drain = %#x", v)
		}
		if d.Step() != 0 {
			t.Fatal("second Step consumed")
		}
	}
}

func TestDevicePayload(t *testing.T) {
	g := newRig(t, false)
	binary.LittleEndian.PutUint32(g.buf[64:], 0x18000000)
	var word uint32
	d := NewDevice(g.regs, g.mem, 2, func(_ Descriptor, cmds []byte) {
		word = binary.LittleEndian.Uint32(cmds)
	}, nil)
	g.submit(64, 8)
	d.Step()
	if word != 0x18000000 {
		t.Fatalf("payload word = %#x", word)
	}
}

func TestDeviceFaultOnUnresolved(t *testing.T) {
	g := newRig(t, false)
	var cmdsNil bool
	d := NewDevice(g.regs, g.mem, 2, func(_ Descriptor, cmds []byte) { cmdsNil = cmds == nil }, nil)
	g.r.Stage(0x10, 0x18)
	g.r.Publish(g.regs)
	if d.Step() != 1 || d.Faults() != 1 || !cmdsNil {
		t.Fatalf("faults=%d cmdsNil=%v", d.Faults(), cmdsNil)
	}
}

func TestDeviceWrapsWithRing(t *testing.T) {
	g := newRig(t, false)
	d := NewDevice(g.regs, g.mem, 2, nil, nil)
	total := 0
	for i := 0; i < 3*constants.RingDepth+7; i++ {
		g.submit(0, 8)
		if i%100 == 99 {
			total += d.Step()
		}
	}
	total += d.Step()
	if total != 3*constants.RingDepth+7 {
		t.Fatalf("consumed %d", total)
	}
	if rp := g.regs.Peek(ring.Standard.ReadPtr(1)); rp != g.r.WriteIndex() {
		t.Fatalf("read ptr %d != write index %d", rp, g.r.WriteIndex())
	}
}

func TestDeviceBackgroundWorker(t *testing.T) {
	g := newRig(t, false)
	var seen atomic.Uint32
	flags := control.New(10 * time.Millisecond)
	d := NewDevice(g.regs, g.mem, 2, func(Descriptor, []byte) { seen.Add(1) }, flags)
	d.Start(-1)

	for i := 0; i < 100; i++ {
		for g.r.IsFull() {
			g.r.RefreshReadIndex(g.regs)
		}
		g.submit(0, 8)
		flags.SignalActivity()
	}

	deadline := time.Now().Add(2 * time.Second)
	for seen.Load() < 100 {
		if time.Now().After(deadline) {
			t.Fatalf("worker consumed %d of 100", seen.Load())
		}
		time.Sleep(time.Millisecond)
	}
	d.Stop()
	flags.ShutdownWG.Wait()
	if !flags.Stopped() {
		t.Fatal("flags not stopped")
	}
}

func TestDeviceStopWithoutStart(t *testing.T) {
	d := NewDevice(NewRegisters(), NewMemory(MemoryConfig{}), 1, nil, nil)
	d.Stop()
	if !d.Flags().Stopped() {
		t.Fatal("Stop did not set the stop flag")
	}
}

func TestDeviceStartOnce(t *testing.T) {
	g := newRig(t, false)
	flags := control.New(0)
	d := NewDevice(g.regs, g.mem, 2, nil, flags)
	if !d.Start(-1) {
		t.Fatal("first Start reported false")
	}
	if d.Start(-1) {
		t.Fatal("second Start launched another worker")
	}

	g.submit(0, 8)
	deadline := time.Now().Add(2 * time.Second)
	for d.Fetched() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("worker never consumed the descriptor")
		}
		time.Sleep(time.Millisecond)
	}
	d.Stop()
	flags.ShutdownWG.Wait()
	if d.Fetched() != 1 {
		t.Fatalf("fetched %d, want 1", d.Fetched())
	}
	if d.Start(-1) {
		t.Fatal("Start after Stop launched a worker")
	}
}
