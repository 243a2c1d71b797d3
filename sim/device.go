// ════════════════════════════════════════════════════════════════════════════════════════════════
// SIMULATED FRONT-END FETCH ENGINE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Descriptor consumer for the simulated accelerator
//
// Description:
//   Plays the hardware side of every programmed ring: compares the write pointer the host
//   published against its own read pointer, fetches each pending descriptor from ring memory,
//   hands the referenced command buffer to a Handler and advances the read pointer.
//
// Adaptive Behavior:
//   - Hot mode: continuous polling while the producer is active or work arrived recently
//   - Cool mode: scheduler yield after spinBudget empty passes, short sleep once cold
//   - Pipeline-idle register tracks whether any ring still holds work
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package sim

import (
	"encoding/binary"
	"runtime"
	"sync/atomic"
	"time"

	"mcfe/constants"
	"mcfe/control"
	"mcfe/debug"
	"mcfe/ring"
	"mcfe/utils"
)

const (
	// hotWindow keeps the worker spinning after the last fetched descriptor.
	hotWindow = 50 * time.Millisecond

	// spinBudget is the number of empty passes between yields.
	spinBudget = 224

	// coldSleep is the pause between passes once the worker went cold.
	coldSleep = 200 * time.Microsecond

	// pipeBusy is the idle-register value while any ring holds work.
	pipeBusy = constants.PipeIdleAll &^ 1
)

// Descriptor is one fetched ring entry.
type Descriptor struct {
	Channel  uint32
	Priority bool
	Slot     uint32
	Start    uint32
	End      uint32
}

// Handler receives every fetched descriptor together with the host bytes of
// the command buffer it references. cmds is nil when the range does not
// resolve to live device memory.
type Handler func(d Descriptor, cmds []byte)

// Device is the simulated consumer of all channel rings.
type Device struct {
	regs     *Registers
	mem      *Memory
	channels uint32
	handler  Handler
	flags    *control.Flags

	fetched atomic.Uint64
	faults  atomic.Uint64

	started atomic.Bool
	done    chan struct{}
}

// NewDevice returns a consumer over the first channels channels. A nil
// handler discards descriptors; nil flags get a private control.Flags.
func NewDevice(regs *Registers, mem *Memory, channels uint32, h Handler, flags *control.Flags) *Device {
	if channels > constants.MaxChannels {
		channels = constants.MaxChannels
	}
	if flags == nil {
		flags = control.New(0)
	}
	return &Device{regs: regs, mem: mem, channels: channels, handler: h, flags: flags}
}

// Flags returns the control flags the worker polls.
func (d *Device) Flags() *control.Flags { return d.flags }

// Fetched is the number of descriptors consumed.
func (d *Device) Fetched() uint64 { return d.fetched.Load() }

// Faults is the number of descriptors whose ring slot or command range did
// not resolve.
func (d *Device) Faults() uint64 { return d.faults.Load() }

// Step drains every programmed ring once and returns the number of
// descriptors consumed. It may run concurrently with host submissions but
// not with another Step.
func (d *Device) Step() int {
	n := 0
	for ch := uint32(0); ch < d.channels; ch++ {
		n += d.drain(ch, ring.Standard, false)
		n += d.drain(ch, ring.Priority, true)
	}
	if d.pending() {
		d.regs.Poke(constants.RegPipeIdle, pipeBusy)
	} else {
		d.regs.Poke(constants.RegPipeIdle, constants.PipeIdleAll)
	}
	return n
}

func (d *Device) drain(ch uint32, b ring.Bank, priority bool) int {
	exp := d.regs.Peek(b.DepthExp(ch))
	if exp == 0 || exp > 16 {
		return 0
	}
	mask := uint32(1)<<exp - 1
	base := d.regs.Peek(b.RingBase(ch))
	rd := d.regs.Peek(b.ReadPtr(ch)) & mask
	wr := d.regs.Peek(b.WritePtr(ch)) & mask

	n := 0
	for rd != wr {
		d.regs.Poke(constants.RegPipeIdle, pipeBusy)
		desc := Descriptor{Channel: ch, Priority: priority, Slot: rd}
		raw, ok := d.mem.Resolve(base+rd*constants.DescriptorSize, constants.DescriptorSize)
		var cmds []byte
		if ok {
			desc.Start = binary.LittleEndian.Uint32(raw[0:4])
			desc.End = binary.LittleEndian.Uint32(raw[4:8])
			if desc.End >= desc.Start {
				cmds, ok = d.mem.Resolve(desc.Start, int(desc.End-desc.Start))
			} else {
				ok = false
			}
		}
		if !ok {
			d.faults.Add(1)
			debug.DropMessage("SIM", "unresolved descriptor "+b.Name()+"-"+utils.Itoa(int(ch))+
				" slot "+utils.Itoa(int(rd))+" start "+utils.Hex32(desc.Start))
		}
		if d.handler != nil {
			d.handler(desc, cmds)
		}
		rd = (rd + 1) & mask
		d.regs.Poke(b.ReadPtr(ch), rd)
		d.fetched.Add(1)
		n++
	}
	return n
}

func (d *Device) pending() bool {
	for ch := uint32(0); ch < d.channels; ch++ {
		for _, b := range [2]ring.Bank{ring.Standard, ring.Priority} {
			exp := d.regs.Peek(b.DepthExp(ch))
			if exp == 0 || exp > 16 {
				continue
			}
			mask := uint32(1)<<exp - 1
			if d.regs.Peek(b.ReadPtr(ch))&mask != d.regs.Peek(b.WritePtr(ch))&mask {
				return true
			}
		}
	}
	return false
}

// Start launches the background worker, pinned to core when core >= 0.
// The worker runs until Stop or Flags().Shutdown(). A device runs at most
// one worker over its lifetime; later calls report false and do nothing.
func (d *Device) Start(core int) bool {
	if !d.started.CompareAndSwap(false, true) {
		debug.DropMessage("SIM", "consumer already started")
		return false
	}
	d.done = make(chan struct{})
	d.flags.ShutdownWG.Add(1)
	go func() {
		runtime.LockOSThread()
		setAffinity(core)
		debug.DropMessage("SIM", "consumer started on core "+utils.Itoa(core))
		defer func() {
			debug.DropMessage("SIM", "consumer stopped after "+utils.Itoa(int(d.fetched.Load()))+" descriptors")
			runtime.UnlockOSThread()
			d.flags.ShutdownWG.Done()
			close(d.done)
		}()

		var miss int
		lastHit := time.Now()
		for {
			if d.flags.Stopped() {
				return
			}
			if d.Step() > 0 {
				miss = 0
				lastHit = time.Now()
				continue
			}
			d.flags.PollCooldown()
			if d.flags.Hot() || time.Since(lastHit) <= hotWindow {
				if miss++; miss >= spinBudget {
					miss = 0
					runtime.Gosched()
				}
				continue
			}
			time.Sleep(coldSleep)
		}
	}()
	return true
}

// Stop requests shutdown and waits for the worker to exit.
func (d *Device) Stop() {
	d.flags.Shutdown()
	if d.done != nil {
		<-d.done
	}
}
