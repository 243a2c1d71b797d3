// ════════════════════════════════════════════════════════════════════════════════════════════════
// Multi-Channel Front-End Controller
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: channel ownership, hardware programming, descriptor admission
//
// Description:
//   Owns a fixed set of channels, programs their descriptor rings onto the front-end and
//   submits command buffers to them. The controller runs no goroutines: the only concurrency
//   is the hardware consuming rings behind the read-pointer registers.
//
// Threading model:
//   - Each (channel, bank) ring has exactly one producer. Callers serialize Execute per ring.
//   - Different rings share no mutable state and never contend.
//
// Lifecycle:
//   New → Initialize (idempotent per ring) → Execute* → Destroy
//   A failed Initialize leaves already-programmed rings in place; Destroy frees them.
// ════════════════════════════════════════════════════════════════════════════════════════════════

package frontend

import (
	"fmt"
	"sync/atomic"

	"mcfe/cmdenc"
	"mcfe/constants"
	"mcfe/hal"
	"mcfe/ring"
)

// Submission describes one descriptor at the moment it is committed.
type Submission struct {
	Channel     uint32
	Priority    bool
	Slot        uint32 // ring slot the descriptor occupies
	SlotAddress uint64 // device address of that slot
	Start, End  uint32 // command buffer range
}

// Tracer receives every submission just before the write pointer is
// published. Used for descriptor dumps.
type Tracer interface {
	TraceSubmission(s Submission)
}

// Options configure a Controller.
type Options struct {
	// Bindings has one entry per channel slot; its length is the channel count.
	Bindings []Binding
	// Cacheable allocates rings from CPU-cacheable memory.
	Cacheable bool
	// FullDelay is the back-off (delay units) when a ring stays full.
	// Zero selects constants.FullRingDelay.
	FullDelay uint32
	// Statistics enables the pending-event bitmask.
	Statistics bool
	// EventQueueCount bounds the events tracked by statistics.
	// Zero selects constants.DefaultEventQueueCount; values above
	// constants.MaxEventID are rejected.
	EventQueueCount uint32
	// Tracer, when set, sees every submission.
	Tracer Tracer
	// Doorbell, when set, runs after every write-pointer publish.
	Doorbell func()
}

// Stats are cumulative controller counters.
type Stats struct {
	Submitted uint64 // descriptors published
	FullWaits uint64 // back-off delays taken on full rings
}

// Controller is the multi-channel front-end.
type Controller struct {
	regs  hal.Registers
	mem   hal.Allocator
	delay hal.Delayer

	channels    []Channel // fixed at construction
	translation bool
	initialized bool

	allocFlags hal.AllocFlags
	fullDelay  uint32
	tracer     Tracer
	doorbell   func()

	encoder *cmdenc.Encoder
	pending *cmdenc.PendingEvents

	submitted atomic.Uint64
	fullWaits atomic.Uint64
}

// New constructs the controller and its channel records. No device memory
// is touched until Initialize. A nil delay selects hal.Milliseconds.
func New(regs hal.Registers, mem hal.Allocator, delay hal.Delayer, opts Options) (*Controller, error) {
	if regs == nil || mem == nil {
		return nil, fmt.Errorf("%w: register and memory collaborators are required", hal.ErrInvalidArgument)
	}
	n := len(opts.Bindings)
	if n == 0 || n > constants.MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d (1..%d)", hal.ErrInvalidArgument, n, constants.MaxChannels)
	}
	if delay == nil {
		delay = hal.Milliseconds
	}

	c := &Controller{
		regs:      regs,
		mem:       mem,
		delay:     delay,
		channels:  make([]Channel, n),
		fullDelay: opts.FullDelay,
		tracer:    opts.Tracer,
		doorbell:  opts.Doorbell,
	}
	for i, b := range opts.Bindings {
		if b > BindingTP {
			return nil, fmt.Errorf("%w: channel %d binding %d", hal.ErrInvalidArgument, i, b)
		}
		c.channels[i].binding = b
	}
	if c.fullDelay == 0 {
		c.fullDelay = constants.FullRingDelay
	}
	if opts.Cacheable {
		c.allocFlags |= hal.AllocCacheable
	}

	queueCount := opts.EventQueueCount
	if queueCount == 0 {
		queueCount = constants.DefaultEventQueueCount
	}
	if queueCount > constants.MaxEventID {
		return nil, fmt.Errorf("%w: event queue count %d (max %d)", hal.ErrInvalidArgument, queueCount, constants.MaxEventID)
	}
	if opts.Statistics {
		c.pending = &cmdenc.PendingEvents{}
	}
	c.encoder = cmdenc.New(c.pending, queueCount)
	return c, nil
}

// Initialize allocates and programs every constructed channel, then enables
// all events. Safe to call again (e.g. after a power cycle); rings are only
// allocated once.
func (c *Controller) Initialize(translation bool) error {
	for i := range c.channels {
		ch := &c.channels[i]
		if ch.binding == BindingNone {
			continue
		}
		if err := ch.initialize(c.regs, c.mem, c.allocFlags, uint32(i), translation); err != nil {
			return fmt.Errorf("mcfe initialize: %w", err)
		}
	}

	c.regs.Write32(constants.RegEventEnable, constants.EventEnableAll)

	c.translation = translation
	c.initialized = true
	return nil
}

// Destroy releases all ring memory. The controller must not be used after.
func (c *Controller) Destroy() {
	for i := range c.channels {
		c.channels[i].release(c.mem)
	}
	c.initialized = false
}

// target validates (channelID, priority) and returns the ring.
func (c *Controller) target(channelID uint32, priority bool) (*Channel, *ring.Ring, error) {
	if channelID >= uint32(len(c.channels)) {
		return nil, nil, fmt.Errorf("%w: channel %d of %d", hal.ErrInvalidArgument, channelID, len(c.channels))
	}
	ch := &c.channels[channelID]
	if ch.binding == BindingNone {
		return nil, nil, fmt.Errorf("%w: channel %d is not constructed", hal.ErrInvalidArgument, channelID)
	}
	r := ch.ringFor(priority)
	if r == nil {
		return nil, nil, fmt.Errorf("%w: channel %d (%s) has no priority ring", hal.ErrInvalidArgument, channelID, ch.binding)
	}
	if !r.Programmed() {
		return nil, nil, fmt.Errorf("%w: channel %d %s ring is not initialized", hal.ErrInvalidArgument, channelID, ring.BankFor(priority).Name())
	}
	return ch, r, nil
}

// ───────────────────────────── Accessors ──────────────────────────────────

// ChannelCount is fixed for the controller's lifetime.
func (c *Controller) ChannelCount() int { return len(c.channels) }

// Channel returns the channel record at index, nil when out of range.
func (c *Controller) Channel(index int) *Channel {
	if index < 0 || index >= len(c.channels) {
		return nil
	}
	return &c.channels[index]
}

// TranslationActive reports the address mode recorded by Initialize.
func (c *Controller) TranslationActive() bool { return c.translation }

// Initialized reports whether Initialize has completed.
func (c *Controller) Initialized() bool { return c.initialized }

// Encoder returns the controller's micro-command encoder.
func (c *Controller) Encoder() *cmdenc.Encoder { return c.encoder }

// PendingEvents returns the statistics bitmask, nil when disabled.
func (c *Controller) PendingEvents() *cmdenc.PendingEvents { return c.pending }

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	return Stats{Submitted: c.submitted.Load(), FullWaits: c.fullWaits.Load()}
}

// RingImage copies the memory of one ring.
func (c *Controller) RingImage(channelID uint32, priority bool) ([]byte, error) {
	_, r, err := c.target(channelID, priority)
	if err != nil {
		return nil, err
	}
	return r.Image(), nil
}
