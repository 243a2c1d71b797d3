package frontend

import (
	"fmt"
	"strings"

	"mcfe/hal"
	"mcfe/ring"
	"mcfe/utils"
)

// Binding is the engine type a channel slot is bound to.
type Binding uint8

const (
	BindingNone   Binding = iota // slot not constructed
	BindingSystem                // system channel; no priority ring
	BindingShader
	BindingNN
	BindingTP
)

var bindingNames = [...]string{"none", "system", "shader", "nn", "tp"}

func (b Binding) String() string {
	if int(b) < len(bindingNames) {
		return bindingNames[b]
	}
	return "binding(" + utils.Itoa(int(b)) + ")"
}

// ParseBinding maps a configuration name to a Binding.
func ParseBinding(s string) (Binding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range bindingNames {
		if n == s {
			return Binding(i), nil
		}
	}
	return BindingNone, fmt.Errorf("%w: unknown channel binding %q", hal.ErrInvalidArgument, s)
}

// HasPriority reports whether channels of this binding own a priority ring.
func (b Binding) HasPriority() bool {
	return b != BindingSystem && b != BindingNone
}

// Channel is one logical execution lane: a standard ring and, except on the
// system channel, a priority ring.
type Channel struct {
	binding  Binding
	standard ring.Ring
	priority ring.Ring
}

// initialize allocates missing rings and programs them at index. The first
// error is returned as is; rings already programmed stay programmed and are
// released by Controller.Destroy.
func (c *Channel) initialize(regs hal.Registers, mem hal.Allocator, flags hal.AllocFlags, index uint32, translation bool) error {
	if !c.standard.Allocated() {
		if err := c.standard.Allocate(mem, flags); err != nil {
			return fmt.Errorf("channel %d std: %w", index, err)
		}
	}
	if c.binding.HasPriority() && !c.priority.Allocated() {
		if err := c.priority.Allocate(mem, flags); err != nil {
			return fmt.Errorf("channel %d pri: %w", index, err)
		}
	}

	if err := c.standard.Program(regs, index, false, translation); err != nil {
		return fmt.Errorf("channel %d std: %w", index, err)
	}
	if c.binding.HasPriority() {
		if err := c.priority.Program(regs, index, true, translation); err != nil {
			return fmt.Errorf("channel %d pri: %w", index, err)
		}
	}
	return nil
}

// release frees both rings.
func (c *Channel) release(mem hal.Allocator) {
	c.standard.Release(mem)
	c.priority.Release(mem)
}

// ringFor selects the ring for a priority flag; nil if the channel has none.
func (c *Channel) ringFor(priority bool) *ring.Ring {
	if !priority {
		return &c.standard
	}
	if !c.binding.HasPriority() {
		return nil
	}
	return &c.priority
}

// Binding returns the channel's binding.
func (c *Channel) Binding() Binding { return c.binding }

// Standard returns the standard-priority ring.
func (c *Channel) Standard() *ring.Ring { return &c.standard }

// Priority returns the high-priority ring, nil on the system channel.
func (c *Channel) Priority() *ring.Ring { return c.ringFor(true) }
