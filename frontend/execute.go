package frontend

import (
	"context"
	"fmt"

	"mcfe/debug"
	"mcfe/hal"
	"mcfe/ring"
	"mcfe/utils"
)

// Execute submits the command buffer [address, address+bytes) to the given
// channel ring. It blocks while the ring is full; see ExecuteContext for a
// bounded wait.
func (c *Controller) Execute(channelID uint32, priority bool, address uint64, bytes uint32) error {
	return c.ExecuteContext(context.Background(), channelID, priority, address, bytes)
}

// ExecuteContext is Execute with a caller deadline on the admission wait.
// When ctx ends while the ring is still full it returns ErrTimeout and the
// ring is untouched; the whole call may be retried.
//
// Admission:
//  1. cached full → re-read the hardware read pointer
//  2. still full  → diagnostic, bounded delay, go to 1
//
// Commit:
//
//	stage descriptor → clean cache → trace → publish write pointer
func (c *Controller) ExecuteContext(ctx context.Context, channelID uint32, priority bool, address uint64, bytes uint32) error {
	_, r, err := c.target(channelID, priority)
	if err != nil {
		return err
	}

	for r.IsFull() {
		// The cached read index may be stale; only a fresh read decides.
		r.RefreshReadIndex(c.regs)
		if !r.IsFull() {
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: channel %s-%d ring full: %w", hal.ErrTimeout, ring.BankFor(priority).Name(), channelID, err)
		}
		c.fullWaits.Add(1)
		debug.DropMessage("MCFE", "channel "+ring.BankFor(priority).Name()+"-"+utils.Itoa(int(channelID))+" ringBuf is full!")
		c.delay.Delay(c.fullDelay)
	}

	// Only the low 32 bits of the device address reach the descriptor.
	start := uint32(address)
	end := start + bytes

	slot := r.Stage(start, end)
	if err := r.Clean(c.mem, slot); err != nil {
		return err
	}
	if c.tracer != nil {
		c.tracer.TraceSubmission(Submission{
			Channel:     channelID,
			Priority:    priority,
			Slot:        slot,
			SlotAddress: r.SlotAddress(slot),
			Start:       start,
			End:         end,
		})
	}

	r.Publish(c.regs)
	c.submitted.Add(1)
	if c.doorbell != nil {
		c.doorbell()
	}
	return nil
}
