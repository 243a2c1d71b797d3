package frontend

import (
	"context"
	"fmt"

	"mcfe/constants"
	"mcfe/hal"
)

// IsHardwareIdle is a conservative poll of one channel: the pipeline must
// report idle (the don't-care bit aside) and every ring of the channel must
// have its hardware read pointer equal to the local write index. A busy
// pipeline answers false without touching any channel register.
func (c *Controller) IsHardwareIdle(channelID uint32) (bool, error) {
	ch, std, err := c.target(channelID, false)
	if err != nil {
		return false, err
	}

	idle := c.regs.Read32(constants.RegPipeIdle)
	if idle|constants.PipeIdleDontCare != constants.PipeIdleAll {
		return false, nil
	}

	if std.HardwareReadIndex(c.regs) != std.WriteIndex() {
		return false, nil
	}
	if pri := ch.ringFor(true); pri != nil && pri.Programmed() {
		if pri.HardwareReadIndex(c.regs) != pri.WriteIndex() {
			return false, nil
		}
	}
	return true, nil
}

// WaitIdle polls IsHardwareIdle every poll delay units until the channel
// drains or ctx ends (ErrTimeout).
func (c *Controller) WaitIdle(ctx context.Context, channelID uint32, poll uint32) error {
	if poll == 0 {
		poll = 1
	}
	for {
		idle, err := c.IsHardwareIdle(channelID)
		if err != nil {
			return err
		}
		if idle {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: channel %d not idle: %w", hal.ErrTimeout, channelID, err)
		}
		c.delay.Delay(poll)
	}
}
