package cmdenc

import "sync/atomic"

// PendingEvents is the statistics bitmask of events encoded but not yet
// observed as signalled. Owned by the front-end controller; only present
// when statistics are enabled.
type PendingEvents struct {
	mask atomic.Uint32
}

// Mark sets the bit for id.
func (p *PendingEvents) Mark(id uint8) {
	p.mask.Or(1 << (id & 31))
}

// Clear drops the bit for id, typically when its interrupt is handled.
func (p *PendingEvents) Clear(id uint8) {
	p.mask.And(^uint32(1 << (id & 31)))
}

// Load returns the current mask.
func (p *PendingEvents) Load() uint32 {
	return p.mask.Load()
}

// IsPending reports whether id is marked.
func (p *PendingEvents) IsPending(id uint8) bool {
	return p.mask.Load()&(1<<(id&31)) != 0
}
