// control.go — Stop/hot coordination flags for descriptor consumer workers
// ============================================================================
// CONSUMER CONTROL
// ============================================================================
//
// A Flags value coordinates one or more consumer workers (the simulated
// front-end fetch engine) with the producer side:
//   • hot  — producer published work recently; consumer stays in hot-spin
//   • stop — shutdown requested; consumer drains nothing further and exits
//
// Threading model:
//   • Producers call SignalActivity() after every write-pointer publish
//   • Consumers poll Hot()/Stopped() and call PollCooldown() while idle
//   • Shutdown() is broadcast; ShutdownWG tracks workers still running

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCooldown is the idle period after which hot drops back to 0.
const DefaultCooldown = time.Second

// Flags is the shared hot/stop state of one device.
type Flags struct {
	hot  uint32 // 1 = recent producer activity
	stop uint32 // 1 = shutdown requested

	lastHot    int64 // unix nanos of the last SignalActivity
	cooldownNs int64

	// ShutdownWG counts consumer workers that have not yet exited.
	ShutdownWG sync.WaitGroup
}

// New returns flags with the given cooldown; a non-positive cooldown selects
// DefaultCooldown.
func New(cooldown time.Duration) *Flags {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Flags{cooldownNs: int64(cooldown)}
}

// SignalActivity marks the device hot and records the activity time.
//
//go:nosplit
//go:inline
func (f *Flags) SignalActivity() {
	atomic.StoreInt64(&f.lastHot, time.Now().UnixNano())
	atomic.StoreUint32(&f.hot, 1)
}

// PollCooldown clears hot once the cooldown has elapsed since the last
// activity. Called from consumer idle loops.
//
//go:nosplit
//go:inline
func (f *Flags) PollCooldown() {
	if atomic.LoadUint32(&f.hot) == 1 &&
		time.Now().UnixNano()-atomic.LoadInt64(&f.lastHot) > f.cooldownNs {
		atomic.StoreUint32(&f.hot, 0)
	}
}

// Shutdown requests every consumer to exit.
func (f *Flags) Shutdown() {
	atomic.StoreUint32(&f.stop, 1)
}

// Hot reports whether producer activity is recent.
//
//go:nosplit
//go:inline
func (f *Flags) Hot() bool {
	return atomic.LoadUint32(&f.hot) != 0
}

// Stopped reports whether Shutdown has been called.
//
//go:nosplit
//go:inline
func (f *Flags) Stopped() bool {
	return atomic.LoadUint32(&f.stop) != 0
}
