// ════════════════════════════════════════════════════════════════════════════════════════════════
// MCFE Demo Driver - Main Entry Point
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Workload orchestration against the simulated front-end
//
// Description:
//   Builds a simulated accelerator, programs every configured channel and streams fixed
//   micro-command programs through the standard and priority rings while a pinned consumer
//   drains them. Every descriptor lands in the dump store.
//
// Architecture:
//   - Phase 0: Configuration, simulated device, controller, dump store
//   - Phase 1: Ring allocation and programming
//   - Phase 2: Round-robin submission over non-system channels
//   - Phase 3: Drain, ring snapshots, shutdown
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcfe/cmdenc"
	"mcfe/config"
	"mcfe/constants"
	"mcfe/control"
	"mcfe/debug"
	"mcfe/dump"
	"mcfe/frontend"
	"mcfe/hal"
	"mcfe/sim"
	"mcfe/utils"
)

// programBytes is one event + semaphore send + semaphore wait + nop program.
const programBytes = 4 * constants.CommandSize

// maxPrograms bounds the pre-encoded program pool; submissions cycle through it.
const maxPrograms = 1024

// drainTimeout bounds the wait for each channel to go idle.
const drainTimeout = 5 * time.Second

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// MAIN ORCHESTRATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func main() {
	// PHASE 0: configuration and collaborators
	cfg := config.Default()
	if len(os.Args) > 1 {
		var err error
		if cfg, err = config.Load(os.Args[1]); err != nil {
			fatal("CONFIG", err)
		}
	}
	debug.DropMessage("INIT", utils.Itoa(len(cfg.Channels))+" channels, translation "+onOff(cfg.Translation))

	regs := sim.NewRegisters()
	mem := sim.NewMemory(sim.MemoryConfig{
		PhysicalBase: cfg.Physical(),
		GPUBase:      cfg.GPU(),
		Limit:        cfg.MemoryLimit,
	})
	flags := control.New(0)

	opts, err := cfg.Options()
	if err != nil {
		fatal("CONFIG", err)
	}
	opts.Doorbell = flags.SignalActivity

	var rec *dump.Recorder
	if cfg.DumpPath != "" {
		if rec, err = dump.Open(cfg.DumpPath); err != nil {
			fatal("DUMP", err)
		}
		defer rec.Close()
		opts.Tracer = rec
	}

	ctl, err := frontend.New(regs, mem, hal.Milliseconds, opts)
	if err != nil {
		fatal("MCFE", err)
	}
	defer ctl.Destroy()

	dev := sim.NewDevice(regs, mem, uint32(ctl.ChannelCount()), consume(ctl.PendingEvents()), flags)
	dev.Start(cfg.ConsumerCore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel, flags)

	// PHASE 1: ring allocation and programming
	if err := ctl.Initialize(cfg.Translation); err != nil {
		dev.Stop()
		fatal("MCFE", err)
	}
	debug.DropMessage("READY", "front-end initialized")

	// PHASE 2: submission
	pool, err := encodePrograms(ctl, mem, cfg.Submissions)
	if err != nil {
		dev.Stop()
		fatal("PROGRAMS", err)
	}
	lanes := submissionLanes(ctl)
	if len(lanes) == 0 {
		lanes = []uint32{0}
	}
	start := time.Now()
	submitted := 0
	for i := 0; i < cfg.Submissions; i++ {
		ch := lanes[i%len(lanes)]
		priority := ctl.Channel(int(ch)).Binding().HasPriority() && (i/len(lanes))%2 == 1
		addr := pool.base + uint64(i%pool.count)*programBytes
		if err := ctl.ExecuteContext(ctx, ch, priority, addr, programBytes); err != nil {
			debug.DropError("EXECUTE", err)
			break
		}
		submitted++
	}
	debug.DropMessage("SUBMIT", utils.Itoa(submitted)+" command buffers in "+time.Since(start).String())

	// PHASE 3: drain, snapshot, shutdown
	for ch := 0; ch < ctl.ChannelCount(); ch++ {
		c := ctl.Channel(ch)
		if c.Binding() == frontend.BindingNone {
			continue
		}
		wctx, wcancel := context.WithTimeout(ctx, drainTimeout)
		if err := ctl.WaitIdle(wctx, uint32(ch), 1); err != nil {
			debug.DropError("DRAIN", err)
		}
		wcancel()
		if rec != nil {
			snapshotChannel(rec, ctl, uint32(ch))
		}
	}

	dev.Stop()
	stats := ctl.Stats()
	debug.DropMessage("STATS", "submitted "+utils.Itoa(int(stats.Submitted))+
		", fetched "+utils.Itoa(int(dev.Fetched()))+
		", full waits "+utils.Itoa(int(stats.FullWaits))+
		", faults "+utils.Itoa(int(dev.Faults())))
	if p := ctl.PendingEvents(); p != nil {
		debug.DropMessage("STATS", "pending events "+utils.Hex32(p.Load()))
	}
	if rec != nil {
		if err := rec.Err(); err != nil {
			debug.DropError("DUMP", err)
		}
		debug.DropMessage("DUMP", utils.Itoa(rec.Traced())+" descriptors traced to "+cfg.DumpPath)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WORKLOAD
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type programPool struct {
	base  uint64 // device address of program 0
	count int
}

// encodePrograms fills one device node with fixed programs. Programs are
// never rewritten once submission starts.
func encodePrograms(ctl *frontend.Controller, mem *sim.Memory, submissions int) (programPool, error) {
	n := submissions
	if n > maxPrograms {
		n = maxPrograms
	}
	if n < 1 {
		n = 1
	}
	h, err := mem.Allocate(n*programBytes, constants.RingAlignment, hal.AllocContiguous)
	if err != nil {
		return programPool{}, err
	}
	buf, err := mem.LockHost(h)
	if err != nil {
		return programPool{}, err
	}
	var base uint64
	if ctl.TranslationActive() {
		base, err = mem.Lock(h)
	} else {
		base, err = mem.PhysicalAddress(h)
	}
	if err != nil {
		return programPool{}, err
	}

	enc := ctl.Encoder()
	for i := 0; i < n; i++ {
		p := buf[i*programBytes:]
		src := cmdenc.FromCommand
		if i&1 == 1 {
			src = cmdenc.FromPixel
		}
		off := 0
		for _, step := range []func([]byte) (int, error){
			func(b []byte) (int, error) { return enc.Event(b, uint8(i%constants.MaxEventID), src) },
			func(b []byte) (int, error) { return enc.SemaphoreSend(b, uint32(i&constants.MaxSemaphoreID)) },
			func(b []byte) (int, error) { return enc.SemaphoreWait(b, uint32(i&constants.MaxSemaphoreID)) },
			enc.Nop,
		} {
			w, err := step(p[off:])
			if err != nil {
				return programPool{}, err
			}
			off += w
		}
	}
	return programPool{base: base, count: n}, nil
}

// submissionLanes lists the non-system constructed channels.
func submissionLanes(ctl *frontend.Controller) []uint32 {
	var lanes []uint32
	for i := 0; i < ctl.ChannelCount(); i++ {
		b := ctl.Channel(i).Binding()
		if b != frontend.BindingNone && b != frontend.BindingSystem {
			lanes = append(lanes, uint32(i))
		}
	}
	return lanes
}

// consume returns the device handler: decode each program and retire its
// event from the statistics mask.
func consume(pending *cmdenc.PendingEvents) sim.Handler {
	return func(_ sim.Descriptor, cmds []byte) {
		all, err := cmdenc.DecodeAll(cmds)
		if err != nil {
			debug.DropError("DEVICE decode", err)
			return
		}
		for _, c := range all {
			if c.Kind == cmdenc.KindEvent && pending != nil {
				pending.Clear(uint8(c.ID))
			}
		}
	}
}

func snapshotChannel(rec *dump.Recorder, ctl *frontend.Controller, ch uint32) {
	c := ctl.Channel(int(ch))
	for _, priority := range []bool{false, true} {
		if priority && !c.Binding().HasPriority() {
			continue
		}
		img, err := ctl.RingImage(ch, priority)
		if err != nil {
			debug.DropError("SNAPSHOT", err)
			continue
		}
		r := c.Standard()
		if priority {
			r = c.Priority()
		}
		if err := rec.Snapshot(ch, priority, r.WriteIndex(), img); err != nil {
			debug.DropError("SNAPSHOT", err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SYSTEM LIFECYCLE MANAGEMENT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// setupSignalHandling cancels submission and stops the consumer on
// SIGINT/SIGTERM.
func setupSignalHandling(cancel context.CancelFunc, flags *control.Flags) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		debug.DropMessage("SIGNAL", "Received interrupt, shutting down...")
		cancel()
		flags.Shutdown()
		flags.ShutdownWG.Wait()
		debug.DropMessage("SIGNAL", "Consumer stopped")
	}()
}

func fatal(prefix string, err error) {
	debug.DropError(prefix, err)
	os.Exit(1)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
