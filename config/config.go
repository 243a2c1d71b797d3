// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: config.go — device and workload configuration for the mcfe binary
//
// Purpose:
//   - Decodes the JSON device description (channel bindings, address mode,
//     memory windows, back-off) with sonnet.
//   - Fills defaults from package constants and validates ranges before any
//     device memory is allocated.
//
// Notes:
//   - Addresses are hex strings ("0x01000000"), parsed with utils.ParseHexU64.
//   - Load reads the whole file once; configuration is cold-path only.
// ─────────────────────────────────────────────────────────────────────────────

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sugawarayuuta/sonnet"

	"mcfe/constants"
	"mcfe/frontend"
	"mcfe/hal"
	"mcfe/utils"
)

// Device is the decoded configuration file.
type Device struct {
	Channels        []string `json:"channels"`
	Translation     bool     `json:"translation"`
	Cacheable       bool     `json:"cacheable"`
	FullDelayMs     uint32   `json:"fullDelayMs"`
	Statistics      bool     `json:"statistics"`
	EventQueueCount uint32   `json:"eventQueueCount"`
	PhysicalBase    string   `json:"physicalBase"`
	GPUBase         string   `json:"gpuBase"`
	MemoryLimit     int      `json:"memoryLimit"`
	DumpPath        string   `json:"dumpPath"`
	ConsumerCore    int      `json:"consumerCore"`
	Submissions     int      `json:"submissions"`
}

// Defaults used when a field is absent.
const (
	DefaultPhysicalBase = "0x01000000"
	DefaultGPUBase      = "0x80000000"
	DefaultMemoryLimit  = 64 << 20
	DefaultDumpPath     = "mcfe_dump.db"
	DefaultSubmissions  = 2048
)

// Default returns a four-channel device with translation on.
func Default() Device {
	return Device{
		Channels:        []string{"system", "shader", "nn", "tp"},
		Translation:     true,
		FullDelayMs:     constants.FullRingDelay,
		Statistics:      true,
		EventQueueCount: constants.DefaultEventQueueCount,
		PhysicalBase:    DefaultPhysicalBase,
		GPUBase:         DefaultGPUBase,
		MemoryLimit:     DefaultMemoryLimit,
		DumpPath:        DefaultDumpPath,
		ConsumerCore:    -1,
		Submissions:     DefaultSubmissions,
	}
}

// Parse decodes data over Default() and validates the result.
func Parse(data []byte) (Device, error) {
	d := Default()
	d.Channels = nil
	if err := sonnet.Unmarshal(data, &d); err != nil {
		return Device{}, fmt.Errorf("config: decode: %w", err)
	}
	if d.Channels == nil {
		d.Channels = Default().Channels
	}
	if err := d.Validate(); err != nil {
		return Device{}, err
	}
	return d, nil
}

// Load reads and parses path.
func Load(path string) (Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Device{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Validate checks every field against the hardware limits.
func (d Device) Validate() error {
	if _, err := d.Bindings(); err != nil {
		return err
	}
	if d.FullDelayMs == 0 {
		return invalid("fullDelayMs must be positive")
	}
	if d.EventQueueCount == 0 || d.EventQueueCount > constants.MaxEventID {
		return invalid("eventQueueCount " + utils.Itoa(int(d.EventQueueCount)) + " outside 1.." + utils.Itoa(constants.MaxEventID))
	}
	for _, a := range [2]struct{ name, v string }{{"physicalBase", d.PhysicalBase}, {"gpuBase", d.GPUBase}} {
		if _, err := parseAddress(a.v); err != nil {
			return invalid(a.name + ": " + err.Error())
		}
	}
	if d.MemoryLimit < constants.RingBytes {
		return invalid("memoryLimit below one ring")
	}
	if windowsOverlap(d.Physical(), d.GPU(), d.MemoryLimit) {
		return invalid("physicalBase and gpuBase windows overlap in the low 32 bits")
	}
	if d.Submissions < 0 {
		return invalid("submissions must not be negative")
	}
	return nil
}

// Bindings maps the channel names.
func (d Device) Bindings() ([]frontend.Binding, error) {
	if len(d.Channels) == 0 || len(d.Channels) > constants.MaxChannels {
		return nil, invalid("channel count " + utils.Itoa(len(d.Channels)) + " outside 1.." + utils.Itoa(constants.MaxChannels))
	}
	out := make([]frontend.Binding, len(d.Channels))
	for i, name := range d.Channels {
		b, err := frontend.ParseBinding(name)
		if err != nil {
			return nil, fmt.Errorf("config: channel %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// Physical returns the parsed physical window base.
func (d Device) Physical() uint64 {
	v, _ := parseAddress(d.PhysicalBase)
	return v
}

// GPU returns the parsed translated window base.
func (d Device) GPU() uint64 {
	v, _ := parseAddress(d.GPUBase)
	return v
}

// Options builds the controller options for this device.
func (d Device) Options() (frontend.Options, error) {
	b, err := d.Bindings()
	if err != nil {
		return frontend.Options{}, err
	}
	return frontend.Options{
		Bindings:        b,
		Cacheable:       d.Cacheable,
		FullDelay:       d.FullDelayMs,
		Statistics:      d.Statistics,
		EventQueueCount: d.EventQueueCount,
	}, nil
}

func parseAddress(s string) (uint64, error) {
	b := []byte(strings.TrimSpace(s))
	if !utils.IsHex(b) {
		return 0, fmt.Errorf("bad hex address %q", s)
	}
	return utils.ParseHexU64(b), nil
}

// windowsOverlap reports whether [p, p+limit) and [g, g+limit) collide once
// both are truncated to the 32-bit addresses the device decodes.
func windowsOverlap(p, g uint64, limit int) bool {
	diff := uint64(uint32(g) - uint32(p))
	l := uint64(limit)
	return diff < l || 1<<32-diff < l
}

func invalid(msg string) error {
	return fmt.Errorf("%w: config: %s", hal.ErrInvalidArgument, msg)
}
