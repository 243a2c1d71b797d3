package ring

import "mcfe/constants"

// Bank is one of the two per-channel register banks. The priority bank
// sits 0x400 above the standard bank.
type Bank struct {
	base, depth, write, read uint32
}

var (
	Standard = Bank{
		base:  constants.RegStdRingBase,
		depth: constants.RegStdDepthExp,
		write: constants.RegStdWritePtr,
		read:  constants.RegStdReadPtr,
	}
	Priority = Bank{
		base:  constants.RegPriRingBase,
		depth: constants.RegPriDepthExp,
		write: constants.RegPriWritePtr,
		read:  constants.RegPriReadPtr,
	}
)

// BankFor selects the bank for a priority flag.
//
//go:nosplit
//go:inline
func BankFor(priority bool) Bank {
	if priority {
		return Priority
	}
	return Standard
}

func (b Bank) RingBase(ch uint32) uint32 { return b.base + ch<<constants.RegChannelShift }
func (b Bank) DepthExp(ch uint32) uint32 { return b.depth + ch<<constants.RegChannelShift }
func (b Bank) WritePtr(ch uint32) uint32 { return b.write + ch<<constants.RegChannelShift }
func (b Bank) ReadPtr(ch uint32) uint32 { return b.read + ch<<constants.RegChannelShift }

// Name is "Pri" or "Std", as used in diagnostics.
func (b Bank) Name() string {
	if b == Priority {
		return "Pri"
	}
	return "Std"
}
