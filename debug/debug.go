// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — cold-path diagnostics for the front-end
//
// Purpose:
//   - Logs infrequent conditions without heap pressure: ring-full backoff,
//     >4 GB ring placement, consumer start/stop, initialization phases.
//
// Notes:
//   - Avoids fmt.Sprintf; callers pre-format numbers with utils.Itoa/Hex32.
//   - Output goes straight to stderr through utils.PrintWarning.
//
// ⚠️ Never invoke in the descriptor publish path — use only for diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import "mcfe/utils"

// DropError logs "<prefix>: <err>" or just "<prefix>" when err is nil.
//
//go:nosplit
//go:inline
func DropError(prefix string, err error) {
	if err != nil {
		utils.PrintWarning(prefix + ": " + err.Error() + "\n")
		return
	}
	utils.PrintWarning(prefix + "\n")
}

// DropMessage logs "<prefix>: <message>".
//
//go:nosplit
//go:inline
func DropMessage(prefix, message string) {
	utils.PrintWarning(prefix + ": " + message + "\n")
}
