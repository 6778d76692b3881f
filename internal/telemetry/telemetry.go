// Package telemetry holds the process-wide switch that clients can use to
// opt out of telemetry.
package telemetry

import "sync/atomic"

// Flag is a telemetry switch. It starts enabled and can only be turned off.
type Flag struct {
	disabled atomic.Bool
}

// Global is the switch shared by the whole process
var Global = &Flag{}

// Enabled reports whether telemetry may be recorded
func (f *Flag) Enabled() bool {
	return !f.disabled.Load()
}

// Disable turns telemetry off. It is idempotent.
func (f *Flag) Disable() {
	f.disabled.Store(true)
}
