//go:build !linux

package servo

// No realtime scheduling knobs off-Linux; the worker runs at whatever
// priority the OS gives it.
func bumpSchedPriority() {}
