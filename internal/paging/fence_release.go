//go:build !kerneldebug

package paging

// degradeDebugHook is a no-op in release builds: the warning log plus
// generation bump in Fencer.degrade is the entire release-mode response.
func degradeDebugHook(f *Fencer, missing int) {}
