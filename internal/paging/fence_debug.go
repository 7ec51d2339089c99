//go:build kerneldebug

package paging

// degradeDebugHook panics on a missed remote fence ack in debug builds, per
// spec.md §9's "panic-on-debug, warn-on-release" decision.
func degradeDebugHook(f *Fencer, missing int) {
	panic("paging: remote_sfence_vma timed out with missing acks in a kerneldebug build")
}
