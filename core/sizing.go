package core

// AutoThreads as a pool bound means "use hardware concurrency".
const AutoThreads = -1

// PoolSizing bounds a worker pool. Either bound may be AutoThreads.
type PoolSizing struct {
	Min int
	Max int
}

// ResolvePoolSize clamps hardware concurrency between the configured minimum
// and the lesser of the configured maximum and hardware concurrency. The
// minimum wins over the maximum, and the result is at least one.
func ResolvePoolSize(s PoolSizing, hardware int) int {
	if hardware < 1 {
		hardware = 1
	}
	resolve := func(v int) int {
		if v == AutoThreads {
			return hardware
		}
		return v
	}
	lo, hi := resolve(s.Min), resolve(s.Max)

	n := min(hardware, hi)
	if n < lo {
		n = lo
	}
	if n < 1 {
		n = 1
	}
	return n
}
