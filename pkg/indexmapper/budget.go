package indexmapper

// Budget is the outcome of the startup map-size probe: the per-index
// map size to open every index with, and how many indexes may safely be
// open at once given the available address space (spec.md §4.2).
type Budget struct {
	MapSizeBytes  int64
	MaxIndexCount int
}

// growthIncrement is how much a map size grows per retry when a write
// signals out-of-space (spec.md §4.2 "grows in fixed increments").
const growthIncrement = 64 << 20 // 64MiB

// maxGrowthAttempts bounds how many times a single write retries after
// growing the map size before giving up.
const maxGrowthAttempts = 10

// ProbeBudget performs a dichotomic search over candidate map sizes
// between minSize and maxSize, calling fits to test whether a given size
// is viable (the reference implementation tests by attempting to open a
// scratch index at that size; see engine.Engine.Open). It returns the
// largest size found to fit, or minSize if even that failed every probe.
func ProbeBudget(minSize, maxSize int64, wantIndexCount int, fits func(size int64) bool) Budget {
	if minSize <= 0 {
		minSize = growthIncrement
	}
	if maxSize < minSize {
		maxSize = minSize
	}

	best := minSize
	lo, hi := minSize, maxSize
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if fits(mid) {
			best = mid
			lo = mid + growthIncrement
		} else {
			hi = mid - growthIncrement
		}
	}
	return Budget{MapSizeBytes: best, MaxIndexCount: wantIndexCount}
}

// GrowMapSize returns the next map size to retry a write with after an
// out-of-space signal, bounded by attempt against maxGrowthAttempts.
func GrowMapSize(current int64, attempt int) (size int64, ok bool) {
	if attempt >= maxGrowthAttempts {
		return current, false
	}
	return current + growthIncrement, true
}
