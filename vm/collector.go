package vm

import (
	"fmt"
	"iter"
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Collector: mark-and-sweep over a Heap, driven by allocation pressure
// ---------------------------------------------------------------------------

// InitialGCThreshold is the live-object count that triggers the first
// collection. It is small so the collector runs before the heap grows.
const InitialGCThreshold = 32

// DefaultMinThreshold is the floor applied when the threshold is recomputed.
// Without it a cycle that empties the heap would set the threshold to zero
// and force a collection on every following allocation.
const DefaultMinThreshold = 1

var gcLog = commonlog.GetLogger("marksweep.gc")

// CycleStats holds statistics from a single collection cycle.
type CycleStats struct {
	Cycle      uint64
	LiveBefore int
	Marked     int
	Reclaimed  int
	LiveAfter  int
	Threshold  int // threshold in force after the cycle
	Duration   time.Duration
	Timestamp  time.Time
}

// Collector traces the root set and reclaims everything it cannot reach.
//
// A Collector needs exclusive access to its heap and roots for the whole of
// Collect. It is not reentrant: starting a collection while another is
// marking or sweeping panics with ErrReentrantCollection.
type Collector struct {
	heap         Heap
	threshold    int
	minThreshold int

	// gray holds marked pairs whose children have not been scanned yet.
	// Reused across cycles.
	gray []*Object

	collecting bool
	cycles     uint64
	last       *CycleStats
	observers  []func(CycleStats)
}

// NewCollector creates a collector for heap. Non-positive thresholds fall
// back to InitialGCThreshold and DefaultMinThreshold.
func NewCollector(heap Heap, initialThreshold, minThreshold int) *Collector {
	if minThreshold <= 0 {
		minThreshold = DefaultMinThreshold
	}
	if initialThreshold <= 0 {
		initialThreshold = InitialGCThreshold
	}
	return &Collector{
		heap:         heap,
		threshold:    max(initialThreshold, minThreshold),
		minThreshold: minThreshold,
	}
}

// Threshold returns the live count at which the next allocation collects.
func (c *Collector) Threshold() int {
	return c.threshold
}

// MinThreshold returns the threshold floor.
func (c *Collector) MinThreshold() int {
	return c.minThreshold
}

// Cycles returns the number of completed collections.
func (c *Collector) Cycles() uint64 {
	return c.cycles
}

// LastCycle returns statistics from the most recent collection, or nil if
// none has run.
func (c *Collector) LastCycle() *CycleStats {
	return c.last
}

// AddObserver registers fn to be called after every completed cycle.
// Observers run once the cycle has finished, so they may inspect the heap.
func (c *Collector) AddObserver(fn func(CycleStats)) {
	if fn != nil {
		c.observers = append(c.observers, fn)
	}
}

// MaybeCollect runs a collection if the live count has reached the
// threshold. It is called before every allocation.
func (c *Collector) MaybeCollect(roots iter.Seq[Ref]) (CycleStats, bool) {
	if c.heap.Len() < c.threshold {
		return CycleStats{}, false
	}
	return c.Collect(roots), true
}

// Collect marks everything reachable from roots, sweeps the rest and
// recomputes the threshold from the surviving live count.
func (c *Collector) Collect(roots iter.Seq[Ref]) CycleStats {
	if c.collecting {
		panic(ErrReentrantCollection)
	}

	start := time.Now()
	stats := CycleStats{
		Cycle:      c.cycles + 1,
		LiveBefore: c.heap.Len(),
		Timestamp:  start,
	}

	func() {
		c.collecting = true
		finished := false
		defer func() {
			c.collecting = false
			if !finished {
				c.abort()
			}
		}()

		stats.Marked = c.MarkAll(roots)
		stats.Reclaimed = c.Sweep()
		finished = true
	}()

	stats.LiveAfter = c.heap.Len()
	c.threshold = max(c.minThreshold, 2*stats.LiveAfter)
	stats.Threshold = c.threshold
	stats.Duration = time.Since(start)

	c.cycles++
	c.last = &stats

	gcLog.Debugf("cycle %d: live %d -> %d (marked %d, reclaimed %d), threshold %d, took %s",
		stats.Cycle, stats.LiveBefore, stats.LiveAfter, stats.Marked, stats.Reclaimed,
		stats.Threshold, stats.Duration)

	for _, fn := range c.observers {
		fn(stats)
	}
	return stats
}

// MarkAll sets the mark bit on every object reachable from roots and
// returns how many objects it marked. Tracing is depth-first with an
// explicit stack; an object is marked when first discovered, so shared
// structure is scanned once and cycles terminate.
func (c *Collector) MarkAll(roots iter.Seq[Ref]) int {
	marked := 0
	for root := range roots {
		if c.shade(root) {
			marked++
		}
		for len(c.gray) > 0 {
			n := len(c.gray) - 1
			obj := c.gray[n]
			c.gray[n] = nil
			c.gray = c.gray[:n]

			if c.shade(obj.head) {
				marked++
			}
			if c.shade(obj.tail) {
				marked++
			}
		}
	}
	return marked
}

// shade marks ref if it is not marked yet and queues pairs for scanning.
// Reports whether ref was newly marked.
func (c *Collector) shade(ref Ref) bool {
	if ref.IsNil() {
		return false
	}
	obj, err := c.heap.Get(ref)
	if err != nil {
		// A root or pair holding a reclaimed Ref means the heap is already corrupt.
		panic(fmt.Errorf("vm: collector reached %s: %w", ref, err))
	}
	if obj.marked {
		return false
	}
	obj.marked = true
	if obj.kind == KindPair {
		c.gray = append(c.gray, obj)
	}
	return true
}

// abort restores the at-rest state after a cycle panicked: the gray stack
// is emptied and every mark bit cleared, so a recovered caller can collect
// again. Nothing is reclaimed.
func (c *Collector) abort() {
	clear(c.gray)
	c.gray = c.gray[:0]
	for ref := range c.heap.Live() {
		if obj, err := c.heap.Get(ref); err == nil {
			obj.marked = false
		}
	}
}

// Sweep reclaims every unmarked object and clears the mark bit on
// survivors. Returns the number reclaimed.
func (c *Collector) Sweep() int {
	return c.heap.Sweep(func(obj *Object) bool {
		if !obj.marked {
			return false
		}
		obj.marked = false
		return true
	})
}
