package compaction

import (
	"fmt"
	"sync/atomic"
)

// streamingPartitionBoundary is 2^63, the first id in the non-streaming
// partition. Streaming ids live in [0, streamingPartitionBoundary);
// non-streaming ids live in [streamingPartitionBoundary, 2^64).
const streamingPartitionBoundary uint64 = 1 << 63

// BatchIdAllocator hands out globally unique, ordered batch ids from one of
// two partitions of a single 64-bit id space: streaming ids are always
// numerically below non-streaming ids, which simplifies ordering checks
// elsewhere in the engine. next() is safe under arbitrary concurrent
// callers; ids handed out are unique but may interleave between producers.
type BatchIdAllocator struct {
	isStreaming bool
	counter     atomic.Uint64
}

// NewBatchIdAllocator creates an allocator for the streaming or
// non-streaming partition.
func NewBatchIdAllocator(isStreaming bool) *BatchIdAllocator {
	a := &BatchIdAllocator{isStreaming: isStreaming}
	if !isStreaming {
		a.counter.Store(streamingPartitionBoundary)
	}
	return a
}

// Load returns the counter's current value. It is informational only: the
// value is not synchronized against in-flight Next calls from other
// goroutines (see the open question in the design notes).
func (a *BatchIdAllocator) Load() uint64 {
	return a.counter.Load()
}

// Next returns the current value and atomically advances the counter by
// one. It fails with ErrOverflow when a streaming allocator's current value
// has reached 2^63, or a non-streaming allocator's current value is 2^64-1.
func (a *BatchIdAllocator) Next() (uint64, error) {
	for {
		cur := a.counter.Load()
		if a.isStreaming {
			if cur >= streamingPartitionBoundary {
				return 0, fmt.Errorf("batch id allocator: streaming counter exhausted: %w", ErrOverflow)
			}
		} else if cur == ^uint64(0) {
			return 0, fmt.Errorf("batch id allocator: non-streaming counter exhausted: %w", ErrOverflow)
		}
		if a.counter.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}
