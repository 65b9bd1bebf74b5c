package stepcompress

// maxQueueAlloc is a sanity ceiling on how large a stepQueue's backing
// array may grow. It exists purely as a fatal backstop against runaway
// growth (the AllocationFailure error kind of the error-handling
// design); under normal operation the queueSoftCap flush forces a
// drain long before this is ever reached.
const maxQueueAlloc = 1 << 24

// stepQueue is a growable ring buffer of pending requested step clocks
// for one stepper, stored relative to the owning StepCompress's
// lastStepClock. pos is the index of the next unconsumed entry; next
// is the index one past the last occupied entry.
type stepQueue struct {
	buf  []uint32
	pos  int
	next int
}

// Len reports the number of unconsumed entries.
func (q *stepQueue) Len() int { return q.next - q.pos }

// At returns the i'th unconsumed entry (0-indexed from pos).
func (q *stepQueue) At(i int) uint32 { return q.buf[q.pos+i] }

// Prefix returns a read-only view of the first n unconsumed entries.
func (q *stepQueue) Prefix(n int) []uint32 { return q.buf[q.pos : q.pos+n] }

// Consume drops the first n unconsumed entries. When the queue empties
// out entirely, pos and next both reset to 0 so the backing array can
// be reused from the start.
func (q *stepQueue) Consume(n int) {
	q.pos += n
	if q.pos >= q.next {
		q.pos, q.next = 0, 0
	}
}

func (q *stepQueue) full() bool { return q.next >= len(q.buf) }

// growOrCompact makes room for at least one more entry: it compacts
// toward index 0 when there's unused space behind pos, or doubles the
// backing array when there isn't.
func (q *stepQueue) growOrCompact() error {
	inUse := q.next - q.pos
	if q.pos > 0 {
		copy(q.buf, q.buf[q.pos:q.next])
	} else {
		alloc := len(q.buf)
		if alloc == 0 {
			alloc = queueStartSize
		}
		for inUse >= alloc {
			alloc *= 2
			if alloc > maxQueueAlloc {
				return errQueueAllocFailed
			}
		}
		grown := make([]uint32, alloc)
		copy(grown, q.buf[q.pos:q.next])
		q.buf = grown
	}
	q.pos, q.next = 0, inUse
	return nil
}

// Append adds clk to the tail, growing or compacting the backing array
// first if it's full.
func (q *stepQueue) Append(clk uint32) error {
	if q.full() {
		if err := q.growOrCompact(); err != nil {
			return err
		}
	}
	q.buf[q.next] = clk
	q.next++
	return nil
}
