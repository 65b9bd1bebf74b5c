package stepcompress

import (
	"container/heap"
	"math"

	"github.com/pkg/errors"
)

// moveClockHeap is a fixed-size min-heap tracking, for each slot in
// the MCU's move queue, the clock at which that slot next becomes
// free. Its length never changes after construction; Synchroniser
// only ever replaces the root (heap.Fix after overwriting index 0),
// which is the one operation the MCU-side algorithm needs: "what is
// the soonest free slot, and what replaces it once I use it".
type moveClockHeap []uint64

func (h moveClockHeap) Len() int            { return len(h) }
func (h moveClockHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h moveClockHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *moveClockHeap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *moveClockHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Synchroniser merges the pending command queues of a set of
// steppers into a single req_clock-ordered stream, respecting the
// MCU's finite move queue: a queue_step command cannot be sent until
// some earlier command's slot has freed up.
type Synchroniser struct {
	steppers   []*StepCompress
	transport  Transport
	moveClocks moveClockHeap
}

// NewSynchroniser builds a Synchroniser over steppers, modelling an
// MCU move queue moveSlots deep.
func NewSynchroniser(steppers []*StepCompress, transport Transport, moveSlots int) *Synchroniser {
	return &Synchroniser{
		steppers:   steppers,
		transport:  transport,
		moveClocks: make(moveClockHeap, moveSlots),
	}
}

// SetTime propagates the host/MCU clock mapping to every stepper.
func (s *Synchroniser) SetTime(timeOffset, mcuFreq float64) {
	for _, sc := range s.steppers {
		sc.SetTime(timeOffset, mcuFreq)
	}
}

// Flush drains every stepper up to moveClock, then transmits the
// resulting commands as a single ordered batch via Transport.
func (s *Synchroniser) Flush(moveClock uint64) error {
	for _, sc := range s.steppers {
		if err := sc.flush(moveClock); err != nil {
			return err
		}
	}

	var batch []QueueMessage
	for {
		var chosen *StepCompress
		var front queuedMessage
		reqClock := uint64(math.MaxUint64)
		for _, sc := range s.steppers {
			qm, ok := sc.msgQueue.front()
			if ok && qm.msg.ReqClock < reqClock {
				chosen, front, reqClock = sc, qm, qm.msg.ReqClock
			}
		}
		if chosen == nil || (front.usesSlot && reqClock > moveClock) {
			break
		}

		nextAvail := s.moveClocks[0]
		if front.usesSlot {
			s.moveClocks[0] = front.slotFreeAt
			heap.Fix(&s.moveClocks, 0)
		}
		front.msg.MinClock = nextAvail

		chosen.msgQueue.popFront()
		batch = append(batch, front.msg)
	}

	if len(batch) == 0 {
		return nil
	}
	if err := s.transport.SendBatch(batch); err != nil {
		return errors.WithMessage(newTransportError(err), "steppersync flush")
	}
	return nil
}
