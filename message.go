package stepcompress

// QueueMessage is an encoded outbound command together with the clocks
// Transport needs to schedule it: ReqClock is when the command should
// run, MinClock is the earliest time it may be transmitted.
type QueueMessage struct {
	Payload  []byte
	MinClock uint64
	ReqClock uint64
}

// queuedMessage is the pre-transmit representation of a QueueMessage.
// A queue_step command consumes one of the MCU's finite move-queue
// slots; slotFreeAt holds the clock that slot frees again once the
// ramp finishes executing — the "FreshFromCompressor" state of the
// overloaded min_clock field described in the design notes. Simple
// commands (direction changes, passthrough messages) don't use a slot.
// Synchroniser.Flush converts a queuedMessage to its "ReadyToSend"
// QueueMessage — msg.MinClock holding the earliest transmit time —
// at the point it picks the message (see Synchroniser.Flush).
type queuedMessage struct {
	msg        QueueMessage
	usesSlot   bool
	slotFreeAt uint64
}

// messageQueue is a per-stepper FIFO of queuedMessage awaiting
// synchronization, in enqueue order.
type messageQueue struct {
	msgs []queuedMessage
}

func (q *messageQueue) push(m queuedMessage) { q.msgs = append(q.msgs, m) }

func (q *messageQueue) empty() bool { return len(q.msgs) == 0 }

func (q *messageQueue) front() (queuedMessage, bool) {
	if len(q.msgs) == 0 {
		return queuedMessage{}, false
	}
	return q.msgs[0], true
}

func (q *messageQueue) popFront() { q.msgs = q.msgs[1:] }
