package stepcompress

// MessageEncoder turns a tuple of 32-bit protocol words into an opaque
// wire frame. Framing, checksums, and transport-level escaping are the
// encoder's concern, not the compressor's.
type MessageEncoder interface {
	Encode(words []uint32) []byte
}

// Transport accepts a batch of framed messages, tagged with minimum
// and requested clocks, and is responsible for getting them to the
// MCU in order. Serial framing, retries, and flow control live here,
// not in the compressor.
type Transport interface {
	SendBatch(batch []QueueMessage) error
}

// Clock models the affine mapping between host "print time" (seconds)
// and MCU clock ticks that a higher-level timekeeping component would
// derive. StepCompress.SetTime only needs the two scalars this exposes
// (Offset, Freq); Clock is a convenience shape for callers that want to
// wire in a clock source rather than compute the scalars by hand.
type Clock interface {
	Offset() float64
	Freq() float64
}
