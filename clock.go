package stepcompress

// clockDiffMax is the largest relative clock (clk - lastStepClock) the
// compressor will pack into a move. Steps further in the future are
// flushed up to the boundary and then emitted as a singleton command
// (see flushFar).
const clockDiffMax = 3 << 28 // 0xC000_0000 >> 2

// sdsFilterTime is the step-dir-step suppression window, in seconds: a
// pending step whose direction is reversed within this window of its
// successor is dropped rather than queued.
const sdsFilterTime = 7.5e-4

// historyExpire is how long, in seconds of MCU clock, a HistoryEntry is
// kept around for find_past_position queries before it is pruned.
const historyExpire = 30.0

// queueStartSize is the initial backing-array size for a stepQueue.
const queueStartSize = 1024

// queueSoftCap bounds how many unconsumed entries a stepQueue may hold
// before the caller is forced to flush: there is no point keeping more
// than ~64K steps buffered in memory while the compressor is starved
// of flush calls.
const queueSoftCap = 65535 + 2000

// idivUp divides n by d, rounding toward +infinity. Go's (like C's)
// integer division truncates toward zero, which is the wrong rounding
// direction for the negative numerators the add-range search produces.
func idivUp(n, d int32) int32 {
	if n >= 0 {
		return (n + d - 1) / d
	}
	return n / d
}

// idivDown divides n by d, rounding toward -infinity.
func idivDown(n, d int32) int32 {
	if n >= 0 {
		return n / d
	}
	return (n - d + 1) / d
}
