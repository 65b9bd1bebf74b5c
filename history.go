package stepcompress

import (
	"container/list"
	"math"
)

// HistoryEntry records one emitted move for past-position queries.
// A FirstClock == LastClock entry is a zero-length marker (inserted by
// StepCompress.SetLastPosition) rather than a real move: it pins a
// known position at a clock without describing any pulses.
type HistoryEntry struct {
	FirstClock, LastClock uint64
	StartPosition         int64
	StepCount             int32 // signed by direction; 0 for a position marker
	Interval, Add         int32
}

// historyLog is a time-ordered log of emitted moves, newest first,
// used to answer find_past_position queries and expired after 30s of
// MCU clock (historyExpire).
type historyLog struct {
	entries *list.List // container/list.Element.Value is a HistoryEntry; front = newest
}

func newHistoryLog() historyLog {
	return historyLog{entries: list.New()}
}

func (h *historyLog) pushFront(e HistoryEntry) {
	h.entries.PushFront(e)
}

// expireBefore drops entries whose LastClock is at or before cutoff,
// oldest first.
func (h *historyLog) expireBefore(cutoff uint64) {
	for e := h.entries.Back(); e != nil; {
		he := e.Value.(HistoryEntry)
		if he.LastClock > cutoff {
			break
		}
		prev := e.Prev()
		h.entries.Remove(e)
		e = prev
	}
}

// findPastPosition walks the log newest-first to find the stepper
// position at the given clock. If the clock predates every entry it
// returns the oldest entry's start position; fallback (the current
// lastPosition) is returned only when the log is empty.
func (h *historyLog) findPastPosition(clock uint64, fallback int64) int64 {
	last := fallback
	for e := h.entries.Front(); e != nil; e = e.Next() {
		he := e.Value.(HistoryEntry)
		if clock < he.FirstClock {
			last = he.StartPosition
			continue
		}
		if clock >= he.LastClock {
			return he.StartPosition + int64(he.StepCount)
		}

		interval, add := he.Interval, he.Add
		ticks := int32(clock-he.FirstClock) + interval
		var offset int32
		if add == 0 {
			offset = ticks / interval
		} else {
			a := 0.5 * float64(add)
			b := float64(interval) - 0.5*float64(add)
			c := -float64(ticks)
			offset = int32((math.Sqrt(b*b-4*a*c) - b) / (2 * a))
		}
		if he.StepCount < 0 {
			return he.StartPosition - int64(offset)
		}
		return he.StartPosition + int64(offset)
	}
	return last
}

// extractOld returns up to max entries overlapping [startClock, endClock),
// newest first, matching StepCompress.ExtractOld's host API contract.
func (h *historyLog) extractOld(max int, startClock, endClock uint64) []HistoryEntry {
	var out []HistoryEntry
	for e := h.entries.Front(); e != nil && len(out) < max; e = e.Next() {
		he := e.Value.(HistoryEntry)
		if startClock >= he.LastClock {
			break
		}
		if endClock <= he.FirstClock {
			continue
		}
		out = append(out, he)
	}
	return out
}
