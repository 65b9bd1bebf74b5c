package stepcompress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryLogFindPastPositionConstantInterval(t *testing.T) {
	h := newHistoryLog()
	// 10 steps of interval 100, no acceleration, starting at clock 1000,
	// position 0 -> 10.
	h.pushFront(HistoryEntry{
		FirstClock: 1000, LastClock: 1000 + 9*100,
		StartPosition: 0, StepCount: 10, Interval: 100, Add: 0,
	})

	assert.Equal(t, int64(1), h.findPastPosition(1000, -1), "the step at first_clock has just completed")
	assert.Equal(t, int64(6), h.findPastPosition(1000+5*100, -1))
	assert.Equal(t, int64(10), h.findPastPosition(1000+9*100+1, -1), "past the move, all steps completed")
	assert.Equal(t, int64(0), h.findPastPosition(999, -1), "before the move, position is its start_position")
}

func TestHistoryLogFindPastPositionNegativeDirection(t *testing.T) {
	h := newHistoryLog()
	h.pushFront(HistoryEntry{
		FirstClock: 1000, LastClock: 1000 + 9*100,
		StartPosition: 50, StepCount: -10, Interval: 100, Add: 0,
	})
	assert.Equal(t, int64(44), h.findPastPosition(1000+5*100, -1))
	assert.Equal(t, int64(40), h.findPastPosition(1000+9*100+1, -1))
}

func TestHistoryLogExpireBeforeDropsOldestOnly(t *testing.T) {
	h := newHistoryLog()
	h.pushFront(HistoryEntry{FirstClock: 0, LastClock: 100, StartPosition: 0})
	h.pushFront(HistoryEntry{FirstClock: 100, LastClock: 200, StartPosition: 1})
	h.pushFront(HistoryEntry{FirstClock: 200, LastClock: 300, StartPosition: 2})

	h.expireBefore(150)
	assert.Equal(t, 2, h.entries.Len())
	assert.Equal(t, uint64(300), h.entries.Front().Value.(HistoryEntry).LastClock)
}

func TestHistoryLogExtractOldRespectsMaxAndOverlap(t *testing.T) {
	h := newHistoryLog()
	h.pushFront(HistoryEntry{FirstClock: 0, LastClock: 100, StartPosition: 0})
	h.pushFront(HistoryEntry{FirstClock: 100, LastClock: 200, StartPosition: 1})
	h.pushFront(HistoryEntry{FirstClock: 200, LastClock: 300, StartPosition: 2})

	out := h.extractOld(10, 50, 250)
	assert.Len(t, out, 3)

	limited := h.extractOld(1, 50, 250)
	assert.Len(t, limited, 1)
	assert.Equal(t, uint64(200), limited[0].FirstClock)
}
