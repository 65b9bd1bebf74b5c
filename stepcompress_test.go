package stepcompress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStepCompress(oid uint32) *StepCompress {
	sc := NewStepCompress(oid, fakeEncoder{})
	sc.Fill(0, 1, 2)
	sc.SetTime(0, 1e6) // 1 MHz mcu clock, print_time 0 == clock 0
	return sc
}

func TestAppendCommitFlushProducesQueueStepAndDirection(t *testing.T) {
	sc := newTestStepCompress(1)
	for i := 0; i < 5; i++ {
		require.NoError(t, sc.Append(1, 0, float64(i+1)*0.0001))
	}
	require.NoError(t, sc.Commit())
	require.NoError(t, sc.flush(math.MaxUint64))

	// A set_next_step_dir command precedes the queue_step traffic,
	// since the stepper starts with no direction set (sdir == -1); the
	// exact number of queue_step commands the compressor folds the 5
	// steps into isn't pinned down here, only their shape.
	require.True(t, len(sc.msgQueue.msgs) >= 2)
	assert.False(t, sc.msgQueue.msgs[0].usesSlot)
	var stepCount int32
	for _, m := range sc.msgQueue.msgs[1:] {
		assert.True(t, m.usesSlot)
	}
	for e := sc.history.entries.Front(); e != nil; e = e.Next() {
		stepCount += e.Value.(HistoryEntry).StepCount
	}
	assert.Equal(t, int32(5), stepCount)
}

func TestAppendFiltersStepDirStepReversal(t *testing.T) {
	sc := newTestStepCompress(1)
	require.NoError(t, sc.Append(1, 0, 0.0001))
	// A same-tick reversal arrives well within the SDS filter window
	// and should cancel the pending step instead of queuing it.
	require.NoError(t, sc.Append(0, 0, 0.0001+1e-7))
	require.NoError(t, sc.Commit())
	require.NoError(t, sc.flush(math.MaxUint64))

	assert.Equal(t, 0, sc.queue.Len(), "the reversed step should never reach the queue")
	assert.Equal(t, 0, sc.nextStepDir)
}

func TestAppendFarFutureStepEmitsStandaloneMove(t *testing.T) {
	sc := newTestStepCompress(1)
	require.NoError(t, sc.Append(1, 0, 0.0001))
	require.NoError(t, sc.Commit())

	// Far beyond clockDiffMax ticks (at 1 MHz, clockDiffMax ticks is
	// about 805 seconds): this must flush through queueAppendFar.
	require.NoError(t, sc.Append(1, 0, 1000.0))
	require.NoError(t, sc.Commit())
	require.NoError(t, sc.flush(math.MaxUint64))

	assert.Equal(t, 0, sc.queue.Len())
	require.True(t, sc.history.entries.Len() >= 2)
}

func TestSetLastPositionAndFindPastPosition(t *testing.T) {
	sc := newTestStepCompress(1)
	require.NoError(t, sc.SetLastPosition(0, 42))
	assert.Equal(t, int64(42), sc.FindPastPosition(0))
	assert.Equal(t, int64(42), sc.FindPastPosition(500))
}

func TestExtractOldReturnsEmittedMoves(t *testing.T) {
	sc := newTestStepCompress(1)
	for i := 0; i < 3; i++ {
		require.NoError(t, sc.Append(1, 0, float64(i+1)*0.0001))
	}
	require.NoError(t, sc.Commit())
	require.NoError(t, sc.flush(math.MaxUint64))

	out := sc.ExtractOld(10, 0, math.MaxUint64)
	require.NotEmpty(t, out)
}

func TestQueueMsgOrdersAfterPendingSteps(t *testing.T) {
	sc := newTestStepCompress(1)
	require.NoError(t, sc.Append(1, 0, 0.0001))
	require.NoError(t, sc.Commit())
	require.NoError(t, sc.QueueMsg([]uint32{99, sc.GetOID()}))

	require.NotEmpty(t, sc.msgQueue.msgs)
	last := sc.msgQueue.msgs[len(sc.msgQueue.msgs)-1]
	assert.False(t, last.usesSlot)
}
