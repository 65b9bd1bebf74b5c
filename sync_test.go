package stepcompress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	sent []QueueMessage
}

func (t *recordingTransport) SendBatch(batch []QueueMessage) error {
	t.sent = append(t.sent, batch...)
	return nil
}

func TestSynchroniserFlushOrdersAcrossSteppersByReqClock(t *testing.T) {
	sc1 := NewStepCompress(1, fakeEncoder{})
	sc1.Fill(0, 1, 2)
	sc2 := NewStepCompress(2, fakeEncoder{})
	sc2.Fill(0, 1, 2)

	transport := &recordingTransport{}
	sync := NewSynchroniser([]*StepCompress{sc1, sc2}, transport, 4)
	sync.SetTime(0, 1e6)

	for i := 0; i < 3; i++ {
		require.NoError(t, sc1.Append(1, 0, float64(i+1)*0.0001))
	}
	require.NoError(t, sc1.Commit())
	for i := 0; i < 3; i++ {
		require.NoError(t, sc2.Append(1, 0, float64(i+1)*0.00005))
	}
	require.NoError(t, sc2.Commit())

	require.NoError(t, sync.Flush(math.MaxUint64))

	require.True(t, len(transport.sent) >= 4, "at least a dir command and one queue_step per stepper")
	for i := 1; i < len(transport.sent); i++ {
		assert.True(t, transport.sent[i-1].ReqClock <= transport.sent[i].ReqClock,
			"messages must be transmitted in non-decreasing req_clock order")
	}

	// Both steppers' queues must have fully drained into the batch.
	assert.Empty(t, sc1.msgQueue.msgs)
	assert.Empty(t, sc2.msgQueue.msgs)
}

func TestSynchroniserHoldsSlotMessagesPastMoveClock(t *testing.T) {
	sc := NewStepCompress(1, fakeEncoder{})
	sc.Fill(0, 1, 2)

	transport := &recordingTransport{}
	sync := NewSynchroniser([]*StepCompress{sc}, transport, 2)
	sync.SetTime(0, 1e6)

	require.NoError(t, sc.Append(1, 0, 0.0001))
	require.NoError(t, sc.Commit())

	// Flushing to a moveClock before the step's own clock must not
	// transmit the queue_step command yet, only the direction change.
	require.NoError(t, sync.Flush(0))
	assert.Len(t, transport.sent, 1)
	assert.False(t, transport.sent[0].ReqClock != 0)

	require.NoError(t, sync.Flush(math.MaxUint64))
	assert.True(t, len(transport.sent) >= 2)
}
