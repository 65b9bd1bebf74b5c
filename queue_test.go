package stepcompress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepQueueAppendAndConsume(t *testing.T) {
	var q stepQueue
	for i := uint32(0); i < 5; i++ {
		require.NoError(t, q.Append(i * 10))
	}
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, uint32(0), q.At(0))
	assert.Equal(t, uint32(40), q.At(4))

	q.Consume(2)
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint32(20), q.At(0))

	q.Consume(3)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.pos)
	assert.Equal(t, 0, q.next)
}

func TestStepQueueGrowsPastStartSize(t *testing.T) {
	var q stepQueue
	for i := 0; i < queueStartSize+10; i++ {
		require.NoError(t, q.Append(uint32(i)))
	}
	assert.Equal(t, queueStartSize+10, q.Len())
	assert.Equal(t, uint32(0), q.At(0))
	assert.Equal(t, uint32(queueStartSize+9), q.At(queueStartSize+9))
}

func TestStepQueueCompactsInsteadOfGrowingWhenRoomBehindPos(t *testing.T) {
	var q stepQueue
	for i := 0; i < queueStartSize; i++ {
		require.NoError(t, q.Append(uint32(i)))
	}
	q.Consume(queueStartSize - 1) // leave one entry, plenty of dead space at the front
	before := len(q.buf)
	require.NoError(t, q.Append(999))
	assert.Equal(t, before, len(q.buf), "compaction should reuse the existing backing array")
	assert.Equal(t, 0, q.pos)
	assert.Equal(t, 2, q.Len())
}
