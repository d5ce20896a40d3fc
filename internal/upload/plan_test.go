package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSingleShot(t *testing.T) {
	assert.Nil(t, Plan(0))
	assert.Equal(t, []Span{{Offset: 0, Size: 100, Last: true}}, Plan(100))
	assert.Equal(t, []Span{{Offset: 0, Size: ChunkSize, Last: true}}, Plan(ChunkSize))
	assert.False(t, Chunked(ChunkSize))
	assert.True(t, Chunked(ChunkSize+1))
}

func TestPlanChunked(t *testing.T) {
	spans := Plan(70000)
	require.Len(t, spans, 2)
	assert.Equal(t, Span{Offset: 0, Size: 65535}, spans[0])
	assert.Equal(t, Span{Offset: 65535, Size: 4465, Last: true}, spans[1])

	spans = Plan(ChunkSize + 1)
	require.Len(t, spans, 2)
	assert.Equal(t, 1, spans[1].Size)

	n := 3 * ChunkSize
	spans = Plan(n)
	require.Len(t, spans, 3)
	total := 0
	for i, s := range spans {
		assert.Equal(t, total, s.Offset)
		assert.Equal(t, i == len(spans)-1, s.Last)
		total += s.Size
	}
	assert.Equal(t, n, total)
}

func TestChunkProgressCappedAt98(t *testing.T) {
	spans := Plan(70000)
	assert.InDelta(t, 93.62, chunkProgress(spans[0], 70000), 0.01)
	assert.Equal(t, 98.0, chunkProgress(spans[1], 70000))
}
