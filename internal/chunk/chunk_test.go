package chunk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ilex-lang/ilex/internal/chunk"
	"github.com/ilex-lang/ilex/internal/heap"
)

func TestWriteRecordsLines(t *testing.T) {
	var c chunk.Chunk
	c.Write(byte(chunk.OpPop), 1)
	c.Write(byte(chunk.OpReturn), 2)
	assert.Equal(t, []byte{byte(chunk.OpPop), byte(chunk.OpReturn)}, c.Code)
	assert.Equal(t, []int32{1, 2}, c.Lines)
}

func TestWriteShortBigEndian(t *testing.T) {
	var c chunk.Chunk
	c.WriteShort(0x1234, 1)
	assert.Equal(t, []byte{0x12, 0x34}, c.Code)
	assert.Equal(t, uint16(0x1234), c.ReadShort(0))
}

func TestAddConstantDeduplicates(t *testing.T) {
	var c chunk.Chunk
	i1 := c.AddConstant(heap.Number(1))
	i2 := c.AddConstant(heap.Number(1))
	i3 := c.AddConstant(heap.Number(2))
	assert.Equal(t, i1, i2)
	assert.NotEqual(t, i1, i3)
	assert.Len(t, c.Constants, 2)
}

func TestPatchShortOverwritesOperand(t *testing.T) {
	var c chunk.Chunk
	c.WriteShort(0, 1)
	c.PatchShort(0, 0xbeef)
	assert.Equal(t, uint16(0xbeef), c.ReadShort(0))
}
