package heap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilex-lang/ilex/internal/heap"
)

func TestInternStringDeduplicates(t *testing.T) {
	h := heap.New()
	a := h.InternString("hello")
	b := h.InternString("hello")
	c := h.InternString("world")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "hello", h.String(a).Chars)
}

func TestArrayStorage(t *testing.T) {
	h := heap.New()
	items := []heap.Value{heap.Number(1), heap.Number(2), heap.Number(3)}
	handle := h.NewArray(heap.ObjArray{Items: items})
	require.Equal(t, heap.KindArray, h.Kind(handle))
	assert.Equal(t, items, h.Array(handle).Items)
}

func TestMapSetAndGet(t *testing.T) {
	h := heap.New()
	handle := h.NewMap()
	key := heap.ObjValue(h.InternString("k"))
	require.NoError(t, h.MapSet(handle, key, heap.Number(7)))
	v, err := h.MapGet(handle, key)
	require.NoError(t, err)
	assert.Equal(t, heap.Number(7), v)
	assert.Equal(t, 1, h.MapLen(handle))
}

func TestMapGetMissingKeyIsNull(t *testing.T) {
	h := heap.New()
	handle := h.NewMap()
	v, err := h.MapGet(handle, heap.Number(99))
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestSetAddContainsDelete(t *testing.T) {
	h := heap.New()
	handle := h.NewSet()
	require.NoError(t, h.SetAdd(handle, heap.Number(1)))
	ok, err := h.SetContains(handle, heap.Number(1))
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := h.SetDelete(handle, heap.Number(1))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, h.SetLen(handle))
}
