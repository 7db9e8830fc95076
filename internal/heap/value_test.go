package heap_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ilex-lang/ilex/internal/heap"
)

func TestNumberRoundTrip(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 3.5, -3.5, 1e300, -1e-300} {
		v := heap.Number(f)
		assert.True(t, v.IsNumber())
		assert.Equal(t, f, v.AsNumber())
	}
}

func TestNumberCanonicalizesNaN(t *testing.T) {
	v := heap.Number(math.NaN())
	assert.True(t, v.IsNumber())
	assert.True(t, math.IsNaN(v.AsNumber()))
}

func TestSingletonsAreNotNumbers(t *testing.T) {
	for _, v := range []heap.Value{heap.Null, heap.True, heap.False, heap.Empty} {
		assert.False(t, v.IsNumber())
	}
}

func TestBoolValues(t *testing.T) {
	assert.True(t, heap.Bool(true).IsBool())
	assert.True(t, heap.Bool(true).AsBool())
	assert.True(t, heap.Bool(false).IsBool())
	assert.False(t, heap.Bool(false).AsBool())
}

func TestObjValueRoundTrip(t *testing.T) {
	h := heap.Handle(42)
	v := heap.ObjValue(h)
	assert.True(t, v.IsObj())
	assert.Equal(t, h, v.AsHandle())
}

func TestObjHandleSurvivesLargeIndex(t *testing.T) {
	h := heap.Handle(0x0000ffff)
	v := heap.ObjValue(h)
	assert.Equal(t, h, v.AsHandle())
}

func TestFalsyValues(t *testing.T) {
	assert.True(t, heap.Null.Falsy())
	assert.True(t, heap.False.Falsy())
	assert.True(t, heap.Empty.Falsy())
	assert.False(t, heap.True.Falsy())
	assert.False(t, heap.Number(0).Falsy())
	assert.True(t, heap.Number(0).Truthy())
}

func TestEqualNumbersByValue(t *testing.T) {
	assert.True(t, heap.Equal(heap.Number(1), heap.Number(1)))
	assert.False(t, heap.Equal(heap.Number(1), heap.Number(2)))
}

func TestEqualObjectsByIdentity(t *testing.T) {
	a := heap.ObjValue(heap.Handle(1))
	b := heap.ObjValue(heap.Handle(1))
	c := heap.ObjValue(heap.Handle(2))
	assert.True(t, heap.Equal(a, b))
	assert.False(t, heap.Equal(a, c))
}
