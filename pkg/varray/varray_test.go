package varray

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndLen(t *testing.T) {
	a := New[int]()
	for i := 0; i < 40; i++ {
		a.Append(i)
	}
	require.Equal(t, 40, a.Len())
	for i := 0; i < 40; i++ {
		require.Equal(t, i, a.At(i))
	}
}

func TestGrowthStartsAt16AndDoublesGeometrically(t *testing.T) {
	a := New[int]()
	a.items = growTo(a.items, 1)
	require.Equal(t, initialCapacity, cap(a.items))
	a.items = growTo(a.items, 17)
	require.Equal(t, initialCapacity*2, cap(a.items))
	a.items = growTo(a.items, 33)
	require.Equal(t, initialCapacity*4, cap(a.items))
}

func TestSetLengthShrinkKeepsCapacity(t *testing.T) {
	a := New[int]()
	for i := 0; i < 20; i++ {
		a.Append(i)
	}
	capBefore := cap(a.items)
	a.SetLength(5)
	require.Equal(t, 5, a.Len())
	require.Equal(t, capBefore, cap(a.items))
}

func TestPrependShiftsExisting(t *testing.T) {
	a := NewFrom([]int{1, 2, 3})
	a.Prepend(0)
	require.Equal(t, []int{0, 1, 2, 3}, a.Snapshot())
}

func TestInsertAt(t *testing.T) {
	a := NewFrom([]int{1, 2, 4})
	a.InsertAt(2, 3)
	require.Equal(t, []int{1, 2, 3, 4}, a.Snapshot())
}

func TestRemoveAtPreservesOrder(t *testing.T) {
	a := NewFrom([]int{1, 2, 3, 4})
	a.RemoveAt(1)
	require.Equal(t, []int{1, 3, 4}, a.Snapshot())
}

func TestRemoveAtSwapMovesLastIntoHole(t *testing.T) {
	a := NewFrom([]int{1, 2, 3, 4})
	a.RemoveAtSwap(0)
	require.ElementsMatch(t, []int{4, 2, 3}, a.Snapshot())
}

func TestUnrefPanicsOnImbalance(t *testing.T) {
	a := New[int]()
	a.Unref()
	require.Panics(t, func() { a.Unref() })
}

func TestRefKeepsShared(t *testing.T) {
	a := New[int]()
	b := a.Ref()
	require.Same(t, a, b)
	a.Unref()
	a.Unref()
}
