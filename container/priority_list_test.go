package container_test

import (
	"testing"

	"github.com/sohnryang/pintos/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityListOrdering(t *testing.T) {
	l := container.New[int, string]()
	l.Insert(10, "low")
	l.Insert(50, "high")
	l.Insert(30, "mid")

	v, ok := l.PopMax()
	require.True(t, ok)
	assert.Equal(t, "high", v)

	v, ok = l.PopMax()
	require.True(t, ok)
	assert.Equal(t, "mid", v)

	v, ok = l.PopMax()
	require.True(t, ok)
	assert.Equal(t, "low", v)

	_, ok = l.PopMax()
	assert.False(t, ok)
}

func TestPriorityListFIFOOnTies(t *testing.T) {
	l := container.New[int, string]()
	l.Insert(10, "first")
	l.Insert(10, "second")
	l.Insert(10, "third")

	assert.Equal(t, []string{"first", "second", "third"}, l.Values())
}

func TestPriorityListReinsert(t *testing.T) {
	l := container.New[int, string]()
	l.Insert(10, "a")
	l.Insert(20, "b")

	ok := l.Reinsert(func(v string) bool { return v == "a" }, 30)
	require.True(t, ok)

	v, ok := l.PeekMax()
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestPriorityListRemove(t *testing.T) {
	l := container.New[int, string]()
	l.Insert(10, "a")
	l.Insert(20, "b")

	ok := l.Remove(func(v string) bool { return v == "b" })
	require.True(t, ok)
	assert.Equal(t, 1, l.Len())

	ok = l.Remove(func(v string) bool { return v == "missing" })
	assert.False(t, ok)
}
