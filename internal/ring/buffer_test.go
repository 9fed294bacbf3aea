package ring

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferEvictsFromHead(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Append(strconv.Itoa(i))
	}
	require.Equal(t, []string{"2", "3", "4"}, b.Snapshot())
	require.Equal(t, 3, b.Len())
}

func TestBufferDefaultCapacity(t *testing.T) {
	b := New(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		b.Append(strconv.Itoa(i))
	}
	require.Equal(t, DefaultCapacity, b.Len())
}

func TestBufferSnapshotIsIndependent(t *testing.T) {
	b := New(10)
	b.Append("a")
	snap := b.Snapshot()
	b.Append("b")
	require.Equal(t, []string{"a"}, snap)
}

func TestBufferClear(t *testing.T) {
	b := New(10)
	b.Append("a")
	b.Clear()
	require.Empty(t, b.Snapshot())
	b.Append("b")
	require.Equal(t, []string{"b"}, b.Snapshot())
}

func TestPairClear(t *testing.T) {
	p := NewPair()
	p.Stdout.Append("out")
	p.Stderr.Append("err")
	p.Clear()
	require.Empty(t, p.Stdout.Snapshot())
	require.Empty(t, p.Stderr.Snapshot())
}
