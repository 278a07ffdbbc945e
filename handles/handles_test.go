package handles

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covergate/covergate/types"
)

func TestOpenClose(t *testing.T) {
	tr := NewTracker()
	tr.Open(KindTimer, "t1", "a.cg", 5)
	tr.Open(KindSocket, "s1", "a.cg", 7)
	assert.Equal(t, 2, tr.OpenCount())

	tr.Close("t1", "a.cg")
	assert.Equal(t, 1, tr.OpenCount())

	leaks := tr.Leaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, types.Leak{Kind: KindSocket, Name: "s1", File: "a.cg", Line: 7}, leaks[0])
}

func TestCloseUnknownIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.Close("never-opened", "a.cg")
	assert.Equal(t, 0, tr.OpenCount())
}

func TestLeaksInAcquisitionOrder(t *testing.T) {
	tr := NewTracker()
	tr.Open(KindFile, "f2", "b.cg", 1)
	tr.Open(KindTimer, "t1", "a.cg", 9)
	tr.Open(KindSocket, "s3", "c.cg", 4)

	leaks := tr.Leaks()
	require.Len(t, leaks, 3)
	assert.Equal(t, "f2", leaks[0].Name)
	assert.Equal(t, "t1", leaks[1].Name)
	assert.Equal(t, "s3", leaks[2].Name)
}

func TestDoubleOpenNeedsTwoCloses(t *testing.T) {
	tr := NewTracker()
	tr.Open(KindTimer, "t1", "a.cg", 3)
	tr.Open(KindTimer, "t1", "a.cg", 8)
	assert.Equal(t, 2, tr.OpenCount())

	tr.Close("t1", "a.cg")
	require.Equal(t, 1, tr.OpenCount())

	leaks := tr.Leaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, 3, leaks[0].Line)

	tr.Close("t1", "a.cg")
	assert.Equal(t, 0, tr.OpenCount())
	assert.Empty(t, tr.Leaks())
}

func TestSameNameDifferentFiles(t *testing.T) {
	tr := NewTracker()
	tr.Open(KindTimer, "t1", "a.cg", 1)
	tr.Open(KindTimer, "t1", "b.cg", 1)
	assert.Equal(t, 2, tr.OpenCount())

	tr.Close("t1", "a.cg")
	leaks := tr.Leaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, "b.cg", leaks[0].File)
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			file := "f" + string(rune('a'+n)) + ".cg"
			for j := 0; j < 100; j++ {
				tr.Open(KindTimer, "t", file, j)
				tr.Close("t", file)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, tr.OpenCount())
}
