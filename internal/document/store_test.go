package document

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenChangeClose(t *testing.T) {
	s := NewStore()

	s.Open("file:///a.kt", 1, "fun a() {}")
	doc, ok := s.Get("file:///a.kt")
	require.True(t, ok)
	assert.Equal(t, int32(1), doc.Version)
	assert.Equal(t, "fun a() {}", doc.Text)

	require.NoError(t, s.ChangeFull("file:///a.kt", 2, "fun a() = 1"))
	doc, _ = s.Get("file:///a.kt")
	assert.Equal(t, int32(2), doc.Version)
	assert.Equal(t, "fun a() = 1", doc.Text)

	s.Close("file:///a.kt")
	_, ok = s.Get("file:///a.kt")
	assert.False(t, ok)
}

func TestChangeUnknownDocument(t *testing.T) {
	s := NewStore()
	err := s.ChangeFull("file:///missing.kt", 1, "x")
	assert.ErrorIs(t, err, ErrUnknownDocument)
}

func TestCloseAbsentIsNoOp(t *testing.T) {
	s := NewStore()
	s.Close("file:///missing.kt")
	assert.Equal(t, 0, s.Len())
}

func TestReopenKeepsHighestVersion(t *testing.T) {
	s := NewStore()

	s.Open("file:///a.kt", 5, "new")
	s.Open("file:///a.kt", 3, "stale")

	doc, ok := s.Get("file:///a.kt")
	require.True(t, ok)
	assert.Equal(t, int32(5), doc.Version)
	assert.Equal(t, "new", doc.Text)

	s.Open("file:///a.kt", 8, "newer")
	doc, _ = s.Get("file:///a.kt")
	assert.Equal(t, int32(8), doc.Version)
}

func TestOpenCloseRoundTrip(t *testing.T) {
	s := NewStore()
	s.Open("file:///keep.kt", 1, "val keep = true")

	before := s.Snapshot()

	s.Open("file:///tmp.kt", 1, "val tmp = 0")
	s.Close("file:///tmp.kt")

	assert.Equal(t, before, s.Snapshot())
}

func TestSnapshotIsStableAndSorted(t *testing.T) {
	s := NewStore()
	s.Open("file:///b.kt", 1, "b")
	s.Open("file:///a.kt", 1, "a")

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "file:///a.kt", snap[0].URI)
	assert.Equal(t, "file:///b.kt", snap[1].URI)

	// Mutations after the snapshot do not leak into it.
	require.NoError(t, s.ChangeFull("file:///a.kt", 2, "changed"))
	assert.Equal(t, "a", snap[0].Text)
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			uri := fmt.Sprintf("file:///%d.kt", n)
			for v := int32(1); v <= 100; v++ {
				s.Open(uri, v, "text")
				s.Snapshot()
				s.Get(uri)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, s.Len())
	for _, doc := range s.Snapshot() {
		assert.Equal(t, int32(100), doc.Version)
	}
}
