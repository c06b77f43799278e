package buffer

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShared_CloneSharesStorage(t *testing.T) {
	orig := NewShared(strings.Repeat("A", 16))
	alias, err := orig.Clone()
	require.NoError(t, err)
	assert.Equal(t, int64(2), orig.RefCount())

	g, err := alias.BorrowMut()
	require.NoError(t, err)
	g.Append("B")
	g.Release()

	got, err := orig.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAAAAAAAAB", got)
	assert.Len(t, got, 17)

	alias.Release()
	assert.Equal(t, int64(1), orig.RefCount())
}

func TestShared_AliasPreservingProperty(t *testing.T) {
	for _, seed := range []uint64{11, 12, 13} {
		input, err := Generate(128, UppercaseAlphabet, NewRand(seed))
		require.NoError(t, err)

		orig := NewShared(input)
		alias, err := orig.Clone()
		require.NoError(t, err)

		g, err := alias.BorrowMut()
		require.NoError(t, err)
		g.Append("xyz")
		g.Release()

		got, err := orig.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, input+"xyz", got)
	}
}

func TestShared_SecondMutableBorrowIsRejected(t *testing.T) {
	orig := NewShared("AAAA", WithSiteTracking())
	alias, err := orig.Clone()
	require.NoError(t, err)

	first, err := orig.BorrowMut()
	require.NoError(t, err)

	second, err := alias.BorrowMut()
	require.Error(t, err)
	assert.Nil(t, second)
	assert.ErrorIs(t, err, ErrAccessConflict)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, AccessWrite, conflict.Op)
	assert.Equal(t, AccessWrite, conflict.Held)
	assert.Contains(t, conflict.Site, "shared_test.go:")
	assert.Contains(t, err.Error(), "mutably borrowed")

	// The rejected attempt must leave the holder's access intact.
	first.Append("B")
	first.Release()

	again, err := alias.BorrowMut()
	require.NoError(t, err)
	assert.Equal(t, "AAAAB", again.String())
	again.Release()
}

func TestShared_ReadersBlockWriter(t *testing.T) {
	s := NewShared("data")
	r1, err := s.Borrow()
	require.NoError(t, err)
	r2, err := s.Borrow()
	require.NoError(t, err)

	_, err = s.BorrowMut()
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, AccessRead, conflict.Held)
	assert.Equal(t, int64(2), conflict.Readers)
	assert.Empty(t, conflict.Site)
	assert.Contains(t, conflict.Error(), "borrowed by 2 reader(s)")
	assert.Contains(t, conflict.Error(), "unknown site")

	r1.Release()
	r2.Release()
	w, err := s.BorrowMut()
	require.NoError(t, err)
	w.Release()
}

func TestShared_WriterBlocksReader(t *testing.T) {
	s := NewShared("data")
	w, err := s.BorrowMut()
	require.NoError(t, err)
	defer w.Release()

	_, err = s.Snapshot()
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, AccessRead, conflict.Op)
	assert.Equal(t, AccessWrite, conflict.Held)
}

func TestShared_ReleaseIsIdempotent(t *testing.T) {
	s := NewShared("x")
	alias, err := s.Clone()
	require.NoError(t, err)

	alias.Release()
	alias.Release()
	assert.Equal(t, int64(1), s.RefCount())

	_, err = alias.Clone()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = alias.BorrowMut()
	assert.ErrorIs(t, err, ErrReleased)

	w, err := s.BorrowMut()
	require.NoError(t, err)
	w.Release()
	w.Release()
	_, err = s.BorrowMut()
	assert.NoError(t, err)
}

func TestShared_ReleasedGuardPanics(t *testing.T) {
	s := NewShared("x")
	w, err := s.BorrowMut()
	require.NoError(t, err)
	w.Release()
	assert.Panics(t, func() { w.Append("y") })
}

func TestShared_ConcurrentWritersNeverOverlap(t *testing.T) {
	s := NewShared("")
	const workers = 8
	const attempts = 500

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < workers; i++ {
		h, err := s.Clone()
		require.NoError(t, err)
		wg.Add(1)
		go func(h *Shared) {
			defer wg.Done()
			defer h.Release()
			for j := 0; j < attempts; j++ {
				g, err := h.BorrowMut()
				if err != nil {
					assert.ErrorIs(t, err, ErrAccessConflict)
					continue
				}
				g.Append("x")
				g.Release()
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	got, err := s.Snapshot()
	require.NoError(t, err)
	assert.Len(t, got, granted)
	assert.Equal(t, int64(1), s.RefCount())
}

func BenchmarkShared_CloneAppend(b *testing.B) {
	input, _ := Generate(1_000_000, UppercaseAlphabet, NewRand(1))
	s := NewShared(input)

	b.SetBytes(int64(len(input)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := s.Clone()
		if err != nil {
			b.Fatal(err)
		}
		g, err := h.BorrowMut()
		if err != nil {
			b.Fatal(err)
		}
		g.Append("B")
		g.Release()
		h.Release()
	}
}

func TestShared_GuardAccessors(t *testing.T) {
	s := NewShared("αβ")
	defer s.Release()

	w, err := s.BorrowMut()
	require.NoError(t, err)
	w.Append("B")
	assert.Equal(t, 5, w.Len(), "length is in bytes")
	assert.Equal(t, "αβB", w.String())
	w.Release()

	r, err := s.Borrow()
	require.NoError(t, err)
	defer r.Release()
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, "αβB", r.String())
}
