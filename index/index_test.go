package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/rpcpool/caption-index/codec"
	"github.com/rpcpool/caption-index/doctable"
	"github.com/rpcpool/caption-index/lexicon"
	"github.com/stretchr/testify/require"
)

// buildTestIndex writes a tiny two-document index matching spec.md §8
// scenario 1: doc 0 is "UNITED STATES", doc 1 is "THE UNITED STATES".
// lexicon.Build assigns ids lexicographically: states=0, the=1, united=2.
func buildTestIndex(t *testing.T) (*Reader, func()) {
	t.Helper()
	format := codec.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	f, err := os.Create(path)
	require.NoError(t, err)

	w := blockfmt.NewWriter(f, format, 0)
	offsets := make([]int64, 3)

	// token "states" (id 0): doc 0 position 1, doc 1 position 2
	offsets[0], err = w.WriteTokenHeader(0, 2)
	require.NoError(t, err)
	require.NoError(t, w.WriteDocHeader(0, 1))
	require.NoError(t, w.WritePosting(blockfmt.Posting{Position: 1, Start: 0, End: 2000}))
	require.NoError(t, w.WriteDocHeader(1, 1))
	require.NoError(t, w.WritePosting(blockfmt.Posting{Position: 2, Start: 5000, End: 6500}))

	// token "the" (id 1): doc 1 position 0
	offsets[1], err = w.WriteTokenHeader(1, 1)
	require.NoError(t, err)
	require.NoError(t, w.WriteDocHeader(1, 1))
	require.NoError(t, w.WritePosting(blockfmt.Posting{Position: 0, Start: 5000, End: 6500}))

	// token "united" (id 2): doc 0 position 0, doc 1 position 1
	offsets[2], err = w.WriteTokenHeader(2, 2)
	require.NoError(t, err)
	require.NoError(t, w.WriteDocHeader(0, 1))
	require.NoError(t, w.WritePosting(blockfmt.Posting{Position: 0, Start: 0, End: 2000}))
	require.NoError(t, w.WriteDocHeader(1, 1))
	require.NoError(t, w.WritePosting(blockfmt.Posting{Position: 1, Start: 5000, End: 6500}))

	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())

	lex, err := lexicon.Build(map[string]uint64{"the": 1, "united": 2, "states": 2}).WithOffsets(offsets)
	require.NoError(t, err)

	docs := doctable.Build([]string{"docA.srt", "docB.srt"}).
		WithLengths(map[uint32]uint64{0: 2, 1: 3}).
		WithDurations(map[uint32]uint64{0: 2000, 1: 6500})

	r, err := Open(path, lex, docs, format)
	require.NoError(t, err)
	return r, func() { r.Close() }
}

func TestNgramContainsBigram(t *testing.T) {
	r, cleanup := buildTestIndex(t)
	defer cleanup()

	ok, err := r.NgramContains([]string{"united", "states"}, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.NgramContains([]string{"united", "states"}, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.NgramContains([]string{"the", "united"}, 0)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.NgramContains([]string{"the", "united"}, 1)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNgramSearchFourGramNoMatch(t *testing.T) {
	r, cleanup := buildTestIndex(t)
	defer cleanup()

	matches, err := r.NgramSearch([]string{"the", "united", "states", "states"})
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestNgramSearchUnknownTokenFails(t *testing.T) {
	r, cleanup := buildTestIndex(t)
	defer cleanup()

	_, err := r.NgramSearch([]string{"united", "nope"})
	require.ErrorIs(t, err, capidxerrors.ErrUnknownToken)
}

func TestIntervalsReturnsTimeSpan(t *testing.T) {
	r, cleanup := buildTestIndex(t)
	defer cleanup()

	intervals, err := r.Intervals([]string{"united", "states"}, 0)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	require.EqualValues(t, 0, intervals[0].Start)
	require.EqualValues(t, 2000, intervals[0].End)
}

func TestDocumentLength(t *testing.T) {
	r, cleanup := buildTestIndex(t)
	defer cleanup()

	n, seconds, err := r.DocumentLength(1)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.InDelta(t, 6.5, seconds, 1e-9)
}

func TestClosedReaderRejectsQueries(t *testing.T) {
	r, cleanup := buildTestIndex(t)
	cleanup()

	_, err := r.NgramSearch([]string{"united"})
	require.ErrorIs(t, err, capidxerrors.ErrIndexClosed)

	_, err = r.NgramContains([]string{"united"}, 0)
	require.ErrorIs(t, err, capidxerrors.ErrIndexClosed)

	_, _, err = r.DocumentLength(0)
	require.ErrorIs(t, err, capidxerrors.ErrIndexClosed)

	require.NoError(t, r.Close()) // idempotent
}

func TestNgramContainsOutOfRangeDoc(t *testing.T) {
	r, cleanup := buildTestIndex(t)
	defer cleanup()

	_, err := r.NgramContains([]string{"united"}, 99)
	require.ErrorIs(t, err, capidxerrors.ErrOutOfRange)
}
