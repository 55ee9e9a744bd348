package merge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/codec"
	"github.com/stretchr/testify/require"
)

// writeShard writes a single-token shard file at path: token has one doc
// per id in docIDs, each with one posting.
func writeShard(t *testing.T, path string, format codec.Format, token uint32, docIDs []uint32) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := blockfmt.NewWriter(f, format, 0)
	_, err = w.WriteTokenHeader(token, len(docIDs))
	require.NoError(t, err)
	for _, d := range docIDs {
		require.NoError(t, w.WriteDocHeader(d, 1))
		require.NoError(t, w.WritePosting(blockfmt.Posting{Position: 0, Start: 0, End: 1000}))
	}
	require.NoError(t, w.Flush())
}

func TestMergeOrdersDocsAcrossShards(t *testing.T) {
	// spec.md §8 merge scenario: token T in shard-1 docs {2,5}, shard-2
	// doc {3}, merged in ascending doc-id order [2,3,5].
	format := codec.Default()
	dir := t.TempDir()

	shard1 := filepath.Join(dir, "shard-1.bin")
	shard2 := filepath.Join(dir, "shard-2.bin")
	writeShard(t, shard1, format, 7, []uint32{2, 5})
	writeShard(t, shard2, format, 7, []uint32{3})

	out := filepath.Join(dir, "index.bin")
	result, err := Merge([]string{shard1, shard2}, 8, 2, format, out, dir)
	require.NoError(t, err)
	require.NotEqual(t, int64(-1), result.Offsets[7])

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Seek(result.Offsets[7], 0)
	require.NoError(t, err)

	r := blockfmt.NewReader(f, format)
	tok, nDocs, ok, err := r.ReadTokenHeader()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 7, tok)
	require.EqualValues(t, 3, nDocs)

	var gotDocs []uint32
	for i := 0; i < 3; i++ {
		docID, numPostings, err := r.ReadDocHeader()
		require.NoError(t, err)
		require.NoError(t, r.SkipPostings(int(numPostings)))
		gotDocs = append(gotDocs, docID)
	}
	require.Equal(t, []uint32{2, 3, 5}, gotDocs)
}

func TestMergeRejectsDuplicateDocAcrossShards(t *testing.T) {
	format := codec.Default()
	dir := t.TempDir()

	shard1 := filepath.Join(dir, "shard-1.bin")
	shard2 := filepath.Join(dir, "shard-2.bin")
	writeShard(t, shard1, format, 7, []uint32{2})
	writeShard(t, shard2, format, 7, []uint32{2})

	out := filepath.Join(dir, "index.bin")
	_, err := Merge([]string{shard1, shard2}, 8, 1, format, out, dir)
	require.Error(t, err)
}

func TestPlanSplitsContiguously(t *testing.T) {
	parts := Plan(10, 3)
	require.Len(t, parts, 3)
	require.Equal(t, uint32(0), parts[0].MinToken)
	var prev uint32
	for _, p := range parts {
		require.Equal(t, prev, p.MinToken)
		require.Greater(t, p.MaxToken, p.MinToken)
		prev = p.MaxToken
	}
	require.EqualValues(t, 10, prev)
}
