package lexicon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/stretchr/testify/require"
)

func TestBuildSortsByToken(t *testing.T) {
	l := Build(map[string]uint64{
		"united":  2,
		"america": 1,
		"states":  2,
	})
	require.Equal(t, 3, l.Size())
	words := l.All()
	require.Equal(t, "america", words[0].Token)
	require.Equal(t, "states", words[1].Token)
	require.Equal(t, "united", words[2].Token)
	for i, w := range words {
		require.EqualValues(t, i, w.ID)
		require.Equal(t, Sentinel, w.Offset)
	}
}

func TestLookupByTokenAndID(t *testing.T) {
	l := Build(map[string]uint64{"a": 1, "b": 2})
	w, err := l.LookupByToken("a")
	require.NoError(t, err)
	require.Equal(t, uint64(1), w.Count)

	_, err = l.LookupByToken("missing")
	require.True(t, errors.Is(err, capidxerrors.ErrUnknownToken))

	_, err = l.LookupByID(99)
	require.True(t, errors.Is(err, capidxerrors.ErrOutOfRange))
}

func TestWithOffsets(t *testing.T) {
	l := Build(map[string]uint64{"a": 1, "b": 2})
	l2, err := l.WithOffsets([]int64{10, 20})
	require.NoError(t, err)
	w, _ := l2.LookupByToken("a")
	require.EqualValues(t, 10, w.Offset)

	_, err = l.WithOffsets([]int64{1})
	require.Error(t, err)
}

func TestStoreLoadRoundTrip(t *testing.T) {
	l := Build(map[string]uint64{"united": 2, "america": 1, "states": 2})
	l, err := l.WithOffsets([]int64{100, Sentinel, 200})
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "words.lex")
	require.NoError(t, l.Store(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, l.Size(), loaded.Size())
	require.Equal(t, l.All(), loaded.All())
}

func TestStoreIsDeterministic(t *testing.T) {
	l := Build(map[string]uint64{"x": 1, "y": 2, "z": 3})
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.lex")
	p2 := filepath.Join(dir, "b.lex")
	require.NoError(t, l.Store(p1))
	require.NoError(t, l.Store(p2))

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}
