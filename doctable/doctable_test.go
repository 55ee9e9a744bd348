package doctable

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/stretchr/testify/require"
)

func TestBuildSortsByName(t *testing.T) {
	tbl := Build([]string{"B.srt", "A.srt", "C.srt"})
	require.Equal(t, 3, tbl.Size())
	all := tbl.All()
	require.Equal(t, "A.srt", all[0].Name)
	require.Equal(t, "B.srt", all[1].Name)
	require.Equal(t, "C.srt", all[2].Name)
}

func TestLookups(t *testing.T) {
	tbl := Build([]string{"A.srt", "B.srt"})
	id, err := tbl.LookupByName("B.srt")
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	name, err := tbl.LookupByID(0)
	require.NoError(t, err)
	require.Equal(t, "A.srt", name)

	_, err = tbl.LookupByName("nope")
	require.True(t, errors.Is(err, capidxerrors.ErrUnknownToken))

	_, err = tbl.LookupByID(5)
	require.True(t, errors.Is(err, capidxerrors.ErrOutOfRange))
}

func TestStoreLoadRoundTrip(t *testing.T) {
	tbl := Build([]string{"A.srt", "B.srt", "C.srt"})
	path := filepath.Join(t.TempDir(), "docs.list")
	require.NoError(t, tbl.Store(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, tbl.All(), loaded.All())
}

func TestWithLengthsRoundTrip(t *testing.T) {
	tbl := Build([]string{"A.srt", "B.srt"})
	withLen := tbl.WithLengths(map[uint32]uint64{0: 10, 1: 25})
	withLen = withLen.WithDurations(map[uint32]uint64{0: 1500, 1: 4200})

	n, err := withLen.Length(1)
	require.NoError(t, err)
	require.EqualValues(t, 25, n)

	d, err := withLen.Duration(1)
	require.NoError(t, err)
	require.EqualValues(t, 4200, d)

	path := filepath.Join(t.TempDir(), "docs.list")
	require.NoError(t, withLen.Store(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, withLen.All(), loaded.All())

	_, err = withLen.Length(5)
	require.ErrorIs(t, err, capidxerrors.ErrOutOfRange)
	_, err = withLen.Duration(5)
	require.ErrorIs(t, err, capidxerrors.ErrOutOfRange)
}
