package codec

import (
	"errors"
	"testing"

	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/stretchr/testify/require"
)

func TestDatumRoundTrip(t *testing.T) {
	f := Default()
	for _, u := range []uint64{0, 1, 255, 65535, f.MaxDatum()} {
		buf, err := f.EncodeDatum(u)
		require.NoError(t, err)
		require.Len(t, buf, f.DatumWidth)
		got, err := f.DecodeDatum(buf)
		require.NoError(t, err)
		require.Equal(t, u, got)
	}
}

func TestDatumOverflow(t *testing.T) {
	f := Default()
	_, err := f.EncodeDatum(f.MaxDatum() + 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, capidxerrors.ErrEncodingOverflow))
}

func TestTimeRoundTrip(t *testing.T) {
	f := Default()
	cases := []struct{ start, end uint64 }{
		{0, 0},
		{1000, 2000},
		{5000, 6500},
		{0, f.MaxInterval()},
	}
	for _, c := range cases {
		buf, err := f.EncodeTime(c.start, c.end)
		require.NoError(t, err)
		require.Len(t, buf, f.TimeWidth())
		gotStart, gotEnd, err := f.DecodeTime(buf)
		require.NoError(t, err)
		require.Equal(t, c.start, gotStart)
		require.Equal(t, c.end, gotEnd)
	}
}

func TestTimeRejectsEndBeforeStart(t *testing.T) {
	f := Default()
	_, err := f.EncodeTime(2000, 1000)
	require.Error(t, err)
	require.True(t, errors.Is(err, capidxerrors.ErrEncodingOverflow))
}

func TestTimeRejectsOverlongInterval(t *testing.T) {
	f := Default()
	_, err := f.EncodeTime(0, f.MaxInterval()+1)
	require.Error(t, err)
	require.True(t, errors.Is(err, capidxerrors.ErrEncodingOverflow))
}

func TestU32RoundTrip(t *testing.T) {
	for _, u := range []uint32{0, 1, 42, 4294967295} {
		buf := EncodeU32(u)
		require.Len(t, buf, U32Width)
		got, err := DecodeU32(buf)
		require.NoError(t, err)
		require.Equal(t, u, got)
	}
}
