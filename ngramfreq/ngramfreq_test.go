package ngramfreq

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCounterUnigramAndBigram(t *testing.T) {
	c := NewCounter(2)
	c.Add([]uint32{1, 2, 1, 2, 3})
	f := c.Finish()

	require.EqualValues(t, 2, f.Count([]uint32{1}))
	require.EqualValues(t, 1, f.Count([]uint32{3}))
	require.EqualValues(t, 2, f.Count([]uint32{1, 2}))
	require.EqualValues(t, 1, f.Count([]uint32{2, 1}))
	require.EqualValues(t, 0, f.Count([]uint32{9, 9}))

	require.InDelta(t, 2.0/5.0, f.Frequency([]uint32{1}), 1e-9)
	require.InDelta(t, 2.0/4.0, f.Frequency([]uint32{1, 2}), 1e-9)
}

func TestCounterAccumulatesAcrossDocuments(t *testing.T) {
	c := NewCounter(1)
	c.Add([]uint32{1, 1})
	c.Add([]uint32{1})
	f := c.Finish()
	require.EqualValues(t, 3, f.Count([]uint32{1}))
}

func TestFrequenciesStoreLoadRoundTrip(t *testing.T) {
	c := NewCounter(2)
	c.Add([]uint32{5, 6, 7})
	f := c.Finish()

	path := filepath.Join(t.TempDir(), "ngrams.bin")
	require.NoError(t, f.Store(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, f.Count([]uint32{5, 6}), loaded.Count([]uint32{5, 6}))
	require.Equal(t, f.Len(), loaded.Len())
	require.InDelta(t, f.Frequency([]uint32{6, 7}), loaded.Frequency([]uint32{6, 7}), 1e-9)
}

func TestFrequencyOfUnseenNgramIsZero(t *testing.T) {
	f := NewCounter(2).Finish()
	require.Zero(t, f.Frequency([]uint32{1, 2}))
}
