package shard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/caption/srt"
	"github.com/rpcpool/caption-index/codec"
	"github.com/rpcpool/caption-index/lexicon"
	"github.com/rpcpool/caption-index/ngramfreq"
	"github.com/stretchr/testify/require"
)

func testLexicon() *lexicon.Lexicon {
	return lexicon.Build(map[string]uint64{
		"united": 2,
		"states": 2,
		"the":    1,
	})
}

func TestBuildShardBasicScenario(t *testing.T) {
	// spec.md §8 scenario 1: two documents sharing a bigram.
	docA := []byte("1\n00:00:00,000 --> 00:00:02,000\nUNITED STATES\n\n")
	docB := []byte("1\n00:00:05,000 --> 00:00:06,500\nTHE UNITED STATES\n\n")

	b := &Builder{
		Lexicon:   testLexicon(),
		Parser:    srt.Parser{},
		Tokenizer: caption.DefaultTokenizer{},
		Format:    codec.Default(),
	}
	out := filepath.Join(t.TempDir(), "0.bin")
	stats, err := b.BuildShard([]Doc{{ID: 0, Data: docA}, {ID: 1, Data: docB}}, out)
	require.NoError(t, err)
	require.Equal(t, 2, stats.DocsIndexed)
	require.Zero(t, stats.UnknownTokens)
	require.EqualValues(t, 2, stats.DocLengths[0]) // "UNITED STATES"
	require.EqualValues(t, 3, stats.DocLengths[1]) // "THE UNITED STATES"
	require.EqualValues(t, 2000, stats.DocDurations[0])
	require.EqualValues(t, 6500, stats.DocDurations[1])

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	r := blockfmt.NewReader(f, codec.Default())
	statesID, err := b.Lexicon.LookupByToken("states")
	require.NoError(t, err)

	tok, nDocs, ok, err := r.ReadTokenHeader()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, statesID.ID, tok)
	require.EqualValues(t, 2, nDocs) // "states" occurs in both docs
}

func TestBuildShardSkipsMalformedDocument(t *testing.T) {
	b := &Builder{
		Lexicon:   testLexicon(),
		Parser:    srt.Parser{},
		Tokenizer: caption.DefaultTokenizer{},
		Format:    codec.Default(),
	}
	out := filepath.Join(t.TempDir(), "0.bin")
	stats, err := b.BuildShard([]Doc{{ID: 0, Data: []byte("garbage\n\n")}}, out)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DocsSkipped)
	require.Equal(t, 0, stats.DocsIndexed)
}

func TestBuildShardUnknownTokenStillIncrementsPosition(t *testing.T) {
	lex := lexicon.Build(map[string]uint64{"hello": 1})
	b := &Builder{
		Lexicon:   lex,
		Parser:    srt.Parser{},
		Tokenizer: caption.DefaultTokenizer{},
		Format:    codec.Default(),
	}
	doc := []byte("1\n00:00:00,000 --> 00:00:02,000\nhello unknownword hello\n\n")
	out := filepath.Join(t.TempDir(), "0.bin")
	stats, err := b.BuildShard([]Doc{{ID: 0, Data: doc}}, out)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.UnknownTokens)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	r := blockfmt.NewReader(f, codec.Default())
	_, nDocs, ok, err := r.ReadTokenHeader()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, nDocs)
	_, nPost, err := r.ReadDocHeader()
	require.NoError(t, err)
	require.EqualValues(t, 2, nPost)
	raw, err := r.ReadPostingsRaw(int(nPost))
	require.NoError(t, err)
	postings, err := blockfmt.DecodePostings(codec.Default(), raw, int(nPost))
	require.NoError(t, err)
	require.Equal(t, uint64(0), postings[0].Position)
	require.Equal(t, uint64(2), postings[1].Position) // position 1 was the skipped unknown token
}

func TestBuildShardClampsInvertedInterval(t *testing.T) {
	// spec.md §8 scenario 3: a line whose end precedes its start is
	// clamped to a zero-length interval rather than rejected.
	lex := lexicon.Build(map[string]uint64{"hello": 1})
	b := &Builder{
		Lexicon:   lex,
		Parser:    srt.Parser{},
		Tokenizer: caption.DefaultTokenizer{},
		Format:    codec.Default(),
	}
	doc := []byte("1\n00:00:05,000 --> 00:00:02,000\nhello\n\n")
	out := filepath.Join(t.TempDir(), "0.bin")
	stats, err := b.BuildShard([]Doc{{ID: 0, Data: doc}}, out)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.ClampedIntervals)
	require.EqualValues(t, 5000, stats.DocDurations[0])

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	r := blockfmt.NewReader(f, codec.Default())
	_, nDocs, ok, err := r.ReadTokenHeader()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, nDocs)
	_, nPost, err := r.ReadDocHeader()
	require.NoError(t, err)
	raw, err := r.ReadPostingsRaw(int(nPost))
	require.NoError(t, err)
	postings, err := blockfmt.DecodePostings(codec.Default(), raw, int(nPost))
	require.NoError(t, err)
	require.Equal(t, uint64(5000), postings[0].Start)
	require.Equal(t, uint64(5000), postings[0].End)
}

func TestBuildShardClampsOversizedInterval(t *testing.T) {
	// spec.md §8 scenario 4: a line whose duration exceeds MAX_INTERVAL
	// (codec.Default()'s EndWidth=2 bytes, 65535ms) is clamped to the
	// widest encodable interval rather than overflowing the codec.
	lex := lexicon.Build(map[string]uint64{"hello": 1})
	b := &Builder{
		Lexicon:   lex,
		Parser:    srt.Parser{},
		Tokenizer: caption.DefaultTokenizer{},
		Format:    codec.Default(),
	}
	doc := []byte("1\n00:00:00,000 --> 00:20:00,000\nhello\n\n")
	out := filepath.Join(t.TempDir(), "0.bin")
	stats, err := b.BuildShard([]Doc{{ID: 0, Data: doc}}, out)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.ClampedIntervals)
	require.EqualValues(t, 1200000, stats.DocDurations[0]) // duration tracks the real end, not the clamped posting

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	r := blockfmt.NewReader(f, codec.Default())
	_, nDocs, ok, err := r.ReadTokenHeader()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, nDocs)
	_, nPost, err := r.ReadDocHeader()
	require.NoError(t, err)
	raw, err := r.ReadPostingsRaw(int(nPost))
	require.NoError(t, err)
	postings, err := blockfmt.DecodePostings(codec.Default(), raw, int(nPost))
	require.NoError(t, err)
	require.Equal(t, uint64(0), postings[0].Start)
	require.Equal(t, codec.Default().MaxInterval(), postings[0].End-postings[0].Start)
}

func TestBuildShardFeedsNgramCounter(t *testing.T) {
	lex := lexicon.Build(map[string]uint64{"united": 2, "states": 2})
	counter := ngramfreq.NewCounter(2)
	b := &Builder{
		Lexicon:      lex,
		Parser:       srt.Parser{},
		Tokenizer:    caption.DefaultTokenizer{},
		Format:       codec.Default(),
		NgramCounter: counter,
	}
	doc := []byte("1\n00:00:00,000 --> 00:00:02,000\nUNITED STATES\n\n")
	out := filepath.Join(t.TempDir(), "0.bin")
	_, err := b.BuildShard([]Doc{{ID: 0, Data: doc}}, out)
	require.NoError(t, err)

	unitedID, err := lex.LookupByToken("united")
	require.NoError(t, err)
	statesID, err := lex.LookupByToken("states")
	require.NoError(t, err)

	freqs := counter.Finish()
	require.EqualValues(t, 1, freqs.Count([]uint32{unitedID.ID}))
	require.EqualValues(t, 1, freqs.Count([]uint32{unitedID.ID, statesID.ID}))
}
