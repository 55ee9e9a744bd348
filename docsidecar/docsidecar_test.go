package docsidecar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/caption/srt"
	"github.com/stretchr/testify/require"
)

const sample = `1
00:00:00,000 --> 00:00:02,000
United States

2
00:00:05,000 --> 00:00:06,500
The United States
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.srt")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestTokensSlice(t *testing.T) {
	path := writeSample(t)
	doc, err := Load(path, srt.Parser{}, caption.DefaultTokenizer{})
	require.NoError(t, err)
	require.Equal(t, 5, doc.Len())

	toks, err := doc.Tokens(0, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"united", "states"}, toks)

	toks, err = doc.Tokens(2, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"the", "united", "states"}, toks)

	_, err = doc.Tokens(99, 1)
	require.Error(t, err)
}

func TestPositionFindsLine(t *testing.T) {
	path := writeSample(t)
	doc, err := Load(path, srt.Parser{}, caption.DefaultTokenizer{})
	require.NoError(t, err)

	pos, err := doc.Position(1 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, pos)

	pos, err = doc.Position(6 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, pos)

	_, err = doc.Position(10 * time.Second)
	require.Error(t, err)
}
