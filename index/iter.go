package index

import (
	"fmt"
	"io"

	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/codec"
	"github.com/rpcpool/caption-index/lexicon"
)

// tokenDocIter walks one token's doc sub-blocks in ascending doc-id
// order, starting from the token's jump offset into the mmap-backed
// index file. A token with lexicon.Sentinel as its offset has no
// postings in the final index and starts out done.
type tokenDocIter struct {
	r           *blockfmt.Reader
	left        uint32
	done        bool
	doc         uint32
	numPostings uint32
	raw         []byte
}

func newTokenDocIter(ra io.ReaderAt, raLen int64, format codec.Format, tokenID uint32, offset int64) (*tokenDocIter, error) {
	if offset == lexicon.Sentinel {
		return &tokenDocIter{done: true}, nil
	}
	section := io.NewSectionReader(ra, offset, raLen-offset)
	br := blockfmt.NewReader(section, format)
	gotToken, numDocs, ok, err := br.ReadTokenHeader()
	if err != nil {
		return nil, fmt.Errorf("index: token %d: read block at offset %d: %w", tokenID, offset, err)
	}
	if !ok || gotToken != tokenID {
		return nil, fmt.Errorf("index: corrupt jump offset for token %d (got token %d, ok=%v)", tokenID, gotToken, ok)
	}
	it := &tokenDocIter{r: br, left: numDocs}
	if err := it.advance(format); err != nil {
		return nil, err
	}
	return it, nil
}

// advance loads the next doc sub-block, or marks the iterator done once
// the token's declared doc count is exhausted.
func (it *tokenDocIter) advance(format codec.Format) error {
	if it.left == 0 {
		it.done = true
		return nil
	}
	it.left--
	docID, numPostings, err := it.r.ReadDocHeader()
	if err != nil {
		return fmt.Errorf("index: read doc header: %w", err)
	}
	raw, err := it.r.ReadPostingsRaw(int(numPostings))
	if err != nil {
		return fmt.Errorf("index: read postings: %w", err)
	}
	it.doc = docID
	it.numPostings = numPostings
	it.raw = raw
	return nil
}

func (it *tokenDocIter) postings(format codec.Format) ([]blockfmt.Posting, error) {
	if it.done {
		return nil, nil
	}
	return blockfmt.DecodePostings(format, it.raw, int(it.numPostings))
}
