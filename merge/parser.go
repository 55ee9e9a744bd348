package merge

import (
	"fmt"
	"os"

	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/codec"
)

// docEntry is one doc sub-block read verbatim from a shard: raw posting
// bytes are kept unparsed so the merger can copy them through without
// re-encoding (spec.md §4.5).
type docEntry struct {
	docID       uint32
	numPostings uint32
	raw         []byte
}

// shardParser advances sequentially through one shard file's token
// blocks, restricted to [minToken, maxToken). It is a self-ordering
// object: its comparison key ((token, doc) at the outer level, doc alone
// at the inner level) changes as it advances, so callers must pop it from
// whichever heap holds it, advance it, then re-push — never mutate its
// key while it sits inside a heap (spec.md §9).
type shardParser struct {
	path      string
	f         *os.File
	r         *blockfmt.Reader
	minToken  uint32
	maxToken  uint32
	done      bool
	curToken  uint32
	curNDocs  uint32
	curLeft   uint32
	curDoc    *docEntry
}

// newShardParser opens path and advances to the first token block inside
// [minToken, maxToken), if any.
func newShardParser(path string, format codec.Format, minToken, maxToken uint32) (*shardParser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("merge: open shard %s: %w", path, err)
	}
	p := &shardParser{
		path:     path,
		f:        f,
		r:        blockfmt.NewReader(f, format),
		minToken: minToken,
		maxToken: maxToken,
	}
	if err := p.advanceToken(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *shardParser) close() error {
	p.done = true
	return p.f.Close()
}

// hasToken reports whether the parser currently sits on a valid token
// block (false at partition/file EOF).
func (p *shardParser) hasToken() bool {
	return !p.done
}

// token returns the current token id. Only valid when hasToken() is true.
func (p *shardParser) token() uint32 {
	return p.curToken
}

// hasDoc reports whether a doc is currently loaded for the current token.
func (p *shardParser) hasDoc() bool {
	return p.curDoc != nil
}

// doc returns the current doc entry. Only valid when hasDoc() is true.
func (p *shardParser) doc() docEntry {
	return *p.curDoc
}

// advanceToken reads token headers until it finds one inside
// [minToken, maxToken), loading its first doc, or reaches EOF / the
// partition boundary. Tokens below minToken have their docs discarded
// without decoding.
func (p *shardParser) advanceToken() error {
	for {
		tokenID, numDocs, ok, err := p.r.ReadTokenHeader()
		if err != nil {
			return fmt.Errorf("merge: %s: read token header: %w", p.path, err)
		}
		if !ok {
			p.done = true
			return nil
		}
		if tokenID >= p.maxToken {
			p.done = true
			return nil
		}
		p.curToken = tokenID
		p.curNDocs = numDocs
		p.curLeft = numDocs
		if tokenID < p.minToken {
			if err := p.discardRemainingDocs(); err != nil {
				return err
			}
			continue
		}
		if err := p.advanceDoc(); err != nil {
			return err
		}
		if !p.hasDoc() {
			return fmt.Errorf("merge: %s: token %d declared %d docs but had none", p.path, tokenID, numDocs)
		}
		return nil
	}
}

// advanceDoc loads the next doc sub-block for the current token, or
// clears curDoc when the token's docs are exhausted.
func (p *shardParser) advanceDoc() error {
	if p.curLeft == 0 {
		p.curDoc = nil
		return nil
	}
	p.curLeft--
	docID, numPostings, err := p.r.ReadDocHeader()
	if err != nil {
		return fmt.Errorf("merge: %s: read doc header: %w", p.path, err)
	}
	raw, err := p.r.ReadPostingsRaw(int(numPostings))
	if err != nil {
		return fmt.Errorf("merge: %s: read postings: %w", p.path, err)
	}
	p.curDoc = &docEntry{docID: docID, numPostings: numPostings, raw: raw}
	return nil
}

// discardRemainingDocs drops every doc sub-block left in the current
// token's block (used when the token falls below minToken) without
// decoding its postings.
func (p *shardParser) discardRemainingDocs() error {
	for p.curLeft > 0 {
		p.curLeft--
		_, numPostings, err := p.r.ReadDocHeader()
		if err != nil {
			return fmt.Errorf("merge: %s: discard doc header: %w", p.path, err)
		}
		if err := p.r.SkipPostings(int(numPostings)); err != nil {
			return fmt.Errorf("merge: %s: discard postings: %w", p.path, err)
		}
	}
	p.curDoc = nil
	return nil
}
