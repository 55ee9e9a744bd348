// Package docsidecar implements spec.md §4.6's "external document-data
// sidecar": tokens(doc, idx, count) and position(doc, t), both explicitly
// carved out of the inverted index proper. Where the index answers "does
// this phrase occur, and where", the sidecar answers "what token sits at
// this position" and "what position is spoken at this time" by replaying
// the original document through the same caption.Parser/caption.Tokenizer
// pair the build pipeline indexed it with.
package docsidecar

import (
	"fmt"
	"os"
	"time"

	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/capidxerrors"
)

// placedToken is a surface token together with the time span of the line
// it was tokenized from, matching the granularity a Posting records
// (spec.md §3: a line's start/end applies to every token in that line).
type placedToken struct {
	text  string
	start time.Duration
	end   time.Duration
}

// Document is one document's replayed token stream, positioned the same
// way the shard builder positioned it during indexing: tokens numbered in
// parse order starting at 0, one entry per token.
type Document struct {
	tokens []placedToken
}

// Load re-parses and re-tokenizes a document exactly as the build
// pipeline would have, reproducing the position numbering the index was
// built with.
func Load(path string, parser caption.Parser, tokenizer caption.Tokenizer) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("docsidecar: read %s: %w", path, err)
	}
	lines, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("docsidecar: parse %s: %w", path, err)
	}

	var tokens []placedToken
	for _, line := range lines {
		for _, tok := range tokenizer.Tokenize(line.Text) {
			tokens = append(tokens, placedToken{text: tok, start: line.Start, end: line.End})
		}
	}
	return &Document{tokens: tokens}, nil
}

// Tokens returns the count surface tokens starting at position idx
// (spec.md's tokens(doc, idx, count) -> [token_id], returned here as
// surface strings since the sidecar has no lexicon of its own).
func (d *Document) Tokens(idx, count int) ([]string, error) {
	if idx < 0 || idx > len(d.tokens) {
		return nil, fmt.Errorf("%w: idx %d out of [0, %d]", capidxerrors.ErrOutOfRange, idx, len(d.tokens))
	}
	end := idx + count
	if end > len(d.tokens) {
		end = len(d.tokens)
	}
	out := make([]string, 0, end-idx)
	for _, t := range d.tokens[idx:end] {
		out = append(out, t.text)
	}
	return out, nil
}

// Position returns the position of the first token whose line interval
// covers instant t (spec.md's position(doc, t) -> position). If t falls
// between two lines, the following line's first token is returned; if t
// is past the document's end, ErrOutOfRange is returned.
func (d *Document) Position(t time.Duration) (int, error) {
	for i, tok := range d.tokens {
		if t <= tok.end {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: time %s past document end", capidxerrors.ErrOutOfRange, t)
}

// Len returns the document's total token count.
func (d *Document) Len() int {
	return len(d.tokens)
}
