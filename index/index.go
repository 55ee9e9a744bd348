// Package index implements the memory-mapped query engine described in
// spec.md §4.6: ngram_contains, ngram_search, intervals and
// document_length over a merged index file, using the lexicon's jump
// offsets to seek directly to a token's postings without scanning the
// file.
//
// Grounded on compactindexsized's read-only mmap query path
// (original teacher package): open once with golang.org/x/exp/mmap,
// serve arbitrarily many concurrent reads against the same mapping, and
// fail closed once the caller calls Close.
package index

import (
	"fmt"
	"sync"
	"time"

	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/rpcpool/caption-index/codec"
	"github.com/rpcpool/caption-index/doctable"
	"github.com/rpcpool/caption-index/lexicon"
	"github.com/rpcpool/caption-index/metrics"
	"golang.org/x/exp/mmap"
)

// Match is one ngram occurrence: the document it was found in, the
// position of its first token, and the time interval it spans.
type Match struct {
	DocID    uint32
	Position uint64
	Start    uint64
	End      uint64
}

// Interval is a matched ngram's time span within a single document.
type Interval struct {
	Start uint64
	End   uint64
}

// Reader serves read-only queries against a merged index file. It is an
// explicit two-state machine (spec.md §7): Open while usable, Closed
// once Close has been called, after which every method returns
// capidxerrors.ErrIndexClosed. A Reader is safe for concurrent use by
// multiple goroutines.
type Reader struct {
	mu     sync.RWMutex
	ra     *mmap.ReaderAt
	format codec.Format
	lex    *lexicon.Lexicon
	docs   *doctable.Table
	closed bool
}

// Open memory-maps the index file at path for read-only querying.
func Open(path string, lex *lexicon.Lexicon, docs *doctable.Table, format codec.Format) (*Reader, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	return &Reader{ra: ra, format: format, lex: lex, docs: docs}, nil
}

// Close unmaps the index file. Subsequent calls are no-ops.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.ra.Close()
}

// NgramSearch returns every occurrence of the token sequence tokens
// across the whole index, in ascending (doc id, position) order. A token
// absent from the lexicon entirely fails with ErrUnknownToken (spec.md
// §7), matching the original's CaptionIndex.__get_word_id raising
// KeyError for the same case.
func (r *Reader) NgramSearch(tokens []string) ([]Match, error) {
	defer observeQuery("ngram_search", time.Now())
	return r.ngramSearch(tokens, nil)
}

// NgramContains reports whether tokens occurs anywhere in document
// docID.
func (r *Reader) NgramContains(tokens []string, docID uint32) (bool, error) {
	defer observeQuery("ngram_contains", time.Now())
	if err := r.checkDoc(docID); err != nil {
		return false, err
	}
	matches, err := r.ngramSearch(tokens, func(d uint32) bool { return d == docID })
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Intervals returns the time interval of every occurrence of tokens
// within document docID.
func (r *Reader) Intervals(tokens []string, docID uint32) ([]Interval, error) {
	defer observeQuery("intervals", time.Now())
	if err := r.checkDoc(docID); err != nil {
		return nil, err
	}
	matches, err := r.ngramSearch(tokens, func(d uint32) bool { return d == docID })
	if err != nil {
		return nil, err
	}
	out := make([]Interval, len(matches))
	for i, m := range matches {
		out[i] = Interval{Start: m.Start, End: m.End}
	}
	return out, nil
}

// DocumentLength returns a document's total token count and its duration
// in seconds (spec.md's document_length(doc) -> (n_tokens,
// duration_seconds), named DocumentLength per SPEC_FULL's
// document_duration supplement).
func (r *Reader) DocumentLength(docID uint32) (tokens uint64, durationSeconds float64, err error) {
	defer observeQuery("document_length", time.Now())
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, 0, capidxerrors.ErrIndexClosed
	}
	tokens, err = r.docs.Length(docID)
	if err != nil {
		return 0, 0, err
	}
	durationMS, err := r.docs.Duration(docID)
	if err != nil {
		return 0, 0, err
	}
	return tokens, float64(durationMS) / 1000.0, nil
}

func observeQuery(operation string, start time.Time) {
	metrics.QueryLatencySeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (r *Reader) checkDoc(docID uint32) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return capidxerrors.ErrIndexClosed
	}
	if int(docID) >= r.docs.Size() {
		return fmt.Errorf("%w: doc %d >= size %d", capidxerrors.ErrOutOfRange, docID, r.docs.Size())
	}
	return nil
}

// ngramSearch is the shared implementation behind NgramSearch,
// NgramContains and Intervals: a k-way sorted-doc-id intersection across
// one tokenDocIter per query token (spec.md §9: treat a phrase query the
// same way regardless of how many documents it is scoped to), followed
// by position-alignment matching within each intersecting document.
func (r *Reader) ngramSearch(tokens []string, filter func(uint32) bool) ([]Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, capidxerrors.ErrIndexClosed
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty token sequence", capidxerrors.ErrMalformedInput)
	}

	raLen := int64(r.ra.Len())
	its := make([]*tokenDocIter, len(tokens))
	for i, tok := range tokens {
		word, err := r.lex.LookupByToken(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", capidxerrors.ErrUnknownToken, tok)
		}
		it, err := newTokenDocIter(r.ra, raLen, r.format, word.ID, word.Offset)
		if err != nil {
			return nil, err
		}
		its[i] = it
	}

	var matches []Match
	for !anyDone(its) {
		target := maxDoc(its)
		if allAt(its, target) {
			if filter == nil || filter(target) {
				lists := make([][]blockfmt.Posting, len(its))
				for i, it := range its {
					ps, err := it.postings(r.format)
					if err != nil {
						return nil, err
					}
					lists[i] = ps
				}
				matches = append(matches, matchDoc(target, lists)...)
			}
			for _, it := range its {
				if err := it.advance(r.format); err != nil {
					return nil, err
				}
			}
			continue
		}
		for _, it := range its {
			if it.doc < target {
				if err := it.advance(r.format); err != nil {
					return nil, err
				}
			}
		}
	}
	return matches, nil
}

func anyDone(its []*tokenDocIter) bool {
	for _, it := range its {
		if it.done {
			return true
		}
	}
	return false
}

func maxDoc(its []*tokenDocIter) uint32 {
	max := its[0].doc
	for _, it := range its[1:] {
		if it.doc > max {
			max = it.doc
		}
	}
	return max
}

func allAt(its []*tokenDocIter, docID uint32) bool {
	for _, it := range its {
		if it.doc != docID {
			return false
		}
	}
	return true
}

// matchDoc finds every start position p in lists[0] such that
// lists[i] contains a posting at position p+i for every i, i.e. every
// occurrence of the full token sequence within one document.
func matchDoc(docID uint32, lists [][]blockfmt.Posting) []Match {
	if len(lists) == 0 || len(lists[0]) == 0 {
		return nil
	}
	tails := make([]map[uint64]blockfmt.Posting, len(lists)-1)
	for i := 1; i < len(lists); i++ {
		m := make(map[uint64]blockfmt.Posting, len(lists[i]))
		for _, p := range lists[i] {
			m[p.Position] = p
		}
		tails[i-1] = m
	}

	var out []Match
	for _, p0 := range lists[0] {
		last := p0
		ok := true
		for i := 1; i < len(lists); i++ {
			p, found := tails[i-1][p0.Position+uint64(i)]
			if !found {
				ok = false
				break
			}
			last = p
		}
		if ok {
			out = append(out, Match{DocID: docID, Position: p0.Position, Start: p0.Start, End: last.End})
		}
	}
	return out
}
