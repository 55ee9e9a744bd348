// Package lexicon implements the bijection between token strings and
// dense integer ids described in spec.md §4.2: sorted by token for
// deterministic ids across rebuilds of the same corpus, with a
// per-word corpus occurrence count and a jump offset into the final index
// file.
//
// Grounded on captions/index.py's Lexicon (original_source), re-expressed
// as a persistent, length-prefixed record stream in the style of
// indexmeta.Meta's key-value encoding.
package lexicon

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rpcpool/caption-index/capidxerrors"
)

// Sentinel marks a lexicon entry that has no postings in the final index
// (the token was never seen, or only appeared as an unknown token).
const Sentinel int64 = -1

// Word is one lexicon entry: (id, token, count, jump_offset).
type Word struct {
	ID     uint32
	Token  string
	Count  uint64
	Offset int64
}

// Lexicon is a read-only-after-build bijection token <-> id.
type Lexicon struct {
	words   []Word
	byToken map[string]uint32
}

// New builds a Lexicon from words already sorted by id (0..len-1) and by
// token. Callers that build fresh lexicons should use Build instead, which
// performs the sort.
func New(words []Word) (*Lexicon, error) {
	l := &Lexicon{words: words, byToken: make(map[string]uint32, len(words))}
	var prev *Word
	for i := range words {
		w := &words[i]
		if uint32(i) != w.ID {
			return nil, fmt.Errorf("lexicon: word at index %d has id %d, ids must be dense", i, w.ID)
		}
		if prev != nil && w.Token <= prev.Token {
			return nil, fmt.Errorf("lexicon: not sorted by token at id %d", w.ID)
		}
		l.byToken[w.Token] = w.ID
		prev = w
	}
	return l, nil
}

// Build assigns dense ids [0, |L|) to tokens in lexicographic order given
// a token->count table (spec.md §4.2, build order step (ii)). Offsets
// start out as Sentinel; they are filled in by the merge phase via
// WithOffsets.
func Build(counts map[string]uint64) *Lexicon {
	tokens := make([]string, 0, len(counts))
	for t := range counts {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)

	words := make([]Word, len(tokens))
	for i, t := range tokens {
		words[i] = Word{ID: uint32(i), Token: t, Count: counts[t], Offset: Sentinel}
	}
	l, err := New(words)
	if err != nil {
		// Build's own invariants (dense ids from sort.Strings, unique
		// tokens from a map) make this unreachable.
		panic(err)
	}
	return l
}

// WithOffsets returns a copy of the lexicon with jump_offset fields
// replaced by offsets (indexed by id). Entries whose token never appears
// in the final index should pass Sentinel.
func (l *Lexicon) WithOffsets(offsets []int64) (*Lexicon, error) {
	if len(offsets) != len(l.words) {
		return nil, fmt.Errorf("lexicon: offsets length %d does not match lexicon size %d", len(offsets), len(l.words))
	}
	words := make([]Word, len(l.words))
	copy(words, l.words)
	for i := range words {
		words[i].Offset = offsets[i]
	}
	return New(words)
}

// Size returns |L|.
func (l *Lexicon) Size() int {
	return len(l.words)
}

// LookupByToken returns the word for a token, or ErrUnknownToken.
func (l *Lexicon) LookupByToken(token string) (Word, error) {
	id, ok := l.byToken[token]
	if !ok {
		return Word{}, fmt.Errorf("%w: %q", capidxerrors.ErrUnknownToken, token)
	}
	return l.words[id], nil
}

// LookupByID returns the word for an id, or ErrOutOfRange.
func (l *Lexicon) LookupByID(id uint32) (Word, error) {
	if int(id) >= len(l.words) {
		return Word{}, fmt.Errorf("%w: id %d >= size %d", capidxerrors.ErrOutOfRange, id, len(l.words))
	}
	return l.words[id], nil
}

// Contains reports whether token is present.
func (l *Lexicon) Contains(token string) bool {
	_, ok := l.byToken[token]
	return ok
}

// All iterates the lexicon in id order.
func (l *Lexicon) All() []Word {
	out := make([]Word, len(l.words))
	copy(out, l.words)
	return out
}

// record layout: id(u32) tokenLen(u32) count(u64) offset(i64) token(bytes)
const recordFixedLen = 4 + 4 + 8 + 8

// Store persists the lexicon sorted by id (also sorted by token, per
// invariant) as a length-prefixed record stream.
func (l *Lexicon) Store(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lexicon: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var hdr [recordFixedLen]byte
	for _, word := range l.words {
		binary.LittleEndian.PutUint32(hdr[0:4], word.ID)
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(word.Token)))
		binary.LittleEndian.PutUint64(hdr[8:16], word.Count)
		binary.LittleEndian.PutUint64(hdr[16:24], uint64(word.Offset))
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("lexicon: write record header: %w", err)
		}
		if _, err := w.WriteString(word.Token); err != nil {
			return fmt.Errorf("lexicon: write token: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("lexicon: flush: %w", err)
	}
	return f.Sync()
}

// Load reads a lexicon previously written by Store.
func Load(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var words []Word
	var hdr [recordFixedLen]byte
	for {
		_, err := io.ReadFull(r, hdr[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lexicon: read record header: %w", err)
		}
		id := binary.LittleEndian.Uint32(hdr[0:4])
		tokenLen := binary.LittleEndian.Uint32(hdr[4:8])
		count := binary.LittleEndian.Uint64(hdr[8:16])
		offset := int64(binary.LittleEndian.Uint64(hdr[16:24]))

		tokenBuf := make([]byte, tokenLen)
		if _, err := io.ReadFull(r, tokenBuf); err != nil {
			return nil, fmt.Errorf("lexicon: read token: %w", err)
		}
		words = append(words, Word{ID: id, Token: string(tokenBuf), Count: count, Offset: offset})
	}
	return New(words)
}
