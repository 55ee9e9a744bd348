// Package ngramfreq implements the ngram frequency sidecar described in
// captions/index.py's NgramFrequency (original_source): a map from an
// ngram (a short sequence of token ids) to how often it occurs in the
// corpus, relative to the total number of ngrams of that length.
//
// It is built as a side artifact of the shard pass: whichever component
// already has a document's ordered, known-token-id sequence in hand
// (spec.md §4.4 step 4) feeds it to a Counter, which accumulates counts
// under a mutex the way lexicon.CountCorpus accumulates word counts.
package ngramfreq

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// Counter accumulates ngram counts up to MaxN tokens long across many
// documents, safe for concurrent use by one goroutine per document (the
// same concurrency shape as the shard builder's worker pool).
type Counter struct {
	maxN int

	mu     sync.Mutex
	counts map[string]uint64
	totals []uint64
}

// NewCounter returns a Counter that tracks ngrams of length 1..maxN.
func NewCounter(maxN int) *Counter {
	return &Counter{
		maxN:   maxN,
		counts: make(map[string]uint64),
		totals: make([]uint64, maxN),
	}
}

// Add folds one document's ordered sequence of known-token ids into the
// running counts. Unknown tokens should already have been dropped from
// ids by the caller (spec.md §9's unknown-token skip), so no ngram
// contains an unknown token; the known tokens on either side of a dropped
// one are counted as adjacent.
func (c *Counter) Add(ids []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n := 1; n <= c.maxN; n++ {
		if n > len(ids) {
			break
		}
		for i := 0; i+n <= len(ids); i++ {
			key := encodeKey(ids[i : i+n])
			c.counts[key]++
			c.totals[n-1]++
		}
	}
}

// Finish freezes the accumulated counts into a Frequencies table.
func (c *Counter) Finish() *Frequencies {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]uint64, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	totals := make([]uint64, len(c.totals))
	copy(totals, c.totals)
	return &Frequencies{counts: counts, totals: totals}
}

// Frequencies is a read-only ngram -> relative-frequency table.
type Frequencies struct {
	counts map[string]uint64
	totals []uint64
}

// Frequency returns the fraction of all ngrams of len(ids)'s length that
// equal ids. Returns 0 if ids was never observed, or if its length
// exceeds what was counted.
func (f *Frequencies) Frequency(ids []uint32) float64 {
	n := len(ids)
	if n == 0 || n > len(f.totals) || f.totals[n-1] == 0 {
		return 0
	}
	count := f.counts[encodeKey(ids)]
	return float64(count) / float64(f.totals[n-1])
}

// Count returns the raw occurrence count for ids.
func (f *Frequencies) Count(ids []uint32) uint64 {
	return f.counts[encodeKey(ids)]
}

// Len returns the number of distinct ngrams tracked.
func (f *Frequencies) Len() int {
	return len(f.counts)
}

func encodeKey(ids []uint32) string {
	buf := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(buf[i*4:], id)
	}
	return string(buf)
}

// Store persists the table: a totals header (maxN, then maxN u64s)
// followed by one (nLen, count, ids...) record per tracked ngram.
func (f *Frequencies) Store(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ngramfreq: create %s: %w", path, err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(f.totals)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("ngramfreq: write header: %w", err)
	}
	for _, total := range f.totals {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], total)
		if _, err := w.Write(b[:]); err != nil {
			return fmt.Errorf("ngramfreq: write totals: %w", err)
		}
	}
	for key, count := range f.counts {
		n := len(key) / 4
		var rec [4 + 8]byte
		binary.LittleEndian.PutUint32(rec[0:4], uint32(n))
		binary.LittleEndian.PutUint64(rec[4:12], count)
		if _, err := w.Write(rec[:]); err != nil {
			return fmt.Errorf("ngramfreq: write record header: %w", err)
		}
		if _, err := w.WriteString(key); err != nil {
			return fmt.Errorf("ngramfreq: write record ids: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("ngramfreq: flush: %w", err)
	}
	return out.Sync()
}

// Load reads a table previously written by Store.
func Load(path string) (*Frequencies, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ngramfreq: open %s: %w", path, err)
	}
	defer in.Close()

	r := bufio.NewReader(in)
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("ngramfreq: read header: %w", err)
	}
	maxN := binary.LittleEndian.Uint32(hdr[:])

	totals := make([]uint64, maxN)
	for i := range totals {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("ngramfreq: read totals: %w", err)
		}
		totals[i] = binary.LittleEndian.Uint64(b[:])
	}

	counts := make(map[string]uint64)
	for {
		var rec [4 + 8]byte
		_, err := io.ReadFull(r, rec[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ngramfreq: read record header: %w", err)
		}
		n := binary.LittleEndian.Uint32(rec[0:4])
		count := binary.LittleEndian.Uint64(rec[4:12])
		idBuf := make([]byte, 4*n)
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, fmt.Errorf("ngramfreq: read record ids: %w", err)
		}
		counts[string(idBuf)] = count
	}
	return &Frequencies{counts: counts, totals: totals}, nil
}
