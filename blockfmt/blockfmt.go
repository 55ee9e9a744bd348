// Package blockfmt implements the on-disk block layout shared by shard
// files and the final index file (spec.md §6):
//
//	repeat over tokens in ascending token_id:
//	  datum[D]          token_id
//	  datum[D]          n_docs          (>= 1)
//	  repeat n_docs:
//	    datum[D]        doc_id
//	    datum[D]        n_postings      (>= 1)
//	    repeat n_postings:
//	      datum[D]      position
//	      bytes[S]      start_ms
//	      bytes[E]      duration_ms
//
// It is deliberately low-level and allocation-light: the shard builder,
// merger and query engine all read and write these primitives directly
// rather than each re-deriving the layout, the way compactindexsized's
// Header/BucketHeader byte layout is shared between build.go and query.go.
package blockfmt

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/rpcpool/caption-index/codec"
)

// Posting is a single (position, start_ms, end_ms) triple.
type Posting struct {
	Position uint64
	Start    uint64
	End      uint64
}

// PostingWidth returns the encoded byte width of one posting under f.
func PostingWidth(f codec.Format) int {
	return f.DatumWidth + f.TimeWidth()
}

// EncodePosting serializes one posting.
func EncodePosting(f codec.Format, p Posting) ([]byte, error) {
	buf := make([]byte, PostingWidth(f))
	if err := f.PutDatum(buf[:f.DatumWidth], p.Position); err != nil {
		return nil, err
	}
	if err := f.PutTime(buf[f.DatumWidth:], p.Start, p.End); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodePosting deserializes one posting from an exact-width buffer.
func DecodePosting(f codec.Format, buf []byte) (Posting, error) {
	if len(buf) != PostingWidth(f) {
		return Posting{}, fmt.Errorf("blockfmt: posting buffer has wrong length %d, want %d", len(buf), PostingWidth(f))
	}
	position, err := f.DecodeDatum(buf[:f.DatumWidth])
	if err != nil {
		return Posting{}, err
	}
	start, end, err := f.DecodeTime(buf[f.DatumWidth:])
	if err != nil {
		return Posting{}, err
	}
	return Posting{Position: position, Start: start, End: end}, nil
}

// DecodePostings decodes a contiguous run of n postings.
func DecodePostings(f codec.Format, buf []byte, n int) ([]Posting, error) {
	w := PostingWidth(f)
	if len(buf) != w*n {
		return nil, fmt.Errorf("blockfmt: postings buffer has wrong length %d, want %d", len(buf), w*n)
	}
	out := make([]Posting, n)
	var prevPos uint64
	for i := 0; i < n; i++ {
		p, err := DecodePosting(f, buf[i*w:(i+1)*w])
		if err != nil {
			return nil, err
		}
		if i > 0 && p.Position <= prevPos {
			return nil, fmt.Errorf("%w: postings out of order (%d <= %d)", capidxerrors.ErrIntegrity, p.Position, prevPos)
		}
		prevPos = p.Position
		out[i] = p
	}
	return out, nil
}

// Writer appends token blocks to an underlying io.Writer, tracking the
// current byte offset so callers (the shard builder, and the merger's
// per-partition pass) can record jump offsets as they go.
type Writer struct {
	f   codec.Format
	w   *bufio.Writer
	off int64
}

// NewWriter wraps w, starting offset accounting at startOffset (0 for a
// fresh file).
func NewWriter(w io.Writer, f codec.Format, startOffset int64) *Writer {
	return &Writer{f: f, w: bufio.NewWriter(w), off: startOffset}
}

// Offset returns the current byte offset (the position the next write
// will land at).
func (bw *Writer) Offset() int64 {
	return bw.off
}

func (bw *Writer) writeDatum(u uint64) error {
	buf, err := bw.f.EncodeDatum(u)
	if err != nil {
		return err
	}
	n, err := bw.w.Write(buf)
	bw.off += int64(n)
	return err
}

// WriteTokenHeader writes a token block's (token_id, n_docs) header and
// returns the offset at which it was written (the token's jump offset).
func (bw *Writer) WriteTokenHeader(tokenID uint32, numDocs int) (offset int64, err error) {
	if numDocs < 1 {
		return 0, fmt.Errorf("%w: token %d has %d docs, want >= 1", capidxerrors.ErrIntegrity, tokenID, numDocs)
	}
	offset = bw.off
	if err := bw.writeDatum(uint64(tokenID)); err != nil {
		return 0, err
	}
	if err := bw.writeDatum(uint64(numDocs)); err != nil {
		return 0, err
	}
	return offset, nil
}

// WriteDocHeader writes a doc sub-block's (doc_id, n_postings) header.
func (bw *Writer) WriteDocHeader(docID uint32, numPostings int) error {
	if numPostings < 1 {
		return fmt.Errorf("%w: doc %d has %d postings, want >= 1", capidxerrors.ErrIntegrity, docID, numPostings)
	}
	if err := bw.writeDatum(uint64(docID)); err != nil {
		return err
	}
	return bw.writeDatum(uint64(numPostings))
}

// WriteRaw copies pre-encoded posting bytes through verbatim (the merge's
// "no re-encoding" requirement from spec.md §4.5).
func (bw *Writer) WriteRaw(b []byte) error {
	n, err := bw.w.Write(b)
	bw.off += int64(n)
	return err
}

// WritePosting encodes and writes one posting.
func (bw *Writer) WritePosting(p Posting) error {
	buf, err := EncodePosting(bw.f, p)
	if err != nil {
		return err
	}
	return bw.WriteRaw(buf)
}

// Flush flushes the underlying buffered writer.
func (bw *Writer) Flush() error {
	return bw.w.Flush()
}

// Reader sequentially reads token blocks from an underlying io.Reader.
type Reader struct {
	f codec.Format
	r io.Reader
}

// NewReader wraps r for sequential block reading.
func NewReader(r io.Reader, f codec.Format) *Reader {
	return &Reader{f: f, r: r}
}

func (br *Reader) readDatum() (uint64, bool, error) {
	buf := make([]byte, br.f.DatumWidth)
	_, err := io.ReadFull(br.r, buf)
	if err == io.EOF {
		return 0, false, nil
	}
	if err == io.ErrUnexpectedEOF {
		return 0, false, fmt.Errorf("blockfmt: truncated datum: %w", err)
	}
	if err != nil {
		return 0, false, err
	}
	u, err := br.f.DecodeDatum(buf)
	return u, true, err
}

// ReadTokenHeader reads the next (token_id, n_docs) header. ok is false at
// clean EOF.
func (br *Reader) ReadTokenHeader() (tokenID uint32, numDocs uint32, ok bool, err error) {
	t, ok, err := br.readDatum()
	if err != nil || !ok {
		return 0, 0, ok, err
	}
	n, ok, err := br.readDatum()
	if err != nil {
		return 0, 0, false, err
	}
	if !ok {
		return 0, 0, false, fmt.Errorf("blockfmt: truncated token header for token %d", t)
	}
	if n == 0 {
		return 0, 0, false, fmt.Errorf("%w: token %d has zero docs", capidxerrors.ErrIntegrity, t)
	}
	return uint32(t), uint32(n), true, nil
}

// ReadDocHeader reads the next (doc_id, n_postings) header within a token
// block.
func (br *Reader) ReadDocHeader() (docID uint32, numPostings uint32, err error) {
	d, ok, err := br.readDatum()
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("blockfmt: truncated doc header")
	}
	n, ok, err := br.readDatum()
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("blockfmt: truncated doc header for doc %d", d)
	}
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: doc %d has zero postings", capidxerrors.ErrIntegrity, d)
	}
	return uint32(d), uint32(n), nil
}

// ReadPostingsRaw reads n postings' worth of raw bytes without decoding
// them (used by the merger to pass posting data through verbatim).
func (br *Reader) ReadPostingsRaw(n int) ([]byte, error) {
	buf := make([]byte, PostingWidth(br.f)*n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		return nil, fmt.Errorf("blockfmt: read postings: %w", err)
	}
	return buf, nil
}

// SkipPostings discards n postings' worth of bytes from a seekable
// reader-like source is not assumed; callers that can seek should prefer
// doing so directly. This helper exists for byte-stream sources (e.g. a
// shard file opened for sequential parsing) where discarding still means
// reading past the bytes.
func (br *Reader) SkipPostings(n int) error {
	_, err := br.ReadPostingsRaw(n)
	return err
}
