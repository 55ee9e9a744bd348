// Package merge implements the external multi-way merge described in
// spec.md §4.5: shard files, each holding postings for a disjoint batch
// of documents, are combined into a single index file with postings
// grouped by token id (ascending) and, within each token, by doc id
// (ascending).
//
// The merge runs in two phases, grounded on build_index.py's
// parallel_merge_inv_indexes / merge_inv_indexes (original_source):
//
//   - Phase A partitions the token-id space across workers. Each worker
//     opens its own shardParser per shard file, restricted to its
//     partition's [minToken, maxToken) range, and drains a token
//     priority queue (outer) / doc priority queue (inner) to write one
//     partition file.
//   - Phase B concatenates the partition files into the final index in
//     partition order, rebasing each partition's locally-recorded jump
//     offsets by the cumulative byte size of the partitions before it.
//
// Posting bytes are never re-decoded during the merge: shardParser reads
// them as opaque bytes and blockfmt.Writer.WriteRaw copies them through.
package merge

import (
	"container/heap"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/rpcpool/caption-index/codec"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Partition is a contiguous, half-open range of token ids assigned to one
// merge worker.
type Partition struct {
	MinToken uint32
	MaxToken uint32
}

// Plan splits [0, lexiconSize) into up to workers contiguous partitions.
// Grounded on build_index.py's even split of the token id space across
// multiprocessing.Pool workers.
func Plan(lexiconSize, workers int) []Partition {
	if lexiconSize <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > lexiconSize {
		workers = lexiconSize
	}
	base := lexiconSize / workers
	rem := lexiconSize % workers
	parts := make([]Partition, 0, workers)
	var start uint32
	for i := 0; i < workers; i++ {
		size := base
		if i < rem {
			size++
		}
		if size == 0 {
			continue
		}
		end := start + uint32(size)
		parts = append(parts, Partition{MinToken: start, MaxToken: end})
		start = end
	}
	return parts
}

// partitionKey fingerprints a (token, doc) pair for the cross-shard
// duplicate-pair check (spec.md §4.5): no document may contribute
// postings for the same token from two different shards, since every
// document belongs to exactly one shard.
func partitionKey(token, doc uint32) uint64 {
	var b [8]byte
	b[0] = byte(token >> 24)
	b[1] = byte(token >> 16)
	b[2] = byte(token >> 8)
	b[3] = byte(token)
	b[4] = byte(doc >> 24)
	b[5] = byte(doc >> 16)
	b[6] = byte(doc >> 8)
	b[7] = byte(doc)
	return xxhash.Sum64(b[:])
}

// mergePartition runs Phase A for one partition, writing a self-contained
// block file to outPath and returning the jump offset (local to that
// file) at which each token's block begins.
func mergePartition(shardPaths []string, format codec.Format, part Partition, outPath string) (map[uint32]int64, error) {
	parsers := make([]*shardParser, 0, len(shardPaths))
	defer func() {
		for _, p := range parsers {
			_ = p.close()
		}
	}()

	var th tokenHeap
	for _, path := range shardPaths {
		p, err := newShardParser(path, format, part.MinToken, part.MaxToken)
		if err != nil {
			return nil, err
		}
		parsers = append(parsers, p)
		if p.hasToken() {
			th = append(th, p)
		}
	}
	heap.Init(&th)

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("merge: create partition file %s: %w", outPath, err)
	}
	defer out.Close()

	w := blockfmt.NewWriter(out, format, 0)
	offsets := make(map[uint32]int64)

	for th.Len() > 0 {
		group := []*shardParser{heap.Pop(&th).(*shardParser)}
		token := group[0].token()
		for th.Len() > 0 && th[0].token() == token {
			group = append(group, heap.Pop(&th).(*shardParser))
		}

		var dh docHeap
		var totalDocs int
		for _, g := range group {
			totalDocs += int(g.curNDocs)
			dh = append(dh, g)
		}
		heap.Init(&dh)

		offset, err := w.WriteTokenHeader(token, totalDocs)
		if err != nil {
			return nil, fmt.Errorf("merge: write token %d: %w", token, err)
		}
		offsets[token] = offset

		seen := make(map[uint64]struct{}, totalDocs)
		for dh.Len() > 0 {
			g := heap.Pop(&dh).(*shardParser)
			d := g.doc()

			key := partitionKey(token, d.docID)
			if _, dup := seen[key]; dup {
				return nil, fmt.Errorf("%w: token %d doc %d appears in more than one shard", capidxerrors.ErrIntegrity, token, d.docID)
			}
			seen[key] = struct{}{}

			if err := w.WriteDocHeader(d.docID, int(d.numPostings)); err != nil {
				return nil, fmt.Errorf("merge: write doc %d header: %w", d.docID, err)
			}
			if err := w.WriteRaw(d.raw); err != nil {
				return nil, fmt.Errorf("merge: write doc %d postings: %w", d.docID, err)
			}

			if err := g.advanceDoc(); err != nil {
				return nil, err
			}
			if g.hasDoc() {
				heap.Push(&dh, g)
				continue
			}
			if err := g.advanceToken(); err != nil {
				return nil, err
			}
			if g.hasToken() {
				heap.Push(&th, g)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("merge: flush partition file %s: %w", outPath, err)
	}
	return offsets, nil
}

// Result is the outcome of a full Merge: the final index file has been
// written to outPath, and Offsets[tokenID] gives the byte offset of that
// token's block within it (spec.md §6's jump-offset table), -1 for a
// token never observed in any shard.
type Result struct {
	Offsets []int64
}

// Merge combines shardPaths into a single index file at outPath using up
// to workers partition workers, then concatenates the partitions in
// order (Phase B). lexiconSize bounds the token id space.
func Merge(shardPaths []string, lexiconSize, workers int, format codec.Format, outPath, scratchDir string) (Result, error) {
	parts := Plan(lexiconSize, workers)
	if len(parts) == 0 {
		return Result{Offsets: make([]int64, lexiconSize)}, nil
	}

	partFiles := make([]string, len(parts))
	partOffsets := make([]map[uint32]int64, len(parts))

	var g errgroup.Group
	for i, part := range parts {
		i, part := i, part
		scratchName := filepath.Join(scratchDir, fmt.Sprintf("merge-%s.bin", uuid.NewString()))
		partFiles[i] = scratchName
		g.Go(func() error {
			offs, err := mergePartition(shardPaths, format, part, scratchName)
			if err != nil {
				return fmt.Errorf("merge: partition [%d,%d): %w", part.MinToken, part.MaxToken, err)
			}
			partOffsets[i] = offs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cleanupScratch(partFiles)
		return Result{}, err
	}
	defer cleanupScratch(partFiles)

	offsets := make([]int64, lexiconSize)
	for i := range offsets {
		offsets[i] = -1
	}

	final, err := os.Create(outPath)
	if err != nil {
		return Result{}, fmt.Errorf("merge: create %s: %w", outPath, err)
	}
	defer final.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if cap(buf.B) < 1<<20 {
		buf.B = make([]byte, 1<<20)
	} else {
		buf.B = buf.B[:1<<20]
	}

	var cumulative int64
	for i, path := range partFiles {
		for token, localOff := range partOffsets[i] {
			offsets[token] = cumulative + localOff
		}
		n, err := copyFile(final, path, buf.B)
		if err != nil {
			cleanupScratch(partFiles)
			return Result{}, fmt.Errorf("merge: concatenate partition %d: %w", i, err)
		}
		cumulative += n
	}

	klog.Infof("merge: wrote %s (%d bytes, %d partitions)", outPath, cumulative, len(parts))
	return Result{Offsets: offsets}, nil
}

func copyFile(dst *os.File, srcPath string, bufBytes []byte) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return io.CopyBuffer(dst, src, bufBytes)
}

func cleanupScratch(paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			klog.Warningf("merge: cleanup %s: %v", p, err)
		}
	}
}
