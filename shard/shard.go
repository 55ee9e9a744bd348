// Package shard implements the shard builder described in spec.md §4.4:
// for a batch of documents, emit one shard file containing that batch's
// postings, grouped by token and then by document id.
//
// Grounded on build_index.py's inv_index_single_doc / inv_index_batch
// (original_source), re-expressed with blockfmt's shared block writer
// instead of ad hoc file.write calls.
package shard

import (
	"fmt"
	"os"
	"sort"

	"github.com/rpcpool/caption-index/blockfmt"
	"github.com/rpcpool/caption-index/capidxerrors"
	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/codec"
	"github.com/rpcpool/caption-index/lexicon"
	"github.com/rpcpool/caption-index/ngramfreq"
	"k8s.io/klog/v2"
)

// Doc is one document to fold into a shard: its assigned id and raw
// document bytes.
type Doc struct {
	ID   uint32
	Data []byte
}

// Stats summarizes one BuildShard call.
type Stats struct {
	DocsIndexed      int
	DocsSkipped      int
	TokensEmitted    uint64
	UnknownTokens    uint64
	ClampedIntervals uint64
	// DocLengths maps each successfully indexed document's id to its
	// total token count (document_length).
	DocLengths map[uint32]uint64
	// DocDurations maps each successfully indexed document's id to its
	// duration in milliseconds (the latest end timestamp among its
	// caption lines), the document_duration half of document_length's
	// result.
	DocDurations map[uint32]uint64
}

// Builder folds a batch of documents into one shard file.
type Builder struct {
	Lexicon   *lexicon.Lexicon
	Parser    caption.Parser
	Tokenizer caption.Tokenizer
	Format    codec.Format
	// NgramCounter, if set, is fed each document's known-token-id
	// sequence as it is indexed (the ngramfreq supplemented feature).
	NgramCounter *ngramfreq.Counter
}

type postingList struct {
	docID    uint32
	postings []blockfmt.Posting
}

// BuildShard parses every document in the batch (spec.md §4.4 steps 1-4),
// groups the resulting postings by token id ascending then doc id
// ascending, and writes them to outPath (step "Shard write-out").
// Per-document parse failures are recovered: the document contributes no
// postings and a warning is logged (spec.md §7).
func (b *Builder) BuildShard(docs []Doc, outPath string) (Stats, error) {
	byToken := make(map[uint32][]postingList)
	stats := Stats{
		DocLengths:   make(map[uint32]uint64, len(docs)),
		DocDurations: make(map[uint32]uint64, len(docs)),
	}

	for _, doc := range docs {
		docPostings, knownIDs, docStats, err := b.indexDocument(doc)
		stats.UnknownTokens += docStats.UnknownTokens
		stats.ClampedIntervals += docStats.ClampedIntervals
		if err != nil {
			klog.Warningf("shard: skipping doc %d: %v", doc.ID, err)
			stats.DocsSkipped++
			continue
		}
		stats.DocsIndexed++
		stats.DocLengths[doc.ID] = docStats.Length
		stats.DocDurations[doc.ID] = docStats.DurationMS
		if b.NgramCounter != nil {
			b.NgramCounter.Add(knownIDs)
		}
		for tokenID, postings := range docPostings {
			stats.TokensEmitted += uint64(len(postings))
			byToken[tokenID] = append(byToken[tokenID], postingList{docID: doc.ID, postings: postings})
		}
	}

	tokenIDs := make([]uint32, 0, len(byToken))
	for t := range byToken {
		tokenIDs = append(tokenIDs, t)
	}
	sort.Slice(tokenIDs, func(i, j int) bool { return tokenIDs[i] < tokenIDs[j] })

	f, err := os.Create(outPath)
	if err != nil {
		return stats, fmt.Errorf("shard: create %s: %w", outPath, err)
	}
	defer f.Close()

	w := blockfmt.NewWriter(f, b.Format, 0)
	for _, tokenID := range tokenIDs {
		group := byToken[tokenID]
		sort.Slice(group, func(i, j int) bool { return group[i].docID < group[j].docID })
		if _, err := w.WriteTokenHeader(tokenID, len(group)); err != nil {
			return stats, fmt.Errorf("shard: write token %d header: %w", tokenID, err)
		}
		for _, g := range group {
			if err := w.WriteDocHeader(g.docID, len(g.postings)); err != nil {
				return stats, fmt.Errorf("shard: write doc %d header: %w", g.docID, err)
			}
			for _, p := range g.postings {
				if err := w.WritePosting(p); err != nil {
					return stats, fmt.Errorf("shard: write posting: %w", err)
				}
			}
		}
	}
	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("shard: flush %s: %w", outPath, err)
	}
	return stats, f.Sync()
}

type docStats struct {
	UnknownTokens    uint64
	ClampedIntervals uint64
	Length           uint64
	DurationMS       uint64
}

// indexDocument runs spec.md §4.4 steps 1-4 for one document. The
// returned docStats.Length is the document's total token count
// (known and unknown), used to populate document_length. knownIDs is
// the document's token sequence with unknown tokens dropped, in
// position order, used to feed the ngramfreq counter.
func (b *Builder) indexDocument(doc Doc) (_ map[uint32][]blockfmt.Posting, knownIDs []uint32, stats docStats, err error) {
	lines, err := b.Parser.Parse(doc.Data)
	if err != nil {
		return nil, nil, stats, fmt.Errorf("%w: %v", capidxerrors.ErrMalformedInput, err)
	}

	maxInterval := b.Format.MaxInterval()
	out := make(map[uint32][]blockfmt.Posting)
	var position uint64

	for _, line := range lines {
		startMS := uint64(line.Start.Milliseconds())
		endMS := uint64(line.End.Milliseconds())
		if endMS < startMS {
			klog.Warningf("shard: doc %d: end %dms < start %dms, clamping", doc.ID, endMS, startMS)
			endMS = startMS
			stats.ClampedIntervals++
		}
		if endMS > stats.DurationMS {
			stats.DurationMS = endMS
		}
		if endMS-startMS > maxInterval {
			klog.Warningf("shard: doc %d: interval %dms exceeds max %dms, clamping", doc.ID, endMS-startMS, maxInterval)
			endMS = startMS + maxInterval
			stats.ClampedIntervals++
		}

		for _, token := range b.Tokenizer.Tokenize(line.Text) {
			word, err := b.Lexicon.LookupByToken(token)
			if err != nil {
				// Unknown tokens are skipped for posting emission but
				// still advance position (spec.md §9).
				klog.V(4).Infof("shard: doc %d: unknown token %q at position %d", doc.ID, token, position)
				stats.UnknownTokens++
				position++
				continue
			}
			out[word.ID] = append(out[word.ID], blockfmt.Posting{
				Position: position,
				Start:    startMS,
				End:      endMS,
			})
			knownIDs = append(knownIDs, word.ID)
			position++
		}
	}
	stats.Length = position
	return out, knownIDs, stats, nil
}
