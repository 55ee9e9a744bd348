package lexicon

import (
	"sync"

	"github.com/tidwall/hashmap"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// WordCounter is implemented by callers that can produce the token stream
// for one document (spec.md §4.4 step 1-3, minus the posting/position
// bookkeeping that only the shard builder needs). This is the seam the
// first lexicon-building pass uses; it deliberately only needs a flat
// token list; the shard builder re-parses documents independently to
// recover positions and intervals.
type WordCounter interface {
	CountWords(docPath string) (map[string]uint64, error)
}

// CountWordsFunc adapts a function to WordCounter.
type CountWordsFunc func(docPath string) (map[string]uint64, error)

// CountWords implements WordCounter.
func (f CountWordsFunc) CountWords(docPath string) (map[string]uint64, error) {
	return f(docPath)
}

// CountCorpus runs the parallel word-counting first pass described in
// spec.md §4.2/§5: each worker counts words in its own batch of documents
// independently and returns a local table; aggregation happens under a
// mutex in the orchestrator, mirroring gsfa-write.go's use of
// tidwall/hashmap for a large, hot, concurrently-populated table.
func CountCorpus(paths []string, counter WordCounter, workers int) (map[string]uint64, error) {
	if workers < 1 {
		workers = 1
	}

	totals := hashmap.New[string, uint64](1 << 16)
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			local, err := counter.CountWords(p)
			if err != nil {
				klog.Warningf("lexicon: skipping %s: %v", p, err)
				return nil
			}
			mu.Lock()
			for token, n := range local {
				cur, _ := totals.Get(token)
				totals.Set(token, cur+n)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]uint64, totals.Len())
	for _, token := range totals.Keys() {
		count, _ := totals.Get(token)
		out[token] = count
	}
	klog.Infof("lexicon: counted %d distinct tokens across %d documents", len(out), len(paths))
	return out, nil
}
