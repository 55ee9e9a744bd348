// Package build orchestrates the end-to-end index build described in
// spec.md §4: list documents, build the lexicon, shard the corpus in
// parallel, merge the shards into a single index file, then rewrite the
// lexicon and document table with the offsets and lengths the first two
// passes couldn't yet know.
//
// Grounded directly on build_index.py's main() (original_source): the
// lexicon and shard phases are resumable by checking for the artifact the
// previous run of that phase would have produced, the same idempotency the original
// gets from plain os.path.exists checks.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/codec"
	"github.com/rpcpool/caption-index/doctable"
	"github.com/rpcpool/caption-index/lexicon"
	"github.com/rpcpool/caption-index/merge"
	"github.com/rpcpool/caption-index/metrics"
	"github.com/rpcpool/caption-index/ngramfreq"
	"github.com/rpcpool/caption-index/shard"
	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Config controls one Run.
type Config struct {
	// DocDir holds the source documents.
	DocDir string
	// OutDir receives words.lex, docs.list, index.bin, ngrams.freq, the
	// parts/ shard directory and the tmp/ merge scratch directory. Run
	// removes tmp/ before returning; parts/ is removed only when the shard
	// pass fails and otherwise stays in place after the merge.
	OutDir string
	// Glob selects documents within DocDir. Defaults to "*.srt".
	Glob string
	// Workers bounds parallelism for the lexicon, shard and merge
	// phases. Zero or negative picks a gopsutil-derived default.
	Workers int
	// BatchSize is the number of documents per shard file. Defaults to
	// 100, matching build_index.py's inv_index_all_docs.
	BatchSize int
	// MaxNgram bounds the ngramfreq sidecar's tracked ngram length.
	// Zero disables the sidecar.
	MaxNgram int

	Parser    caption.Parser
	Tokenizer caption.Tokenizer
	Format    codec.Format
}

func (c *Config) setDefaults() error {
	if c.DocDir == "" {
		return fmt.Errorf("build: DocDir is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("build: OutDir is required")
	}
	if c.Glob == "" {
		c.Glob = "*.srt"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Parser == nil {
		return fmt.Errorf("build: Parser is required")
	}
	if c.Tokenizer == nil {
		return fmt.Errorf("build: Tokenizer is required")
	}
	if c.Format == (codec.Format{}) {
		c.Format = codec.Default()
	}
	if c.Workers <= 0 {
		n, err := cpu.Counts(false)
		if err != nil || n <= 0 {
			n = 1
		}
		c.Workers = n
	}
	return nil
}

// Result is the set of build artifacts Run produced.
type Result struct {
	LexiconPath   string
	DocListPath   string
	IndexPath     string
	NgramFreqPath string

	Stats shard.Stats
}

func (c *Config) lexiconPath() string   { return filepath.Join(c.OutDir, "words.lex") }
func (c *Config) docListPath() string   { return filepath.Join(c.OutDir, "docs.list") }
func (c *Config) indexPath() string     { return filepath.Join(c.OutDir, "index.bin") }
func (c *Config) ngramFreqPath() string { return filepath.Join(c.OutDir, "ngrams.freq") }
func (c *Config) partsDir() string      { return filepath.Join(c.OutDir, "parts") }
func (c *Config) tmpDir() string        { return filepath.Join(c.OutDir, "tmp") }

// Run executes the full build pipeline, skipping the lexicon phase when
// words.lex already exists and the shard phase when parts/ already
// exists. The merge and the lexicon/doc-table rewrite always run.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("build: create out dir %s: %w", cfg.OutDir, err)
	}

	docPaths, err := listDocs(cfg.DocDir, cfg.Glob)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(docPaths))
	for i, p := range docPaths {
		names[i] = filepath.Base(p)
	}
	docs := doctable.Build(names)

	lexStart := time.Now()
	lex, err := buildOrLoadLexicon(&cfg, docPaths)
	if err != nil {
		return nil, err
	}
	metrics.LexiconSize.Set(float64(lex.Size()))
	metrics.BuildDurationSeconds.WithLabelValues("lexicon").Observe(time.Since(lexStart).Seconds())

	// Written once, before indexing, matching build_index.py's main();
	// a resumed shard pass leaves the lengths-equipped table from the
	// earlier run alone rather than clobbering it with a zeroed stub.
	if _, err := os.Stat(cfg.docListPath()); err != nil {
		if err := docs.Store(cfg.docListPath()); err != nil {
			return nil, err
		}
	}

	shardStart := time.Now()
	shardPaths, stats, ngramCounter, resumed, err := buildOrLoadShards(ctx, &cfg, docPaths, lex)
	if err != nil {
		return nil, err
	}
	metrics.BuildDurationSeconds.WithLabelValues("shard").Observe(time.Since(shardStart).Seconds())
	metrics.DocumentsIndexed.Add(float64(stats.DocsIndexed))
	metrics.DocumentsSkipped.Add(float64(stats.DocsSkipped))
	metrics.UnknownTokens.Add(float64(stats.UnknownTokens))
	metrics.ShardsWritten.Add(float64(len(shardPaths)))
	if ngramCounter != nil {
		if err := ngramCounter.Finish().Store(cfg.ngramFreqPath()); err != nil {
			return nil, fmt.Errorf("build: store ngram frequencies: %w", err)
		}
	}

	klog.Infof("build: merging %d shards (%d workers)", len(shardPaths), cfg.Workers)
	if err := os.MkdirAll(cfg.tmpDir(), 0o755); err != nil {
		return nil, fmt.Errorf("build: create tmp dir: %w", err)
	}
	defer os.RemoveAll(cfg.tmpDir())

	mergeStart := time.Now()
	mergeResult, err := merge.Merge(shardPaths, lex.Size(), cfg.Workers, cfg.Format, cfg.indexPath(), cfg.tmpDir())
	if err != nil {
		return nil, fmt.Errorf("build: merge: %w", err)
	}
	metrics.BuildDurationSeconds.WithLabelValues("merge").Observe(time.Since(mergeStart).Seconds())

	lex, err = lex.WithOffsets(mergeResult.Offsets)
	if err != nil {
		return nil, fmt.Errorf("build: rewrite lexicon offsets: %w", err)
	}
	if err := lex.Store(cfg.lexiconPath()); err != nil {
		return nil, err
	}

	if resumed {
		// The shard pass didn't run this time, so stats carries no
		// lengths; the table already on disk has them from the run
		// that built these shards.
		if loaded, err := doctable.Load(cfg.docListPath()); err == nil {
			docs = loaded
		}
	} else {
		docs = docs.WithLengths(stats.DocLengths).WithDurations(stats.DocDurations)
		if err := docs.Store(cfg.docListPath()); err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(cfg.indexPath()); err == nil {
		klog.Infof("build: wrote %s (%s)", cfg.indexPath(), humanize.Bytes(uint64(info.Size())))
		metrics.MergeBytesWritten.Add(float64(info.Size()))
	}

	result := &Result{
		LexiconPath: cfg.lexiconPath(),
		DocListPath: cfg.docListPath(),
		IndexPath:   cfg.indexPath(),
		Stats:       stats,
	}
	if cfg.MaxNgram > 0 {
		result.NgramFreqPath = cfg.ngramFreqPath()
	}
	return result, nil
}

func listDocs(dir, glob string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("build: list %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func buildOrLoadLexicon(cfg *Config, docPaths []string) (*lexicon.Lexicon, error) {
	path := cfg.lexiconPath()
	if _, err := os.Stat(path); err == nil {
		klog.Infof("build: loading existing lexicon: %s", path)
		return lexicon.Load(path)
	}

	counter := lexicon.CountWordsFunc(func(docPath string) (map[string]uint64, error) {
		data, err := os.ReadFile(docPath)
		if err != nil {
			return nil, err
		}
		lines, err := cfg.Parser.Parse(data)
		if err != nil {
			return nil, err
		}
		counts := make(map[string]uint64)
		for _, line := range lines {
			for _, tok := range cfg.Tokenizer.Tokenize(line.Text) {
				counts[tok]++
			}
		}
		return counts, nil
	})

	bar := progressbar.Default(int64(len(docPaths)), "building lexicon")
	counts, err := lexicon.CountCorpus(docPaths, countingBar{counter, bar}, cfg.Workers)
	if err != nil {
		return nil, err
	}

	lex := lexicon.Build(counts)
	klog.Infof("build: lexicon size %d", lex.Size())
	if err := lex.Store(path); err != nil {
		return nil, err
	}
	return lex, nil
}

// countingBar wraps a WordCounter to tick a progress bar per document,
// keeping the progressbar concern out of lexicon.CountCorpus itself.
type countingBar struct {
	lexicon.WordCounter
	bar *progressbar.ProgressBar
}

func (c countingBar) CountWords(docPath string) (map[string]uint64, error) {
	counts, err := c.WordCounter.CountWords(docPath)
	_ = c.bar.Add(1)
	return counts, err
}

func buildOrLoadShards(ctx context.Context, cfg *Config, docPaths []string, lex *lexicon.Lexicon) ([]string, shard.Stats, *ngramfreq.Counter, bool, error) {
	dir := cfg.partsDir()
	if _, err := os.Stat(dir); err == nil {
		klog.Infof("build: found existing shards: %s", dir)
		paths, err := filepath.Glob(filepath.Join(dir, "*.bin"))
		if err != nil {
			return nil, shard.Stats{}, nil, false, fmt.Errorf("build: list shards: %w", err)
		}
		sort.Strings(paths)
		return paths, shard.Stats{DocLengths: make(map[uint32]uint64), DocDurations: make(map[uint32]uint64)}, nil, true, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, shard.Stats{}, nil, false, fmt.Errorf("build: create shard dir: %w", err)
	}

	var ngramCounter *ngramfreq.Counter
	if cfg.MaxNgram > 0 {
		ngramCounter = ngramfreq.NewCounter(cfg.MaxNgram)
	}

	var mu sync.Mutex
	total := shard.Stats{
		DocLengths:   make(map[uint32]uint64, len(docPaths)),
		DocDurations: make(map[uint32]uint64, len(docPaths)),
	}
	var shardPaths []string

	bar := progressbar.Default(int64(len(docPaths)), "building shards")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for base := 0; base < len(docPaths); base += cfg.BatchSize {
		base := base
		end := base + cfg.BatchSize
		if end > len(docPaths) {
			end = len(docPaths)
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch := make([]shard.Doc, 0, end-base)
			for i := base; i < end; i++ {
				data, err := os.ReadFile(docPaths[i])
				if err != nil {
					return fmt.Errorf("build: read %s: %w", docPaths[i], err)
				}
				batch = append(batch, shard.Doc{ID: uint32(i), Data: data})
			}
			b := &shard.Builder{
				Lexicon:      lex,
				Parser:       cfg.Parser,
				Tokenizer:    cfg.Tokenizer,
				Format:       cfg.Format,
				NgramCounter: ngramCounter,
			}
			outPath := filepath.Join(dir, fmt.Sprintf("%d.bin", base))
			stats, err := b.BuildShard(batch, outPath)
			if err != nil {
				return fmt.Errorf("build: shard %s: %w", outPath, err)
			}

			mu.Lock()
			shardPaths = append(shardPaths, outPath)
			total.DocsIndexed += stats.DocsIndexed
			total.DocsSkipped += stats.DocsSkipped
			total.TokensEmitted += stats.TokensEmitted
			total.UnknownTokens += stats.UnknownTokens
			total.ClampedIntervals += stats.ClampedIntervals
			for id, n := range stats.DocLengths {
				total.DocLengths[id] = n
			}
			for id, n := range stats.DocDurations {
				total.DocDurations[id] = n
			}
			mu.Unlock()
			_ = bar.Add(end - base)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		os.RemoveAll(dir)
		return nil, shard.Stats{}, nil, false, err
	}

	sort.Strings(shardPaths)
	klog.Infof("build: %d docs indexed, %d skipped, %d unknown tokens",
		total.DocsIndexed, total.DocsSkipped, total.UnknownTokens)
	return shardPaths, total, ngramCounter, false, nil
}
