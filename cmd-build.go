package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpcpool/caption-index/build"
	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/caption/srt"
	"github.com/rpcpool/caption-index/codec"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newCmd_Build() *cli.Command {
	return &cli.Command{
		Name:        "build",
		Usage:       "Build a caption index from a directory of subtitle documents.",
		Description: "Parses every matching document under --docs, builds a lexicon, shards the corpus, and merges it into a single memory-mappable index under --out.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "docs",
				Usage:    "Directory containing source caption documents.",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "out",
				Usage:    "Output directory for words.lex, docs.list, index.bin.",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "glob",
				Usage: "Glob pattern selecting documents within --docs.",
				Value: "*.srt",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallelism for the lexicon, shard and merge phases. 0 picks a CPU-derived default.",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Documents per shard file.",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "max-ngram",
				Usage: "Largest ngram length tracked by the frequency sidecar. 0 disables it.",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "If set, serve Prometheus metrics on this address for the duration of the build (e.g. :9090).",
			},
		},
		Action: func(c *cli.Context) error {
			if addr := c.String("metrics-addr"); addr != "" {
				srv := &http.Server{Addr: addr, Handler: promhttp.Handler()}
				go func() {
					klog.Infof("build: serving metrics on %s", addr)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						klog.Warningf("build: metrics server: %v", err)
					}
				}()
				defer srv.Close()
			}

			cfg := build.Config{
				DocDir:    c.String("docs"),
				OutDir:    c.String("out"),
				Glob:      c.String("glob"),
				Workers:   c.Int("workers"),
				BatchSize: c.Int("batch-size"),
				MaxNgram:  c.Int("max-ngram"),
				Parser:    srt.Parser{},
				Tokenizer: caption.DefaultTokenizer{},
				Format:    codec.Default(),
			}
			result, err := build.Run(c.Context, cfg)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			fmt.Printf("lexicon:    %s\n", result.LexiconPath)
			fmt.Printf("doc table:  %s\n", result.DocListPath)
			fmt.Printf("index:      %s\n", result.IndexPath)
			if result.NgramFreqPath != "" {
				fmt.Printf("ngram freq: %s\n", result.NgramFreqPath)
			}
			fmt.Printf("docs indexed: %d, skipped: %d, unknown tokens: %d\n",
				result.Stats.DocsIndexed, result.Stats.DocsSkipped, result.Stats.UnknownTokens)
			return nil
		},
	}
}
