package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpcpool/caption-index/caption"
	"github.com/rpcpool/caption-index/caption/srt"
	"github.com/rpcpool/caption-index/codec"
	"github.com/rpcpool/caption-index/doctable"
	"github.com/rpcpool/caption-index/docsidecar"
	"github.com/rpcpool/caption-index/index"
	"github.com/rpcpool/caption-index/lexicon"
	"github.com/urfave/cli/v2"
)

// openIndexDir loads the three artifacts a build produces and memory-maps
// the index file, the same trio build.Run writes: words.lex, docs.list,
// index.bin.
func openIndexDir(dir string) (*index.Reader, *lexicon.Lexicon, *doctable.Table, error) {
	lex, err := lexicon.Load(filepath.Join(dir, "words.lex"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query: load lexicon: %w", err)
	}
	docs, err := doctable.Load(filepath.Join(dir, "docs.list"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query: load doc table: %w", err)
	}
	r, err := index.Open(filepath.Join(dir, "index.bin"), lex, docs, codec.Default())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query: open index: %w", err)
	}
	return r, lex, docs, nil
}

func splitTokens(s string) []string {
	fields := strings.Split(s, ",")
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func resolveDocID(docs *doctable.Table, c *cli.Context) (uint32, error) {
	if name := c.String("doc-name"); name != "" {
		return docs.LookupByName(name)
	}
	return uint32(c.Int("doc")), nil
}

var indexDirFlag = &cli.StringFlag{
	Name:     "index",
	Usage:    "Directory holding words.lex, docs.list and index.bin (a build --out directory).",
	Required: true,
}

var tokensFlag = &cli.StringFlag{
	Name:     "tokens",
	Usage:    "Comma-separated token sequence, e.g. \"united,states\".",
	Required: true,
}

func newCmd_Query() *cli.Command {
	return &cli.Command{
		Name:        "query",
		Usage:       "Query a built caption index.",
		Description: "Look up ngrams, confirm containment within a document, list matching time intervals, or report a document's length and duration.",
		Subcommands: []*cli.Command{
			newCmd_QuerySearch(),
			newCmd_QueryContains(),
			newCmd_QueryIntervals(),
			newCmd_QueryDocLen(),
			newCmd_QueryTokens(),
			newCmd_QueryPosition(),
		},
	}
}

func newCmd_QuerySearch() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Find every occurrence of a token sequence across the whole index.",
		Flags: []cli.Flag{indexDirFlag, tokensFlag},
		Action: func(c *cli.Context) error {
			r, _, docs, err := openIndexDir(c.String("index"))
			if err != nil {
				return err
			}
			defer r.Close()

			matches, err := r.NgramSearch(splitTokens(c.String("tokens")))
			if err != nil {
				return fmt.Errorf("query search: %w", err)
			}
			for _, m := range matches {
				name, _ := docs.LookupByID(m.DocID)
				fmt.Printf("%s\tpos=%d\tstart=%dms\tend=%dms\n", name, m.Position, m.Start, m.End)
			}
			return nil
		},
	}
}

func newCmd_QueryContains() *cli.Command {
	return &cli.Command{
		Name:  "contains",
		Usage: "Report whether a token sequence occurs in a specific document.",
		Flags: []cli.Flag{
			indexDirFlag, tokensFlag,
			&cli.IntFlag{Name: "doc", Usage: "Document id."},
			&cli.StringFlag{Name: "doc-name", Usage: "Document name, alternative to --doc."},
		},
		Action: func(c *cli.Context) error {
			r, _, docs, err := openIndexDir(c.String("index"))
			if err != nil {
				return err
			}
			defer r.Close()

			docID, err := resolveDocID(docs, c)
			if err != nil {
				return fmt.Errorf("query contains: %w", err)
			}
			ok, err := r.NgramContains(splitTokens(c.String("tokens")), docID)
			if err != nil {
				return fmt.Errorf("query contains: %w", err)
			}
			fmt.Println(ok)
			return nil
		},
	}
}

func newCmd_QueryIntervals() *cli.Command {
	return &cli.Command{
		Name:  "intervals",
		Usage: "List the time intervals a token sequence occupies within a document.",
		Flags: []cli.Flag{
			indexDirFlag, tokensFlag,
			&cli.IntFlag{Name: "doc", Usage: "Document id."},
			&cli.StringFlag{Name: "doc-name", Usage: "Document name, alternative to --doc."},
		},
		Action: func(c *cli.Context) error {
			r, _, docs, err := openIndexDir(c.String("index"))
			if err != nil {
				return err
			}
			defer r.Close()

			docID, err := resolveDocID(docs, c)
			if err != nil {
				return fmt.Errorf("query intervals: %w", err)
			}
			intervals, err := r.Intervals(splitTokens(c.String("tokens")), docID)
			if err != nil {
				return fmt.Errorf("query intervals: %w", err)
			}
			for _, iv := range intervals {
				fmt.Printf("%d-%dms\n", iv.Start, iv.End)
			}
			return nil
		},
	}
}

func newCmd_QueryDocLen() *cli.Command {
	return &cli.Command{
		Name:  "doclen",
		Usage: "Print a document's token count and duration.",
		Flags: []cli.Flag{
			indexDirFlag,
			&cli.IntFlag{Name: "doc", Usage: "Document id."},
			&cli.StringFlag{Name: "doc-name", Usage: "Document name, alternative to --doc."},
		},
		Action: func(c *cli.Context) error {
			r, _, docs, err := openIndexDir(c.String("index"))
			if err != nil {
				return err
			}
			defer r.Close()

			docID, err := resolveDocID(docs, c)
			if err != nil {
				return fmt.Errorf("query doclen: %w", err)
			}
			tokens, seconds, err := r.DocumentLength(docID)
			if err != nil {
				return fmt.Errorf("query doclen: %w", err)
			}
			fmt.Printf("tokens=%d duration=%.3fs\n", tokens, seconds)
			return nil
		},
	}
}

// loadSidecarDoc resolves a document id to its source file under --docs
// and replays it through the reference parser/tokenizer, per spec.md
// §4.6's note that tokens() and position() delegate to an external
// document-data sidecar rather than the inverted index.
func loadSidecarDoc(docsDir string, docs *doctable.Table, docID uint32) (*docsidecar.Document, error) {
	name, err := docs.LookupByID(docID)
	if err != nil {
		return nil, err
	}
	return docsidecar.Load(filepath.Join(docsDir, name), srt.Parser{}, caption.DefaultTokenizer{})
}

var docsDirFlag = &cli.StringFlag{
	Name:     "docs",
	Usage:    "Directory containing the original source documents (the sidecar re-parses them directly).",
	Required: true,
}

func newCmd_QueryTokens() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "Print the surface tokens at [idx, idx+count) within a document.",
		Flags: []cli.Flag{
			indexDirFlag, docsDirFlag,
			&cli.IntFlag{Name: "doc", Usage: "Document id."},
			&cli.StringFlag{Name: "doc-name", Usage: "Document name, alternative to --doc."},
			&cli.IntFlag{Name: "idx", Usage: "Starting token position."},
			&cli.IntFlag{Name: "count", Usage: "Number of tokens to print.", Value: 1},
		},
		Action: func(c *cli.Context) error {
			docs, err := doctable.Load(filepath.Join(c.String("index"), "docs.list"))
			if err != nil {
				return fmt.Errorf("query tokens: load doc table: %w", err)
			}
			docID, err := resolveDocID(docs, c)
			if err != nil {
				return fmt.Errorf("query tokens: %w", err)
			}
			doc, err := loadSidecarDoc(c.String("docs"), docs, docID)
			if err != nil {
				return fmt.Errorf("query tokens: %w", err)
			}
			toks, err := doc.Tokens(c.Int("idx"), c.Int("count"))
			if err != nil {
				return fmt.Errorf("query tokens: %w", err)
			}
			fmt.Println(strings.Join(toks, " "))
			return nil
		},
	}
}

func newCmd_QueryPosition() *cli.Command {
	return &cli.Command{
		Name:  "position",
		Usage: "Print the token position spoken at a given time offset within a document.",
		Flags: []cli.Flag{
			indexDirFlag, docsDirFlag,
			&cli.IntFlag{Name: "doc", Usage: "Document id."},
			&cli.StringFlag{Name: "doc-name", Usage: "Document name, alternative to --doc."},
			&cli.DurationFlag{Name: "at", Usage: "Time offset, e.g. 1m30s.", Required: true},
		},
		Action: func(c *cli.Context) error {
			docs, err := doctable.Load(filepath.Join(c.String("index"), "docs.list"))
			if err != nil {
				return fmt.Errorf("query position: load doc table: %w", err)
			}
			docID, err := resolveDocID(docs, c)
			if err != nil {
				return fmt.Errorf("query position: %w", err)
			}
			doc, err := loadSidecarDoc(c.String("docs"), docs, docID)
			if err != nil {
				return fmt.Errorf("query position: %w", err)
			}
			pos, err := doc.Position(c.Duration("at"))
			if err != nil {
				return fmt.Errorf("query position: %w", err)
			}
			fmt.Println(pos)
			return nil
		},
	}
}
