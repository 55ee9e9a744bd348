// Package doctable implements the bijection between document names and
// dense integer ids described in spec.md §4.3. Ids are assigned by
// sorting document names at build time; the table is persisted as plain
// text, one "id\tname\tlength\tduration_ms" record per line, in id order.
// Store always writes all four columns, so the file is not a bare
// "id\tname" list; Load also accepts records that carry only id and name.
package doctable

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rpcpool/caption-index/capidxerrors"
)

// Document is one entry in the table. Length is the document's token
// count and DurationMS the latest end timestamp among its caption lines
// (spec.md's document_length operation, returning both halves per
// SPEC_FULL's document_duration supplement); both are 0 until the build
// pipeline's shard pass has counted them.
type Document struct {
	ID         uint32
	Name       string
	Length     uint64
	DurationMS uint64
}

// Table is a read-only-after-build bijection name <-> id.
type Table struct {
	docs   []Document
	byName map[string]uint32
}

// New builds a Table from documents already in id order (0..len-1).
func New(docs []Document) (*Table, error) {
	t := &Table{docs: docs, byName: make(map[string]uint32, len(docs))}
	for i, d := range docs {
		if uint32(i) != d.ID {
			return nil, fmt.Errorf("doctable: document at index %d has id %d, ids must be dense", i, d.ID)
		}
		if _, dup := t.byName[d.Name]; dup {
			return nil, fmt.Errorf("doctable: duplicate document name %q", d.Name)
		}
		t.byName[d.Name] = d.ID
	}
	return t, nil
}

// Build assigns dense ids to a set of document names, sorted
// lexicographically (spec.md §4.3).
func Build(names []string) *Table {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	docs := make([]Document, len(sorted))
	for i, name := range sorted {
		docs[i] = Document{ID: uint32(i), Name: name}
	}
	t, err := New(docs)
	if err != nil {
		panic(err) // unreachable: sort.Strings + de-duplicated caller input
	}
	return t
}

// Size returns |D|.
func (t *Table) Size() int {
	return len(t.docs)
}

// LookupByName returns the id for a document name, or ErrUnknownToken if
// absent (documents reuse the same "not found" error family as tokens).
func (t *Table) LookupByName(name string) (uint32, error) {
	id, ok := t.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: document %q", capidxerrors.ErrUnknownToken, name)
	}
	return id, nil
}

// LookupByID returns the document name for an id, or ErrOutOfRange.
func (t *Table) LookupByID(id uint32) (string, error) {
	if int(id) >= len(t.docs) {
		return "", fmt.Errorf("%w: id %d >= size %d", capidxerrors.ErrOutOfRange, id, len(t.docs))
	}
	return t.docs[id].Name, nil
}

// All iterates the table in id order.
func (t *Table) All() []Document {
	out := make([]Document, len(t.docs))
	copy(out, t.docs)
	return out
}

// Length returns a document's token count, or ErrOutOfRange.
func (t *Table) Length(id uint32) (uint64, error) {
	if int(id) >= len(t.docs) {
		return 0, fmt.Errorf("%w: id %d >= size %d", capidxerrors.ErrOutOfRange, id, len(t.docs))
	}
	return t.docs[id].Length, nil
}

// WithLengths returns a copy of the table with each document's Length set
// from lengths (keyed by id), used once the build pipeline's shard pass
// has counted every document's tokens.
func (t *Table) WithLengths(lengths map[uint32]uint64) *Table {
	docs := make([]Document, len(t.docs))
	copy(docs, t.docs)
	for i := range docs {
		docs[i].Length = lengths[docs[i].ID]
	}
	return &Table{docs: docs, byName: t.byName}
}

// WithDurations returns a copy of the table with each document's
// DurationMS set from durations (keyed by id).
func (t *Table) WithDurations(durations map[uint32]uint64) *Table {
	docs := make([]Document, len(t.docs))
	copy(docs, t.docs)
	for i := range docs {
		docs[i].DurationMS = durations[docs[i].ID]
	}
	return &Table{docs: docs, byName: t.byName}
}

// Duration returns a document's duration in milliseconds, or
// ErrOutOfRange.
func (t *Table) Duration(id uint32) (uint64, error) {
	if int(id) >= len(t.docs) {
		return 0, fmt.Errorf("%w: id %d >= size %d", capidxerrors.ErrOutOfRange, id, len(t.docs))
	}
	return t.docs[id].DurationMS, nil
}

// Store persists the table as one "id\tname\tlength\tduration_ms" record
// per line, in id order.
func (t *Table) Store(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("doctable: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, d := range t.docs {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", d.ID, d.Name, d.Length, d.DurationMS); err != nil {
			return fmt.Errorf("doctable: write record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("doctable: flush: %w", err)
	}
	return f.Sync()
}

// Load reads a document table previously written by Store.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("doctable: open %s: %w", path, err)
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 4)
		if len(fields) < 2 {
			return nil, fmt.Errorf("doctable: malformed record %q", line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("doctable: malformed id in record %q: %w", line, err)
		}
		var length, duration uint64
		if len(fields) >= 3 {
			length, err = strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("doctable: malformed length in record %q: %w", line, err)
			}
		}
		if len(fields) == 4 {
			duration, err = strconv.ParseUint(fields[3], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("doctable: malformed duration in record %q: %w", line, err)
			}
		}
		docs = append(docs, Document{ID: uint32(id), Name: fields[1], Length: length, DurationMS: duration})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("doctable: scan: %w", err)
	}
	return New(docs)
}
