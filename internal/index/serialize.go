package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

const maxLineLength = 64 << 20

// FormatError describes a line of a serialized index that is not
// "term<TAB>id id id".
type FormatError struct {
	Line   int
	Text   string
	Reason string
}

func (e *FormatError) Error() string {
	text := e.Text
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	return fmt.Sprintf("index line %d: %s: %q", e.Line, e.Reason, text)
}

func (e *FormatError) Unwrap() error {
	return apperrors.ErrMalformedIndex
}

// Serialize writes one "term<TAB>id id id" line per term, terms sorted.
func (ix *InvertedIndex) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for _, term := range ix.Terms() {
		buf = append(buf[:0], term...)
		buf = append(buf, '\t')
		for i, id := range ix.postings[term] {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = strconv.AppendInt(buf, int64(id), 10)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("writing term %q: %w", term, err)
		}
	}
	return bw.Flush()
}

// Deserialize rebuilds an index from Serialize output. Any line that is not
// exactly a non-empty term, one tab and a non-empty list of strictly
// increasing non-negative ids separated by single spaces fails the whole
// read with a *FormatError.
func Deserialize(r io.Reader) (*InvertedIndex, error) {
	ix := newInvertedIndex(1024)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		term, ids, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, &FormatError{Line: lineNo, Text: line, Reason: "missing tab"}
		}
		if term == "" {
			return nil, &FormatError{Line: lineNo, Text: line, Reason: "empty term"}
		}
		if _, dup := ix.postings[term]; dup {
			return nil, &FormatError{Line: lineNo, Text: line, Reason: "duplicate term"}
		}
		list, reason := parseIDs(ids)
		if reason != "" {
			return nil, &FormatError{Line: lineNo, Text: line, Reason: reason}
		}
		ix.postings[term] = list
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return ix, nil
}

func parseIDs(s string) ([]int, string) {
	if s == "" {
		return nil, "empty posting list"
	}
	if strings.Contains(s, "\t") {
		return nil, "unexpected tab in posting list"
	}
	fields := strings.Split(s, " ")
	list := make([]int, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			return nil, "empty id field"
		}
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, "non-numeric id " + strconv.Quote(f)
		}
		if id < 0 {
			return nil, "negative id"
		}
		if n := len(list); n > 0 && list[n-1] >= id {
			return nil, "ids not strictly increasing"
		}
		list = append(list, id)
	}
	return list, ""
}

// WriteFile serializes to path via a temp file and rename.
func (ix *InvertedIndex) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	if err := ix.Serialize(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing index file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

// ReadFile deserializes the index at path. A missing file reports
// fs.ErrNotExist so callers can fall back to building.
func ReadFile(path string) (*InvertedIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()
	ix, err := Deserialize(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}
