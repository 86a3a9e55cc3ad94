package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

// FieldCount is the number of tab-separated fields in a records line.
const FieldCount = 8

const maxLineLength = 1 << 20

// ParseError reports the line of a records source that failed to parse.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseLine splits one records line into a Record. Missing trailing fields
// are left empty; extra fields are an error.
func ParseLine(line string) (Record, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(fields) > FieldCount {
		return Record{}, fmt.Errorf("%w: %d fields, want at most %d",
			apperrors.ErrMalformedRecord, len(fields), FieldCount)
	}
	for len(fields) < FieldCount {
		fields = append(fields, "")
	}
	rec := Record{
		Key:     fields[0],
		Authors: fields[1],
		Year:    fields[2],
		Title:   fields[3],
		Journal: fields[4],
		Pages:   fields[5],
		URL:     fields[6],
		EE:      fields[7],
	}
	if err := Validate(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// FormatLine is the inverse of ParseLine.
func FormatLine(r *Record) string {
	return strings.Join([]string{r.Key, r.Authors, r.Year, r.Title, r.Journal, r.Pages, r.URL, r.EE}, "\t")
}

// Read parses a records stream. Blank lines are skipped; the first bad line
// aborts the read.
func Read(r io.Reader, source string) (*Store, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)
	var recs []Record
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return nil, &ParseError{Source: source, Line: lineNo, Err: err}
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}
	return NewStore(recs)
}

// ReadFile reads a records file. A missing file reports ErrCorpusNotFound.
func ReadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrCorpusNotFound, path)
		}
		return nil, fmt.Errorf("opening records file: %w", err)
	}
	defer f.Close()
	return Read(f, path)
}

// WriteFile writes the store in records-file format.
func WriteFile(path string, s *Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating records file: %w", err)
	}
	w := bufio.NewWriter(f)
	s.Each(func(_ int, r *Record) {
		w.WriteString(FormatLine(r))
		w.WriteByte('\n')
	})
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing records file: %w", err)
	}
	return f.Close()
}
