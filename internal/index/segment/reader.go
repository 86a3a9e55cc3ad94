package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bibmatch/pkg/errors"
)

// Reader serves posting lists straight from a segment file.
type Reader struct {
	file   *os.File
	header Header
	dict   []DictEntry
}

// OpenReader validates the header, footer and dictionary checksum of the
// segment at path. Structural problems report ErrMalformedIndex.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func open(f *os.File) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: segment too small (%d bytes)", apperrors.ErrMalformedIndex, size)
	}

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrMalformedIndex, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrMalformedIndex, header.Version)
	}
	if header.DictOffset < int64(HeaderSize) || header.DictOffset+header.DictSize+int64(FooterSize) != size {
		return nil, fmt.Errorf("%w: dictionary bounds do not match file size", apperrors.ErrMalformedIndex)
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if sum := crc32.ChecksumIEEE(dictBytes); sum != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("%w: dictionary checksum mismatch", apperrors.ErrMalformedIndex)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("%w: parsing dictionary: %v", apperrors.ErrMalformedIndex, err)
	}
	if len(dict) != int(header.TermCount) {
		return nil, fmt.Errorf("%w: dictionary has %d terms, header says %d",
			apperrors.ErrMalformedIndex, len(dict), header.TermCount)
	}
	return &Reader{file: f, header: header, dict: dict}, nil
}

// Search returns the posting list for term; an absent term yields an
// empty list.
func (r *Reader) Search(term string) ([]int, error) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if i >= len(r.dict) || r.dict[i].Term != term {
		return []int{}, nil
	}
	return r.readPostings(r.dict[i])
}

func (r *Reader) readPostings(entry DictEntry) ([]int, error) {
	data := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(data, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: decoding postings for %q: %v", apperrors.ErrMalformedIndex, entry.Term, err)
	}
	if int(bm.GetCardinality()) != entry.DocFreq {
		return nil, fmt.Errorf("%w: postings for %q have %d ids, dictionary says %d",
			apperrors.ErrMalformedIndex, entry.Term, bm.GetCardinality(), entry.DocFreq)
	}
	ids := make([]int, 0, entry.DocFreq)
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids, nil
}

// Load materializes the whole segment as an in-memory index.
func (r *Reader) Load() (*index.InvertedIndex, error) {
	postings := make(map[string][]int, len(r.dict))
	for _, entry := range r.dict {
		ids, err := r.readPostings(entry)
		if err != nil {
			return nil, err
		}
		postings[entry.Term] = ids
	}
	return index.FromPostings(postings)
}

// Terms returns the number of terms in the segment.
func (r *Reader) Terms() int {
	return len(r.dict)
}

// RecordCount returns the record count the segment was built from.
func (r *Reader) RecordCount() int {
	return int(r.header.RecordCount)
}

func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) Close() error {
	return r.file.Close()
}
