// Package segment stores an inverted index as a single binary snapshot
// file. Layout: a 64-byte header, roaring-bitmap posting blocks, a JSON
// dictionary sorted by term and a 32-byte footer carrying the dictionary
// checksum.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index"
)

const (
	MagicBytes    uint32 = 0x42494258 // "BIBX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// Header is the fixed-size block at offset 0.
type Header struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	RecordCount uint32
	CreatedAt   int64
	DictOffset  int64
	DictSize    int64
	PostOffset  int64
	PostSize    int64
}

// DictEntry locates one term's posting block, relative to PostOffset.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// WriteFile writes ix to path atomically: a .tmp file is written and
// synced, then renamed. recordCount is stored so a reader can check it
// against the records source.
func WriteFile(path string, ix *index.InvertedIndex, recordCount int) error {
	if ix.Len() == 0 {
		return fmt.Errorf("cannot write empty segment")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	if err := write(f, ix, recordCount); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

type offsetWriter struct {
	w   io.Writer
	off int64
}

func (o *offsetWriter) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	o.off += int64(n)
	return n, err
}

func write(f *os.File, ix *index.InvertedIndex, recordCount int) error {
	header := Header{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		TermCount:   uint32(ix.Len()),
		RecordCount: uint32(recordCount),
		CreatedAt:   time.Now().Unix(),
	}
	// Placeholder header, rewritten once offsets are known.
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	ow := &offsetWriter{w: f, off: int64(HeaderSize)}
	header.PostOffset = ow.off
	dict := make([]DictEntry, 0, ix.Len())
	var werr error
	ix.Each(func(term string, ids []int) {
		if werr != nil {
			return
		}
		bm := roaring.New()
		for _, id := range ids {
			bm.Add(uint32(id))
		}
		bm.RunOptimize()
		data, err := bm.ToBytes()
		if err != nil {
			werr = fmt.Errorf("encoding postings for term %q: %w", term, err)
			return
		}
		offset := ow.off - header.PostOffset
		if _, err := ow.Write(data); err != nil {
			werr = fmt.Errorf("writing postings for term %q: %w", term, err)
			return
		}
		dict = append(dict, DictEntry{
			Term:       term,
			PostOffset: offset,
			PostLen:    len(data),
			DocFreq:    len(ids),
		})
	})
	if werr != nil {
		return werr
	}
	header.PostSize = ow.off - header.PostOffset

	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	header.DictOffset = ow.off
	header.DictSize = int64(len(dictData))
	if _, err := ow.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], header.RecordCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.PostSize))
	if _, err := ow.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	if _, err := f.WriteAt(encodeHeader(header), 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	return nil
}

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.RecordCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.PostSize))
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		TermCount:   binary.LittleEndian.Uint32(b[8:12]),
		RecordCount: binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(b[16:24])),
		DictOffset:  int64(binary.LittleEndian.Uint64(b[24:32])),
		DictSize:    int64(binary.LittleEndian.Uint64(b[32:40])),
		PostOffset:  int64(binary.LittleEndian.Uint64(b[40:48])),
		PostSize:    int64(binary.LittleEndian.Uint64(b[48:56])),
	}
}
