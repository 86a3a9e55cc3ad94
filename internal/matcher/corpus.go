package matcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/index/segment"
	"github.com/Adithya-Monish-Kumar-K/bibmatch/internal/record"
)

// Index sources reported by Stats.
const (
	SourceSnapshot = "snapshot"
	SourceIndex    = "index"
	SourceBuilt    = "built"
)

const lockRetryDelay = 100 * time.Millisecond

// Paths are the files derived from a corpus basename.
type Paths struct {
	Records  string
	Index    string
	Snapshot string
	Lock     string
}

func PathsFor(basename string) Paths {
	return Paths{
		Records:  basename + ".records",
		Index:    basename + ".index",
		Snapshot: basename + ".seg",
		Lock:     basename + ".lock",
	}
}

// FileLoader reads a records file.
func FileLoader(path string) RecordLoader {
	return func(context.Context) (*record.Store, error) {
		return record.ReadFile(path)
	}
}

// PostgresLoader reads the records table through q.
func PostgresLoader(q record.Querier, table string) RecordLoader {
	return func(ctx context.Context) (*record.Store, error) {
		return record.Load(ctx, q, table)
	}
}

// LoadCorpus loads <basename>.records and its index. The index comes from
// the binary snapshot when it is present and current, else from the text
// index, else it is built from the records and written back to disk under
// an exclusive file lock. Any failure leaves no engine behind.
func LoadCorpus(ctx context.Context, basename string, opts ...Option) (*Engine, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	paths := PathsFor(basename)
	loader := o.loader
	if loader == nil {
		loader = FileLoader(paths.Records)
	}
	start := time.Now()

	var (
		store  *record.Store
		loaded *index.InvertedIndex
		snap   *segment.Reader
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := loader(gctx)
		if err != nil {
			return fmt.Errorf("loading records: %w", err)
		}
		store = s
		return nil
	})
	if !o.rebuild {
		g.Go(func() error {
			r, err := openSnapshot(paths.Snapshot, o.logger)
			if err != nil {
				return err
			}
			if r != nil {
				snap = r
				return nil
			}
			ix, err := index.ReadFile(paths.Index)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("loading index: %w", err)
			}
			loaded = ix
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if snap != nil {
			snap.Close()
		}
		return nil, err
	}

	source := SourceIndex
	if snap != nil {
		ix, err := loadSnapshot(snap, store.Len(), o.logger)
		if err != nil {
			return nil, err
		}
		if ix != nil {
			loaded, source = ix, SourceSnapshot
		} else if loaded, err = readIndexIfPresent(paths.Index); err != nil {
			return nil, err
		}
	}

	writeText := false
	if loaded == nil {
		ix, err := index.Build(store, o.norm)
		if err != nil {
			return nil, fmt.Errorf("building index: %w", err)
		}
		loaded, source, writeText = ix, SourceBuilt, true
	}
	e, err := newEngine(store, loaded, o, source)
	if err != nil {
		return nil, err
	}
	writeSnap := o.writeSnapshot && source != SourceSnapshot
	if writeText || writeSnap {
		if err := persist(ctx, paths, loaded, store.Len(), writeText, writeSnap); err != nil {
			return nil, err
		}
	}
	o.logger.Info("corpus loaded",
		"basename", basename,
		"records", store.Len(),
		"terms", loaded.Len(),
		"source", source,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return e, nil
}

// openSnapshot opens path if it exists. A corrupt snapshot is logged and
// skipped, since the text index or the records can replace it.
func openSnapshot(path string, logger *slog.Logger) (*segment.Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	r, err := segment.OpenReader(path)
	if err != nil {
		logger.Warn("ignoring unreadable snapshot", "path", path, "error", err)
		return nil, nil
	}
	return r, nil
}

// loadSnapshot materializes snap unless it was built from a different
// number of records. It always closes snap.
func loadSnapshot(snap *segment.Reader, records int, logger *slog.Logger) (*index.InvertedIndex, error) {
	defer snap.Close()
	if snap.RecordCount() != records {
		logger.Warn("ignoring stale snapshot",
			"snapshot_records", snap.RecordCount(),
			"records", records,
		)
		return nil, nil
	}
	ix, err := snap.Load()
	if err != nil {
		logger.Warn("ignoring unreadable snapshot", "error", err)
		return nil, nil
	}
	return ix, nil
}

func readIndexIfPresent(path string) (*index.InvertedIndex, error) {
	ix, err := index.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading index: %w", err)
	}
	return ix, nil
}

// persist writes index files while holding the corpus lock, so concurrent
// builders never interleave writes.
func persist(ctx context.Context, paths Paths, ix *index.InvertedIndex, records int, text, snapshot bool) error {
	lock := flock.New(paths.Lock)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquiring corpus lock %s: %w", paths.Lock, err)
	}
	if !locked {
		return fmt.Errorf("acquiring corpus lock %s: not acquired", paths.Lock)
	}
	defer lock.Unlock()

	if text {
		if err := ix.WriteFile(paths.Index); err != nil {
			return fmt.Errorf("writing index: %w", err)
		}
	}
	if snapshot {
		if err := segment.WriteFile(paths.Snapshot, ix, records); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}
	return nil
}
