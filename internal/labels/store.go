package labels

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/candidate"
	"github.com/mohammad-safakhou/adaptwatch/internal/flock"
	"go.uber.org/zap"
)

const (
	dayLayout    = "2006-01-02"
	partitionExt = ".csv"
	lockName     = ".lock"
)

// Mirror receives a copy of every record after it is durably appended.
type Mirror interface {
	Insert(ctx context.Context, rec Record) error
}

// Store is the label dataset: one CSV file per UTC day under dir, rows of
// content_hash,verdict with no header. Rows are only ever appended.
type Store struct {
	dir    string
	now    func() time.Time
	mirror Mirror
	logger *zap.Logger

	mu    sync.Mutex
	index map[string]Record
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to date records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMirror sets a secondary sink, e.g. the Postgres label table.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open creates dir if needed and indexes the existing partitions.
func Open(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("labels: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("labels: create dir: %w", err)
	}
	s := &Store{dir: dir, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	recs, err := s.scan()
	if err != nil {
		return nil, err
	}
	s.index = indexOf(recs)
	return s, nil
}

// Dir returns the partition directory.
func (s *Store) Dir() string { return s.dir }

// Contains reports whether hash already has a label record.
func (s *Store) Contains(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[strings.ToLower(hash)]
	return ok, nil
}

// Lookup returns the record stored for hash.
func (s *Store) Lookup(hash string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.index[strings.ToLower(hash)]
	return rec, ok
}

// Append writes rec to the partition for its UTC day, creating the file if
// needed. Writers hold the directory lock (dir/.lock) for the rescan and the
// write, so runs dating records on different days still see each other's
// rows. The row is either fully written or not at all. A hash that is
// already labeled in any partition yields ErrAlreadyLabeled.
func (s *Store) Append(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	hash, ok := candidate.NormalizeHash(rec.ContentHash)
	if !ok {
		return Record{}, InvalidRecordError{Field: "content_hash", Value: rec.ContentHash}
	}
	if !rec.Verdict.Valid() {
		return Record{}, InvalidRecordError{Field: "verdict", Value: string(rec.Verdict)}
	}
	rec.ContentHash = hash
	if rec.Date.IsZero() {
		rec.Date = s.now()
	}
	rec.Date = rec.Date.UTC().Truncate(24 * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.index[hash]; dup {
		return Record{}, fmt.Errorf("%w: %s", ErrAlreadyLabeled, hash)
	}

	lock, err := flock.Acquire(filepath.Join(s.dir, lockName))
	if err != nil {
		return Record{}, fmt.Errorf("labels: %w", err)
	}
	defer func() { _ = lock.Release() }()

	// Another process may have written since the index was built.
	recs, err := s.scan()
	if err != nil {
		return Record{}, err
	}
	s.index = indexOf(recs)
	if _, dup := s.index[hash]; dup {
		return Record{}, fmt.Errorf("%w: %s", ErrAlreadyLabeled, hash)
	}

	f, err := os.OpenFile(s.partitionPath(rec.Day()), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return Record{}, fmt.Errorf("labels: open partition: %w", err)
	}
	defer f.Close()

	offset, err := s.repairTail(f)
	if err != nil {
		return Record{}, err
	}
	row, err := encodeRow(rec)
	if err != nil {
		return Record{}, err
	}
	n, err := f.WriteAt(row, offset)
	if err == nil && n != len(row) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if terr := f.Truncate(offset); terr != nil {
			s.logger.Error("labels: rollback partial row failed", zap.String("partition", f.Name()), zap.Error(terr))
		}
		return Record{}, fmt.Errorf("labels: append: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Record{}, fmt.Errorf("labels: sync: %w", err)
	}
	s.index[hash] = rec

	if s.mirror != nil {
		if err := s.mirror.Insert(ctx, rec); err != nil {
			s.logger.Warn("labels: mirror insert failed", zap.String("content_hash", hash), zap.Error(err))
		}
	}
	return rec, nil
}

// Records returns every record in partition order, then row order.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan()
}

// Stats summarises the dataset.
type Stats struct {
	Partitions int
	Total      int
	ByVerdict  map[Verdict]int
}

// Stats counts records per verdict across all partitions.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	recs, err := s.Records(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByVerdict: make(map[Verdict]int, 3)}
	days := make(map[string]struct{})
	for _, r := range recs {
		st.Total++
		st.ByVerdict[r.Verdict]++
		days[r.Day()] = struct{}{}
	}
	st.Partitions = len(days)
	return st, nil
}

func (s *Store) partitionPath(day string) string {
	return filepath.Join(s.dir, day+partitionExt)
}

// scan reads all partitions. Rows that are not hash,verdict pairs are
// skipped; the first record for a hash wins.
func (s *Store) scan() ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+partitionExt))
	if err != nil {
		return nil, fmt.Errorf("labels: list partitions: %w", err)
	}
	sort.Strings(paths)
	var out []Record
	for _, p := range paths {
		day, err := time.Parse(dayLayout, strings.TrimSuffix(filepath.Base(p), partitionExt))
		if err != nil {
			continue
		}
		recs, err := s.readPartition(p, day)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *Store) readPartition(path string, day time.Time) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("labels: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var out []Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.logger.Warn("labels: skipping unreadable row", zap.String("partition", path), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("labels: read %s: %w", path, err)
		}
		if len(row) != 2 {
			continue
		}
		hash, ok := candidate.NormalizeHash(row[0])
		if !ok {
			continue
		}
		v, ok := ParseVerdict(row[1])
		if !ok {
			continue
		}
		out = append(out, Record{Date: day, ContentHash: hash, Verdict: v})
	}
	return out, nil
}

// repairTail drops a trailing partial row left by a crashed writer and
// returns the offset the next row should be written at.
func (s *Store) repairTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("labels: stat partition: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, fmt.Errorf("labels: read tail: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("labels: read partition: %w", err)
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	s.logger.Warn("labels: truncating partial row", zap.String("partition", f.Name()), zap.Int64("bytes", size-keep))
	if err := f.Truncate(keep); err != nil {
		return 0, fmt.Errorf("labels: truncate partial row: %w", err)
	}
	return keep, nil
}

func encodeRow(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{rec.ContentHash, string(rec.Verdict)}); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func indexOf(recs []Record) map[string]Record {
	idx := make(map[string]Record, len(recs))
	for _, r := range recs {
		if _, ok := idx[r.ContentHash]; !ok {
			idx[r.ContentHash] = r
		}
	}
	return idx
}
