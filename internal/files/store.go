package files

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// ErrFileTooLarge is returned by Save when the upload exceeds the size limit.
var ErrFileTooLarge = errors.New("file too large")

// ErrEmptyFile is returned by Save when the upload has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// Upload describes a stored CSV file.
type Upload struct {
	Handle    string   `json:"file"`
	Name      string   `json:"name"`
	Size      int64    `json:"size"`
	Headers   []string `json:"headers"`
	TotalRows int      `json:"total_rows"`
}

// Store keeps uploaded CSV files in a Storage backend and serves their rows.
// It implements core.FileSource. Handles are random UUIDs, so stored files
// are immutable and row counts are cached.
type Store struct {
	storage  Storage
	encoding encoding.Encoding
	maxSize  int64

	mu     sync.RWMutex
	counts map[string]int
}

// NewStore creates a store decoding files with the named encoding.
func NewStore(storage Storage, encodingName string, maxSize int64) (*Store, error) {
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &Store{
		storage:  storage,
		encoding: enc,
		maxSize:  maxSize,
		counts:   make(map[string]int),
	}, nil
}

var _ core.FileSource = (*Store)(nil)

// Save stores an uploaded file and returns its handle, headers and row count.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (Upload, error) {
	handle := uuid.NewString() + ".csv"

	counter := &countingReader{r: r, limit: s.maxSize}
	if err := s.storage.Put(ctx, handle, counter, -1, "text/csv"); err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return Upload{}, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxSize)
		}
		return Upload{}, fmt.Errorf("store upload: %w", err)
	}

	headers, err := s.Headers(ctx, handle)
	if err != nil {
		_ = s.Delete(ctx, handle)
		return Upload{}, err
	}
	total, err := s.RowCount(ctx, handle)
	if err != nil {
		_ = s.Delete(ctx, handle)
		return Upload{}, err
	}

	slog.Info("upload stored", "file", handle, "name", name, "bytes", counter.n, "rows", total)
	return Upload{Handle: handle, Name: name, Size: counter.n, Headers: headers, TotalRows: total}, nil
}

// Delete removes a stored file.
func (s *Store) Delete(ctx context.Context, handle string) error {
	if err := validHandle(handle); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.counts, handle)
	s.mu.Unlock()
	return s.storage.Delete(ctx, handle)
}

// Headers returns the header row.
func (s *Store) Headers(ctx context.Context, handle string) ([]string, error) {
	var headers []string
	err := s.scan(ctx, handle, func(h []string) error {
		headers = h
		return errStop
	}, nil)
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// RowCount returns the number of data rows.
func (s *Store) RowCount(ctx context.Context, handle string) (int, error) {
	s.mu.RLock()
	n, ok := s.counts[handle]
	s.mu.RUnlock()
	if ok {
		return n, nil
	}

	count := 0
	err := s.scan(ctx, handle, nil, func(int, []string) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.counts[handle] = count
	s.mu.Unlock()
	return count, nil
}

// Rows returns up to limit data rows starting at offset. limit <= 0 reads
// to the end of the file.
func (s *Store) Rows(ctx context.Context, handle string, offset, limit int) ([][]string, error) {
	var rows [][]string
	err := s.scan(ctx, handle, nil, func(i int, rec []string) error {
		if i < offset {
			return nil
		}
		if limit > 0 && len(rows) >= limit {
			return errStop
		}
		rows = append(rows, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

var errStop = errors.New("stop")

// scan streams the file, calling onHeader for the header row and onRow for
// each data row with its 0-based index. Returning errStop ends the scan.
func (s *Store) scan(ctx context.Context, handle string, onHeader func([]string) error, onRow func(int, []string) error) error {
	if err := validHandle(handle); err != nil {
		return err
	}
	rc, err := s.storage.Open(ctx, handle)
	if err != nil {
		return err
	}
	defer rc.Close()

	cr := csv.NewReader(decodeReader(rc, s.encoding))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return ErrEmptyFile
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if onHeader != nil {
		if err := onHeader(header); err != nil {
			return ignoreStop(err)
		}
	}
	if onRow == nil {
		return nil
	}

	for i := 0; ; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read row %d: %w", i+1, err)
		}
		if err := onRow(i, rec); err != nil {
			return ignoreStop(err)
		}
	}
}

func ignoreStop(err error) error {
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func validHandle(handle string) error {
	if len(handle) < 5 || handle[len(handle)-4:] != ".csv" {
		return fmt.Errorf("%w: %q", core.ErrFileNotFound, handle)
	}
	if _, err := uuid.Parse(handle[:len(handle)-4]); err != nil {
		return fmt.Errorf("%w: %q", core.ErrFileNotFound, handle)
	}
	return nil
}

// countingReader counts bytes and fails once more than limit bytes are read.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}
