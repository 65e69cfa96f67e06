package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync/atomic"
	"time"

	"github.com/hupe1980/tablo/internal/fs"
)

// FileAccessor implements Accessor over a single dataset file on a
// FileSystem. The file is opened read-only; the accessor never writes to
// the dataset.
type FileAccessor struct {
	path   string
	opts   Options
	file   fs.File // shared handle for random reads; safe via ReadAt
	closed atomic.Bool
}

var _ Accessor = (*FileAccessor)(nil)

// Open opens the dataset file at path for reading.
//
// A missing or unreadable file fails immediately; no retry applies to
// permanent errors.
func Open(path string, optFns ...func(*Options)) (*FileAccessor, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.FileSystem == nil {
		opts.FileSystem = fs.Default
	}

	file, err := opts.FileSystem.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	return &FileAccessor{
		path: path,
		opts: opts,
		file: file,
	}, nil
}

// Path returns the dataset file path.
func (a *FileAccessor) Path() string { return a.path }

// Size returns the current size of the dataset file.
func (a *FileAccessor) Size() (int64, error) {
	if a.closed.Load() {
		return 0, ErrClosed
	}
	return statSize(a.opts.FileSystem.Stat(a.path))
}

// Close releases the shared read handle.
func (a *FileAccessor) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.file.Close()
}

// ReadRowAt reads the single row starting at offset. Transient read
// errors are retried per the configured policy.
func (a *FileAccessor) ReadRowAt(ctx context.Context, offset int64) (RawRow, error) {
	if a.closed.Load() {
		return RawRow{}, ErrClosed
	}
	if offset < 0 {
		return RawRow{}, fmt.Errorf("storage: negative offset %d: %w", offset, ErrNoRowAtOffset)
	}

	buf := make([]byte, a.opts.WindowSize)
	var row RawRow

	err := a.opts.Retry.do(ctx, func() error {
		n, err := a.file.ReadAt(buf, offset)
		if n == 0 {
			if errors.Is(err, io.EOF) {
				return ErrNoRowAtOffset
			}
			return err
		}

		atEOF := errors.Is(err, io.EOF)
		if err != nil && !atEOF {
			return err
		}

		window := buf[:n]
		end := len(window)
		if i := indexNewline(window); i >= 0 {
			end = i + 1
		} else if !atEOF {
			return ErrRowTooLarge
		}

		data := dropLineEnding(window[:end])
		row = RawRow{Offset: offset, Data: append([]byte(nil), data...)}
		return nil
	})
	if err != nil {
		return RawRow{}, err
	}

	return row, nil
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}

// Stream returns an iterator over all physical rows in file order. Each
// call opens its own handle so streams are restartable and independent of
// each other and of random reads.
func (a *FileAccessor) Stream(ctx context.Context) iter.Seq2[RawRow, error] {
	return func(yield func(RawRow, error) bool) {
		if a.closed.Load() {
			yield(RawRow{}, ErrClosed)
			return
		}

		s, err := a.newStream(ctx)
		if err != nil {
			yield(RawRow{}, err)
			return
		}
		defer s.close()

		for {
			if err := ctx.Err(); err != nil {
				yield(RawRow{}, err)
				return
			}
			if a.closed.Load() {
				yield(RawRow{}, ErrClosed)
				return
			}

			row, err := s.next(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if errors.Is(err, ErrRowTooLarge) {
					// Oversized row: surface it and keep going.
					if !yield(row, ErrRowTooLarge) {
						return
					}
					continue
				}
				yield(RawRow{}, err)
				return
			}

			if !yield(row, nil) {
				return
			}

			if a.opts.Throttle != nil {
				if err := a.opts.Throttle(ctx, len(row.Data)+1); err != nil {
					yield(RawRow{}, err)
					return
				}
			}
		}
	}
}

// stream holds per-Stream read state. On a transient error it reconnects
// by reopening the file and seeking back to the current offset.
type stream struct {
	acc    *FileAccessor
	file   fs.File
	reader *bufio.Reader
	offset int64
	buf    []byte
}

func (a *FileAccessor) newStream(ctx context.Context) (*stream, error) {
	var file fs.File
	err := a.opts.Retry.do(ctx, func() error {
		var err error
		file, err = a.opts.FileSystem.OpenFile(a.path, os.O_RDONLY, 0)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: stream %s: %w", a.path, err)
	}

	return &stream{
		acc:    a,
		file:   file,
		reader: bufio.NewReaderSize(file, a.opts.WindowSize),
		buf:    make([]byte, 0, a.opts.WindowSize),
	}, nil
}

func (s *stream) close() {
	if s.file != nil {
		_ = s.file.Close()
	}
}

// reconnect reopens the file and resumes at the current offset.
func (s *stream) reconnect() error {
	_ = s.file.Close()
	file, err := s.acc.opts.FileSystem.OpenFile(s.acc.path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	if _, err := file.Seek(s.offset, io.SeekStart); err != nil {
		_ = file.Close()
		return err
	}
	s.file = file
	s.reader.Reset(file)
	return nil
}

// next reads the next physical row. A row longer than the window returns
// (RawRow{Offset: start}, ErrRowTooLarge) after discarding the row;
// io.EOF signals the end of the file.
func (s *stream) next(ctx context.Context) (RawRow, error) {
	start := s.offset
	s.buf = s.buf[:0]
	tooLong := false
	retries := 0
	backoff := s.acc.opts.Retry.Backoff
	if backoff <= 0 {
		backoff = DefaultRetryPolicy.Backoff
	}

	for {
		frag, err := s.reader.ReadSlice('\n')
		if len(frag) > 0 {
			s.offset += int64(len(frag))
			if !tooLong {
				if len(s.buf)+len(frag) > s.acc.opts.WindowSize {
					tooLong = true
					s.buf = s.buf[:0]
				} else {
					s.buf = append(s.buf, frag...)
				}
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return RawRow{Offset: start}, ErrRowTooLarge
			}
			return RawRow{Offset: start, Data: append([]byte(nil), dropLineEnding(s.buf)...)}, nil

		case errors.Is(err, bufio.ErrBufferFull):
			continue

		case errors.Is(err, io.EOF):
			if tooLong {
				return RawRow{Offset: start}, ErrRowTooLarge
			}
			if len(s.buf) == 0 {
				return RawRow{}, io.EOF
			}
			return RawRow{Offset: start, Data: append([]byte(nil), dropLineEnding(s.buf)...)}, nil

		default:
			if !IsTransient(err) {
				return RawRow{}, err
			}
			if retries >= s.acc.opts.Retry.MaxRetries {
				return RawRow{}, err
			}
			retries++

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return RawRow{}, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2

			// Restart the current row from its first byte.
			s.offset = start
			s.buf = s.buf[:0]
			tooLong = false
			if rerr := s.reconnect(); rerr != nil {
				return RawRow{}, rerr
			}
		}
	}
}
