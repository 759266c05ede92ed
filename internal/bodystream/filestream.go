// Package bodystream provides the streaming byte source/sink boundary
// used for large request and response bodies.
//
// A Source yields a finite sequence of chunks and signals end-of-data
// with io.EOF. I/O failures surface through the ordinary error return,
// so callers can treat them the same way as any other handler failure.
package bodystream

import (
	"context"
	"fmt"
	"io"
	"os"
)

// chunkSize is the read/write granularity for file-backed streams.
const chunkSize = 32 * 1024

// Source yields a finite sequence of byte chunks. Next returns io.EOF
// after the final chunk. The returned slice is only valid until the
// next call to Next.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Sink consumes a sequence of byte chunks.
type Sink interface {
	Write(ctx context.Context, chunk []byte) error
	Close() error
}

// FileSource streams a file from disk in fixed-size chunks.
type FileSource struct {
	f   *os.File
	buf []byte
}

// Open opens path for streaming reads.
func Open(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stream source: %w", err)
	}
	return &FileSource{f: f, buf: make([]byte, chunkSize)}, nil
}

// Size reports the current size of the underlying file.
func (s *FileSource) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat stream source: %w", err)
	}
	return info.Size(), nil
}

// Next reads the next chunk. It honors context cancellation between
// reads but does not interrupt a read in flight.
func (s *FileSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := s.f.Read(s.buf)
	if n > 0 {
		return s.buf[:n], nil
	}
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read stream source: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// FileSink writes a stream of chunks to a file on disk.
type FileSink struct {
	f *os.File
}

// Create opens path for streaming writes, truncating any existing file.
func Create(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create stream sink: %w", err)
	}
	return &FileSink{f: f}, nil
}

// Write appends one chunk to the file.
func (s *FileSink) Write(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.f.Write(chunk); err != nil {
		return fmt.Errorf("write stream sink: %w", err)
	}
	return nil
}

// Close flushes and releases the underlying file.
func (s *FileSink) Close() error {
	return s.f.Close()
}

// Copy drains src into dst until end-of-data, returning the number of
// bytes transferred. The source is not closed; that stays with the
// caller that opened it.
func Copy(ctx context.Context, dst Sink, src Source) (int64, error) {
	var total int64
	for {
		chunk, err := src.Next(ctx)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if err := dst.Write(ctx, chunk); err != nil {
			return total, err
		}
		total += int64(len(chunk))
	}
}
