// Package columnar provides a minimal columnar record-batch representation
// together with a reader/writer pair used to exercise the compaction core's
// streaming read-filter-write pipeline. The real columnar format lives in
// the surrounding table engine; this package stands in for it behind the
// same narrow Reader/Writer contract the core actually depends on.
package columnar

import (
	"bufio"
	"fmt"
	"io"

	"github.com/aalhour/lakestore/internal/checksum"
	"github.com/aalhour/lakestore/internal/compression"
	"github.com/aalhour/lakestore/internal/encoding"
	"github.com/aalhour/lakestore/internal/mempool"
	"github.com/aalhour/lakestore/internal/vfs"
)

// Batch is a decoded, schema-opaque run of rows. Rows are carried as raw
// payloads; compaction never interprets their contents, only their count
// and position.
type Batch struct {
	Rows [][]byte
}

// NumRows returns the number of rows in the batch.
func (b *Batch) NumRows() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Select returns a new batch containing only the rows at the given indices,
// in the given order.
func (b *Batch) Select(indices []int) *Batch {
	out := make([][]byte, len(indices))
	for i, idx := range indices {
		out[i] = b.Rows[idx]
	}
	return &Batch{Rows: out}
}

// byteSize returns the uncompressed footprint of the batch, used to track a
// writer's in-memory footprint.
func (b *Batch) byteSize() int64 {
	var n int64
	for _, r := range b.Rows {
		n += int64(len(r))
	}
	return n
}

// Reader is a lazy, finite sequence of record batches read from one file.
type Reader interface {
	// Next returns the next batch, or io.EOF once exhausted.
	Next() (*Batch, error)
	Close() error
}

// Writer accepts batches and finalizes them into one file.
type Writer interface {
	WriteBatch(b *Batch) error

	// InMemoryFootprint is the cumulative uncompressed size of batches
	// handed to WriteBatch so far, the signal OutputWriter polls for its
	// roll decision.
	InMemoryFootprint() int64

	// BytesWritten is the number of bytes physically written to the
	// underlying file so far (post-compression).
	BytesWritten() int64

	// Finish finalizes the file: sync, close.
	Finish() error
}

const blockMagic = 0x4c4b5331 // "LKS1"

// defaultCompression is fixed for every block this package writes. A real
// columnar writer would make this configurable per column; compaction only
// needs one knob, tagged per-block the same way.
const defaultCompression = compression.ZstdCompression

// fileWriter is the concrete Writer implementation: one block per WriteBatch
// call, each framed as a header [magic fixed32][compression tag byte]
// [uncompressed size fixed32][compressed size fixed32][xxh3 checksum fixed32]
// followed by the compressed body [varint row count][varint-length-prefixed
// row payloads].
type fileWriter struct {
	f         vfs.WritableFile
	footprint int64
	written   int64
	rows      int64
}

// NewWriter wraps a freshly created output file.
func NewWriter(f vfs.WritableFile) Writer {
	return &fileWriter{f: f}
}

func (w *fileWriter) WriteBatch(b *Batch) error {
	if b.NumRows() == 0 {
		return nil
	}

	payload := mempool.GlobalPool.Get(int(b.byteSize()) + 8*len(b.Rows))
	defer mempool.GlobalPool.Put(payload)

	payload = encoding.AppendVarint64(payload, uint64(len(b.Rows)))
	for _, row := range b.Rows {
		payload = encoding.AppendLengthPrefixedSlice(payload, row)
	}

	compressed, err := compression.Compress(defaultCompression, payload)
	if err != nil {
		return fmt.Errorf("columnar: compress block: %w", err)
	}

	var header []byte
	header = encoding.AppendFixed32(header, blockMagic)
	header = append(header, byte(defaultCompression))
	header = encoding.AppendFixed32(header, uint32(len(payload)))
	header = encoding.AppendFixed32(header, uint32(len(compressed)))
	cksum := checksum.ComputeChecksum(checksum.TypeXXH3, compressed, byte(defaultCompression))
	header = encoding.AppendFixed32(header, cksum)

	if err := w.f.Append(header); err != nil {
		return fmt.Errorf("columnar: write block header: %w", err)
	}
	if err := w.f.Append(compressed); err != nil {
		return fmt.Errorf("columnar: write block body: %w", err)
	}

	w.written += int64(len(header) + len(compressed))
	w.footprint += b.byteSize()
	w.rows += int64(len(b.Rows))
	return nil
}

func (w *fileWriter) InMemoryFootprint() int64 { return w.footprint }
func (w *fileWriter) BytesWritten() int64      { return w.written }

func (w *fileWriter) Finish() error {
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("columnar: sync output file: %w", err)
	}
	return w.f.Close()
}

// fileReader decodes blocks written by fileWriter.
type fileReader struct {
	f   vfs.SequentialFile
	r   *bufio.Reader
	eof bool
}

// NewReader wraps an open input file for sequential decode.
func NewReader(f vfs.SequentialFile) Reader {
	return &fileReader{f: f, r: bufio.NewReader(f)}
}

func (r *fileReader) Next() (*Batch, error) {
	if r.eof {
		return nil, io.EOF
	}

	header := make([]byte, 4+1+4+4+4)
	if _, err := io.ReadFull(r.r, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			r.eof = true
			return nil, io.EOF
		}
		return nil, fmt.Errorf("columnar: read block header: %w", err)
	}

	magic := encoding.DecodeFixed32(header[0:4])
	if magic != blockMagic {
		return nil, fmt.Errorf("columnar: corrupt block magic %x", magic)
	}
	compType := compression.Type(header[4])
	uncompressedSize := encoding.DecodeFixed32(header[5:9])
	compressedSize := encoding.DecodeFixed32(header[9:13])
	wantChecksum := encoding.DecodeFixed32(header[13:17])

	body := make([]byte, compressedSize)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, fmt.Errorf("columnar: read block body: %w", err)
	}

	gotChecksum := checksum.ComputeChecksum(checksum.TypeXXH3, body, byte(compType))
	if gotChecksum != wantChecksum {
		return nil, fmt.Errorf("columnar: block checksum mismatch")
	}

	payload, err := compression.DecompressWithSize(compType, body, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("columnar: decompress block: %w", err)
	}

	s := encoding.NewSlice(payload)
	rowCount, ok := s.GetVarint64()
	if !ok {
		return nil, fmt.Errorf("columnar: decode row count")
	}
	rows := make([][]byte, 0, rowCount)
	for i := uint64(0); i < rowCount; i++ {
		row, ok := s.GetLengthPrefixedSlice()
		if !ok {
			return nil, fmt.Errorf("columnar: decode row %d", i)
		}
		rows = append(rows, append([]byte(nil), row...))
	}
	return &Batch{Rows: rows}, nil
}

func (r *fileReader) Close() error {
	return r.f.Close()
}
