package compaction

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/aalhour/lakestore/internal/columnar"
	"github.com/aalhour/lakestore/internal/logging"
	"github.com/aalhour/lakestore/internal/vfs"
)

// OutputWriter owns at most one open output file at a time, created lazily
// on the first write, and decides when to roll to a new file based on the
// open writer's in-memory footprint.
type OutputWriter struct {
	fs         vfs.FS
	fileIDs    *fileIdAllocator
	outputDir  string
	targetSize int64
	logger     logging.Logger

	// compactedFileCount is shared with the index compactor: it is
	// incremented once per produced data file and once per produced index
	// file, so the two id sequences stay disjoint.
	compactedFileCount *uint64

	open       bool
	curRef     DataFileRef
	curWriter  columnar.Writer
	curRows    uint64
	producedFn func(DataFileRef, CompactedDataEntry)
}

// newOutputWriter constructs an OutputWriter. produced is invoked once per
// finalized output file, in the order files are rolled/flushed.
func newOutputWriter(
	fs vfs.FS,
	fileIDs *fileIdAllocator,
	outputDir string,
	targetSize int64,
	compactedFileCount *uint64,
	logger logging.Logger,
	produced func(DataFileRef, CompactedDataEntry),
) *OutputWriter {
	if logging.IsNil(logger) {
		logger = logging.Discard
	}
	return &OutputWriter{
		fs:                 fs,
		fileIDs:            fileIDs,
		outputDir:          outputDir,
		targetSize:         targetSize,
		logger:             logger,
		compactedFileCount: compactedFileCount,
		producedFn:         produced,
	}
}

// IsOpen reports whether an output file is currently open.
func (w *OutputWriter) IsOpen() bool { return w.open }

// ensureOpen transitions Idle -> Open, allocating a file id and creating the
// backing file, if no file is currently open.
func (w *OutputWriter) ensureOpen() error {
	if w.open {
		return nil
	}

	fileID, err := w.fileIDs.next(*w.compactedFileCount)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("compacted-%s.data", uuid.NewString())
	path := filepath.Join(w.outputDir, name)

	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("outputwriter: create %s: %w: %w", path, ErrIO, err)
	}

	w.curRef = DataFileRef{FileID: fileID, Path: path}
	w.curWriter = columnar.NewWriter(f)
	w.curRows = 0
	w.open = true
	w.logger.Debugf(logging.NSCompact+"opened output file %s (file_id=%d)", path, fileID)
	return nil
}

// WriteBatch ensures an output file is open and writes b to it, tracking
// the row count written to the current file.
func (w *OutputWriter) WriteBatch(b *columnar.Batch) error {
	if b.NumRows() == 0 {
		return nil
	}
	if err := w.ensureOpen(); err != nil {
		return err
	}
	if err := w.curWriter.WriteBatch(b); err != nil {
		return fmt.Errorf("outputwriter: write batch: %w: %w", ErrIO, err)
	}
	w.curRows += uint64(b.NumRows())
	return nil
}

// ShouldRoll reports whether the currently open writer has reached the
// target size and should be rolled before the next batch.
func (w *OutputWriter) ShouldRoll() bool {
	return w.open && w.curWriter.InMemoryFootprint() >= w.targetSize
}

// CurrentFileID returns the file id of the currently open output file. It
// must only be called while IsOpen is true.
func (w *OutputWriter) CurrentFileID() FileId { return w.curRef.FileID }

// CurrentFileRef returns the full reference (file id and path) of the
// currently open output file. It must only be called while IsOpen is true.
func (w *OutputWriter) CurrentFileRef() DataFileRef { return w.curRef }

// CurrentRowCount returns the number of rows written to the currently open
// output file so far.
func (w *OutputWriter) CurrentRowCount() uint64 { return w.curRows }

// Roll finalizes the currently open output file: rows_written > 0 and
// bytes_written > 0 are required, violating either is an InvariantError.
// compactedFileCount is incremented by one on success.
func (w *OutputWriter) Roll() error {
	if !w.open {
		return nil
	}

	if err := w.curWriter.Finish(); err != nil {
		return fmt.Errorf("outputwriter: finish %s: %w: %w", w.curRef.Path, ErrIO, err)
	}

	bytesWritten := w.curWriter.BytesWritten()
	if w.curRows == 0 || bytesWritten == 0 {
		return fmt.Errorf("outputwriter: output file %s has rows=%d bytes=%d: %w",
			w.curRef.Path, w.curRows, bytesWritten, ErrInvariant)
	}

	entry := CompactedDataEntry{NumRows: w.curRows, FileSizeBytes: bytesWritten}
	w.producedFn(w.curRef, entry)
	*w.compactedFileCount++

	w.logger.Debugf(logging.NSCompact+"rolled output file %s (rows=%d bytes=%d)", w.curRef.Path, w.curRows, bytesWritten)

	w.open = false
	w.curWriter = nil
	w.curRef = DataFileRef{}
	w.curRows = 0
	return nil
}
