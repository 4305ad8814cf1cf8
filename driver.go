package compaction

import (
	"fmt"

	"github.com/aalhour/lakestore/internal/columnar"
	"github.com/aalhour/lakestore/internal/logging"
	"github.com/aalhour/lakestore/internal/vfs"
)

// noopDeletionVectorLoader rejects any blob reference: a CompactionBuilder
// that receives a payload whose files carry deletion-vector references must
// be given a real loader via WithDeletionVectorLoader.
type noopDeletionVectorLoader struct{}

func (noopDeletionVectorLoader) Load(blobRef string) (*columnar.DeletionVector, error) {
	return nil, fmt.Errorf("compaction: no DeletionVectorLoader configured for blob %q", blobRef)
}

// CompactionBuilder orchestrates one data-file compaction: it runs the
// DataFileCompactor across the payload's input files, then the
// IndexCompactor once, and assembles the result. A CompactionBuilder is
// single-use; call Build at most once.
type CompactionBuilder struct {
	payload    CompactionPayload
	fileParams CompactionFileParams

	fs             vfs.FS
	cache          Cache
	dvLoader       DeletionVectorLoader
	indexSubsystem IndexSubsystem
	logger         logging.Logger
}

// Option configures a CompactionBuilder's external collaborators.
type Option func(*CompactionBuilder)

// WithFS overrides the filesystem used for output files and input opens.
// Defaults to vfs.Default().
func WithFS(fs vfs.FS) Option { return func(b *CompactionBuilder) { b.fs = fs } }

// WithCache wires an object-storage cache. Without one, input files are
// always opened directly from their given path.
func WithCache(c Cache) Option { return func(b *CompactionBuilder) { b.cache = c } }

// WithDeletionVectorLoader wires the loader used when a SingleFileToCompact
// carries a deletion-vector blob reference.
func WithDeletionVectorLoader(l DeletionVectorLoader) Option {
	return func(b *CompactionBuilder) { b.dvLoader = l }
}

// WithIndexSubsystem overrides the index merge implementation. Defaults to
// DefaultIndexSubsystem.
func WithIndexSubsystem(s IndexSubsystem) Option {
	return func(b *CompactionBuilder) { b.indexSubsystem = s }
}

// WithLogger wires a logger. Defaults to logging.Discard.
func WithLogger(l logging.Logger) Option { return func(b *CompactionBuilder) { b.logger = l } }

// NewCompactionBuilder constructs a CompactionBuilder for one payload and
// file-layout configuration.
func NewCompactionBuilder(payload CompactionPayload, fileParams CompactionFileParams, opts ...Option) *CompactionBuilder {
	b := &CompactionBuilder{
		payload:        payload,
		fileParams:     fileParams,
		fs:             vfs.Default(),
		dvLoader:       noopDeletionVectorLoader{},
		indexSubsystem: DefaultIndexSubsystem,
		logger:         logging.Discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	if logging.IsNil(b.logger) {
		b.logger = logging.Discard
	}
	return b
}

// Build runs the compaction to completion and returns its result. On error,
// any output files already created under fileParams.OutputDir are left on
// disk for the caller to garbage-collect; no partial result is returned.
func (b *CompactionBuilder) Build() (*DataCompactionResult, error) {
	oldDataFiles := make([]DataFileRef, len(b.payload.Files))
	for i, f := range b.payload.Files {
		oldDataFiles[i] = DataFileRef{FileID: f.FileID, Path: f.Path}
	}
	oldIndices := append([]FileIndexRef(nil), b.payload.OldIndices...)

	if err := b.fs.MkdirAll(b.fileParams.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("compaction: create output dir %s: %w: %w", b.fileParams.OutputDir, ErrIO, err)
	}

	fileIDs := newFileIdAllocator(b.fileParams.TableAutoIncrIDStart, b.fileParams.TableAutoIncrIDEnd)
	var compactedFileCount uint64

	var newDataFiles []NewDataFileEntry
	writer := newOutputWriter(b.fs, fileIDs, b.fileParams.OutputDir, b.fileParams.TargetFinalSize, &compactedFileCount, b.logger,
		func(ref DataFileRef, entry CompactedDataEntry) {
			newDataFiles = append(newDataFiles, NewDataFileEntry{Ref: ref, Entry: entry})
		})

	dfc := newDataFileCompactor(b.fs, b.cache, b.dvLoader, writer, b.logger)
	if err := dfc.compactAll(b.payload.Files, &compactedFileCount); err != nil {
		return nil, err
	}

	// All inputs were fully deleted: nothing survived, so the index
	// compactor never runs and no output files exist.
	if dfc.remap.len() == 0 {
		if len(dfc.remap.postToOutputOrdinal) != 0 {
			return nil, fmt.Errorf("compaction: empty remap but non-empty output-ordinal map: %w", ErrInvariant)
		}
		return &DataCompactionResult{
			UUID:                 b.payload.UUID,
			PreToPost:            dfc.remap.preToPost,
			OldDataFiles:         oldDataFiles,
			OldFileIndices:       oldIndices,
			EvictedFilesToDelete: dfc.evictedFiles,
		}, nil
	}

	if writer.IsOpen() {
		if err := writer.Roll(); err != nil {
			return nil, err
		}
	}

	for i := 1; i < len(newDataFiles); i++ {
		prev, cur := newDataFiles[i-1].Ref.FileID, newDataFiles[i].Ref.FileID
		if cur <= prev {
			return nil, fmt.Errorf("compaction: output file ids not strictly increasing (%d <= %d): %w", cur, prev, ErrInvariant)
		}
	}

	ic := newIndexCompactor(b.indexSubsystem)
	newIndexRef, err := ic.compact(fileIDs, &compactedFileCount, oldIndices, newDataFiles, dfc.remap)
	if err != nil {
		return nil, err
	}
	if n := len(newDataFiles); n > 0 && newIndexRef.FileID <= newDataFiles[n-1].Ref.FileID {
		return nil, fmt.Errorf("compaction: index file id %d not greater than last data file id %d: %w",
			newIndexRef.FileID, newDataFiles[n-1].Ref.FileID, ErrInvariant)
	}

	b.logger.Infof(logging.NSCompact+"compacted %d input file(s) into %d output file(s), %d surviving rows",
		len(b.payload.Files), len(newDataFiles), dfc.remap.len())

	return &DataCompactionResult{
		UUID:                 b.payload.UUID,
		PreToPost:            dfc.remap.preToPost,
		OldDataFiles:         oldDataFiles,
		OldFileIndices:       oldIndices,
		NewDataFiles:         newDataFiles,
		NewFileIndices:       []FileIndexRef{newIndexRef},
		EvictedFilesToDelete: dfc.evictedFiles,
	}, nil
}
