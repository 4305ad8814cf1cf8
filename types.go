package compaction

import (
	"github.com/google/uuid"

	"github.com/aalhour/lakestore/internal/cache"
	"github.com/aalhour/lakestore/internal/columnar"
	"github.com/aalhour/lakestore/internal/fileindex"
)

// FileId is an opaque 64-bit file identifier, packed by PackFileId from a
// (table_auto_increment_id, in_flush_index) pair. Two FileIds are equal iff
// their 64-bit payloads are equal.
type FileId uint64

// RecordLocation identifies a row's physical position as (file, row index
// within that file). The only variant this package handles is DiskFile.
type RecordLocation struct {
	FileID   FileId
	RowIndex uint32
}

// DataFileRef is a materialized columnar file on disk.
type DataFileRef struct {
	FileID FileId
	Path   string
}

// RemappedRecordLocation is a post-compaction location together with the
// output file it lives in.
type RemappedRecordLocation struct {
	Location RecordLocation
	File     DataFileRef
}

// SingleFileToCompact names one input file and, optionally, a deletion
// vector side-car blob reference. An empty DeletionVectorBlobRef means no
// deletions are recorded for this file.
type SingleFileToCompact struct {
	FileID                FileId
	Path                  string
	DeletionVectorBlobRef string
}

// FileIndexRef pairs a FileIndex artifact with the file id it is (or will
// be) stored under.
type FileIndexRef struct {
	FileID FileId
	Index  *fileindex.Index
}

// CompactionPayload is the unit of work handed to CompactionBuilder: an
// ordered batch of input files plus the indices covering them.
type CompactionPayload struct {
	UUID       uuid.UUID
	Files      []SingleFileToCompact
	OldIndices []FileIndexRef
}

// CompactedDataEntry is attached to each produced output file.
type CompactedDataEntry struct {
	NumRows       uint64
	FileSizeBytes int64
}

// NewDataFileEntry pairs a produced output file with its row/byte counts, in
// production order.
type NewDataFileEntry struct {
	Ref   DataFileRef
	Entry CompactedDataEntry
}

// DataCompactionResult is the outcome of a successful CompactionBuilder.Build.
type DataCompactionResult struct {
	UUID                 uuid.UUID
	PreToPost            map[RecordLocation]RemappedRecordLocation
	OldDataFiles         []DataFileRef
	OldFileIndices       []FileIndexRef
	NewDataFiles         []NewDataFileEntry
	NewFileIndices       []FileIndexRef
	EvictedFilesToDelete []string
}

// CompactionFileParams configures where and how large output files are.
type CompactionFileParams struct {
	OutputDir string

	// TableAutoIncrIDStart/End bound the table_auto_incr_id values the
	// FileIdAllocator may hand out during this compaction: [Start, End).
	TableAutoIncrIDStart uint32
	TableAutoIncrIDEnd   uint32

	// TargetFinalSize is the approximate in-memory footprint, in bytes, at
	// which the OutputWriter rolls to a new file.
	TargetFinalSize int64
}

// Cache is the object-storage cache contract the core consumes. A
// *cache.Cache satisfies it through NewCacheAdapter.
type Cache interface {
	GetCacheEntry(fileID uint64, path string, accessor cache.FilesystemAccessor) (CacheEntry, []string, error)
}

// CacheEntry is a pinned lease on a locally materialized file.
type CacheEntry interface {
	CacheFilepath() string
	Unreference() []string
}

// cacheAdapter narrows a *cache.Cache (whose GetCacheEntry returns the
// concrete *cache.Handle) to the Cache interface above.
type cacheAdapter struct{ c *cache.Cache }

// NewCacheAdapter wraps a concrete object-storage cache for use as Cache.
func NewCacheAdapter(c *cache.Cache) Cache {
	return cacheAdapter{c: c}
}

func (a cacheAdapter) GetCacheEntry(fileID uint64, path string, accessor cache.FilesystemAccessor) (CacheEntry, []string, error) {
	h, evicted, err := a.c.GetCacheEntry(fileID, path, accessor)
	if err != nil {
		return nil, evicted, err
	}
	return h, evicted, nil
}

// ColumnarReader produces a lazy sequence of record batches for one file.
type ColumnarReader = columnar.Reader

// ColumnarWriter accepts batches and finalizes them into one output file.
type ColumnarWriter = columnar.Writer

// DeletionVector and DeletionVectorLoader are re-exported from the columnar
// package so callers of this package need not import it directly.
type DeletionVector = columnar.DeletionVector
type DeletionVectorLoader = columnar.DeletionVectorLoader

// IndexSubsystem merges a set of old FileIndex artifacts into one new one
// that reflects this compaction's remap. fileID is the file id allocated
// for the produced index; implementations that persist the index
// out-of-band may want it, the default in-process one ignores it.
type IndexSubsystem interface {
	BuildFromMergeForCompaction(
		rowCount uint32,
		fileID FileId,
		oldIndices []FileIndexRef,
		newDataFiles []NewDataFileEntry,
		preToPost fileindex.PreToPostFunc,
		postToOrdinal fileindex.PostToOrdinalFunc,
	) (*fileindex.Index, error)
}

// defaultIndexSubsystem delegates to fileindex.BuildFromMergeForCompaction,
// the in-process bucket-hash-map index implementation this module ships.
type defaultIndexSubsystem struct{}

// DefaultIndexSubsystem is the IndexSubsystem used when a CompactionBuilder
// is not given one explicitly.
var DefaultIndexSubsystem IndexSubsystem = defaultIndexSubsystem{}

func (defaultIndexSubsystem) BuildFromMergeForCompaction(
	rowCount uint32,
	_ FileId,
	oldIndices []FileIndexRef,
	newDataFiles []NewDataFileEntry,
	preToPost fileindex.PreToPostFunc,
	postToOrdinal fileindex.PostToOrdinalFunc,
) (*fileindex.Index, error) {
	old := make([]*fileindex.Index, len(oldIndices))
	for i, r := range oldIndices {
		old[i] = r.Index
	}
	newRefs := make([]fileindex.NewFileRef, len(newDataFiles))
	for i, e := range newDataFiles {
		newRefs[i] = fileindex.NewFileRef{FileID: uint64(e.Ref.FileID)}
	}
	return fileindex.BuildFromMergeForCompaction(rowCount, old, newRefs, preToPost, postToOrdinal)
}
