package compaction

import (
	"fmt"
	"math"
)

// indexCompactor allocates one file id and delegates the actual merge to an
// IndexSubsystem; it does not itself understand index internals and it
// never mutates the remap it reads from.
type indexCompactor struct {
	subsystem IndexSubsystem
}

func newIndexCompactor(s IndexSubsystem) *indexCompactor {
	if s == nil {
		s = DefaultIndexSubsystem
	}
	return &indexCompactor{subsystem: s}
}

// compact merges oldIndices into a single new FileIndex covering every
// surviving row recorded in remap, tagged with the output file each row
// landed in.
func (ic *indexCompactor) compact(
	fileIDs *fileIdAllocator,
	compactedFileCount *uint64,
	oldIndices []FileIndexRef,
	newDataFiles []NewDataFileEntry,
	remap *remapBuilder,
) (FileIndexRef, error) {
	rowCount := remap.len()
	if rowCount > math.MaxUint32 {
		return FileIndexRef{}, fmt.Errorf("indexcompactor: row count %d exceeds uint32: %w", rowCount, ErrInvariant)
	}

	fileID, err := fileIDs.next(*compactedFileCount)
	if err != nil {
		return FileIndexRef{}, err
	}
	*compactedFileCount++

	idx, err := ic.subsystem.BuildFromMergeForCompaction(
		uint32(rowCount),
		fileID,
		oldIndices,
		newDataFiles,
		remap.lookupPreToPost,
		remap.lookupPostToOrdinal,
	)
	if err != nil {
		return FileIndexRef{}, fmt.Errorf("indexcompactor: merge indices: %w: %w", ErrFormat, err)
	}

	return FileIndexRef{FileID: fileID, Index: idx}, nil
}
