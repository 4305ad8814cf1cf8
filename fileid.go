package compaction

import "fmt"

// NumFilesPerFlush bounds how many file ids may be packed under one
// table_auto_incr_id. It must match the constant used by the table
// engine's non-compaction flush paths, or file-id collisions become
// possible (see design notes).
const NumFilesPerFlush = 1 << 16

// PackFileId packs a (table_auto_incr_id, in_flush_idx) pair into a single
// 64-bit file id. This is the externally fixed packing function; compaction
// must reuse exactly this function, not invent its own.
func PackFileId(tableAutoIncrID uint32, inFlushIdx uint32) FileId {
	return FileId(uint64(tableAutoIncrID)<<32 | uint64(inFlushIdx))
}

// fileIdAllocator is a pure function of compactedFileCount: the table auto
// increment id and in-flush index it derives are fully determined by how
// many files (data and index combined) have already been produced in this
// compaction. It holds no state of its own beyond its configured range.
type fileIdAllocator struct {
	startTableAutoIncrID uint32
	endTableAutoIncrID   uint32
}

func newFileIdAllocator(start, end uint32) *fileIdAllocator {
	return &fileIdAllocator{startTableAutoIncrID: start, endTableAutoIncrID: end}
}

// next derives the file id for the given compacted-file count, without
// advancing anything: the caller owns compactedFileCount and is responsible
// for incrementing it once per produced file (data or index).
func (a *fileIdAllocator) next(compactedFileCount uint64) (FileId, error) {
	offset := compactedFileCount / NumFilesPerFlush
	tableIncrID := uint64(a.startTableAutoIncrID) + offset
	if tableIncrID < uint64(a.startTableAutoIncrID) || tableIncrID >= uint64(a.endTableAutoIncrID) {
		return 0, fmt.Errorf("fileid: table_auto_incr_id %d out of range [%d, %d): %w",
			tableIncrID, a.startTableAutoIncrID, a.endTableAutoIncrID, ErrCapacityExhausted)
	}
	inFlushIdx := compactedFileCount - offset*NumFilesPerFlush
	return PackFileId(uint32(tableIncrID), uint32(inFlushIdx)), nil
}
