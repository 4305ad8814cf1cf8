package compaction

import "fmt"

// remapBuilder accumulates the two maps data-file compaction produces:
// pre-compaction location -> post-compaction location, and post-compaction
// location -> the 0-based ordinal of the output file it belongs to.
type remapBuilder struct {
	preToPost          map[RecordLocation]RemappedRecordLocation
	postToOutputOrdinal map[RecordLocation]uint64
}

func newRemapBuilder() *remapBuilder {
	return &remapBuilder{
		preToPost:           make(map[RecordLocation]RemappedRecordLocation),
		postToOutputOrdinal: make(map[RecordLocation]uint64),
	}
}

// growForBatch presizes both maps for an upcoming batch of n more entries.
// Go maps do not support explicit capacity growth post-construction beyond
// the initial make() hint, so this is always a no-op; it
// exists to document the intent from the source design (batches may
// pre-size their target maps).
func (r *remapBuilder) growForBatch(n int) {}

// insert records that pre survived compaction into post, living in file,
// and belongs to the output file with the given 0-based ordinal
// (= the compactedFileCount at the moment of insertion). Inserting a
// duplicate pre key is an invariant violation.
func (r *remapBuilder) insert(pre RecordLocation, post RecordLocation, file DataFileRef, ordinal uint64) error {
	if _, exists := r.preToPost[pre]; exists {
		return fmt.Errorf("remap: duplicate pre-compaction location %+v: %w", pre, ErrInvariant)
	}
	r.preToPost[pre] = RemappedRecordLocation{Location: post, File: file}
	r.postToOutputOrdinal[post] = ordinal
	return nil
}

func (r *remapBuilder) len() int { return len(r.preToPost) }

// lookupPreToPost adapts preToPost into the fileindex.PreToPostFunc shape.
func (r *remapBuilder) lookupPreToPost(fileID uint64, rowIndex uint32) (newFileID uint64, newRowIndex uint32, ok bool) {
	post, exists := r.preToPost[RecordLocation{FileID: FileId(fileID), RowIndex: rowIndex}]
	if !exists {
		return 0, 0, false
	}
	return uint64(post.Location.FileID), post.Location.RowIndex, true
}

// lookupPostToOrdinal adapts postToOutputOrdinal into the
// fileindex.PostToOrdinalFunc shape.
func (r *remapBuilder) lookupPostToOrdinal(fileID uint64, rowIndex uint32) (ordinal uint64, ok bool) {
	ordinal, exists := r.postToOutputOrdinal[RecordLocation{FileID: FileId(fileID), RowIndex: rowIndex}]
	return ordinal, exists
}
