// Package fileindex implements the secondary-index artifact the compaction
// core merges through: a bucketed hash table from row-key hash to physical
// record location, rebuilt from old indices plus a pre-to-post remap.
//
// This mirrors the shape of a persisted bucket hash map (the kind compaction
// in the original table engine merges through), simplified to an in-memory
// artifact with an on-disk encoding good enough for the compaction core's
// own tests.
package fileindex

import (
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/aalhour/lakestore/internal/checksum"
	"github.com/aalhour/lakestore/internal/encoding"
)

// ErrCorrupt marks a FileIndex blob that failed its checksum or framing.
var ErrCorrupt = errors.New("fileindex: corrupt index blob")

// HashKey hashes a row key into the 64-bit space Entry.Hash lives in. Index
// construction outside this package (assembling Entry values for New) should
// use this so bucket assignment stays consistent across builders.
func HashKey(key []byte) uint64 {
	return xxh3.Hash(key)
}

// Entry is one row-key-hash to physical-location mapping.
type Entry struct {
	Hash     uint64
	FileID   uint64
	RowIndex uint32
}

// Index is an immutable bucketed hash table of Entry values.
type Index struct {
	numBuckets uint32
	entries    []Entry
}

// New builds an Index from entries, bucketing by Hash mod numBuckets.
// numBuckets of 0 defaults to 1.
func New(entries []Entry, numBuckets uint32) *Index {
	if numBuckets == 0 {
		numBuckets = 1
	}
	return &Index{numBuckets: numBuckets, entries: entries}
}

// Entries returns the index's entries in the order they were supplied.
func (ix *Index) Entries() []Entry {
	if ix == nil {
		return nil
	}
	return ix.entries
}

// NumBuckets returns the bucket count the index was built with.
func (ix *Index) NumBuckets() uint32 {
	if ix == nil {
		return 0
	}
	return ix.numBuckets
}

func (ix *Index) Bucket(hash uint64) uint32 {
	return uint32(hash % uint64(ix.numBuckets))
}

// NewFileRef names one newly produced output file, by 64-bit file id, in
// production order. Ordinal i refers to the i'th entry of this slice.
type NewFileRef struct {
	FileID uint64
}

// PreToPostFunc maps an old (fileID, rowIndex) location to its post-compaction
// location. ok is false when the row was deleted and must be dropped.
type PreToPostFunc func(fileID uint64, rowIndex uint32) (newFileID uint64, newRowIndex uint32, ok bool)

// PostToOrdinalFunc maps a post-compaction location to the 0-based ordinal
// of the output file it belongs to.
type PostToOrdinalFunc func(fileID uint64, rowIndex uint32) (ordinal uint64, ok bool)

// BuildFromMergeForCompaction rewrites every entry of oldIndices through
// preToPost, drops entries whose row was deleted, and returns a single new
// Index covering the survivors. rowCount is the expected number of
// surviving entries and is used only to presize the result; it is not
// itself validated against newDataFiles.
func BuildFromMergeForCompaction(
	rowCount uint32,
	oldIndices []*Index,
	newDataFiles []NewFileRef,
	preToPost PreToPostFunc,
	postToOrdinal PostToOrdinalFunc,
) (*Index, error) {
	out := make([]Entry, 0, rowCount)

	for _, old := range oldIndices {
		if old == nil {
			continue
		}
		for _, e := range old.Entries() {
			newFileID, newRowIdx, ok := preToPost(e.FileID, e.RowIndex)
			if !ok {
				continue // row deleted by this compaction
			}
			ordinal, ok := postToOrdinal(newFileID, newRowIdx)
			if !ok {
				return nil, fmt.Errorf("fileindex: no output-file ordinal for surviving row (file=%d row=%d)", newFileID, newRowIdx)
			}
			if int(ordinal) >= len(newDataFiles) {
				return nil, fmt.Errorf("fileindex: ordinal %d out of range for %d new files", ordinal, len(newDataFiles))
			}
			out = append(out, Entry{Hash: e.Hash, FileID: newFileID, RowIndex: newRowIdx})
		}
	}

	numBuckets := uint32(len(out)/4 + 1)
	return New(out, numBuckets), nil
}

// MarshalBinary encodes the index as [checksum][numBuckets][count]
// [entries...]. Each entry is [hash fixed64][fileID fixed64][rowIndex fixed32].
func (ix *Index) MarshalBinary() ([]byte, error) {
	var body []byte
	body = encoding.AppendFixed32(body, ix.numBuckets)
	body = encoding.AppendVarint64(body, uint64(len(ix.entries)))
	for _, e := range ix.entries {
		body = encoding.AppendFixed64(body, e.Hash)
		body = encoding.AppendFixed64(body, e.FileID)
		body = encoding.AppendFixed32(body, e.RowIndex)
	}

	cksum := checksum.MaskedValue(body)
	out := make([]byte, 0, len(body)+4)
	out = encoding.AppendFixed32(out, cksum)
	out = append(out, body...)
	return out, nil
}

// UnmarshalBinary decodes an index previously produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Index, error) {
	if len(data) < 4 {
		return nil, ErrCorrupt
	}
	wantChecksum := encoding.DecodeFixed32(data[:4])
	body := data[4:]
	if checksum.MaskedValue(body) != wantChecksum {
		return nil, ErrCorrupt
	}

	s := encoding.NewSlice(body)
	numBuckets, ok := s.GetFixed32()
	if !ok {
		return nil, ErrCorrupt
	}
	count, ok := s.GetVarint64()
	if !ok {
		return nil, ErrCorrupt
	}
	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		hash, ok := s.GetFixed64()
		if !ok {
			return nil, ErrCorrupt
		}
		fileID, ok := s.GetFixed64()
		if !ok {
			return nil, ErrCorrupt
		}
		rowIdx, ok := s.GetFixed32()
		if !ok {
			return nil, ErrCorrupt
		}
		entries = append(entries, Entry{Hash: hash, FileID: fileID, RowIndex: rowIdx})
	}
	return &Index{numBuckets: numBuckets, entries: entries}, nil
}
