package fileindex

import "testing"

func TestBuildFromMergeForCompaction_DropsDeletedRows(t *testing.T) {
	old := New([]Entry{
		{Hash: HashKey([]byte("a")), FileID: 1, RowIndex: 0},
		{Hash: HashKey([]byte("b")), FileID: 1, RowIndex: 1}, // deleted
		{Hash: HashKey([]byte("c")), FileID: 2, RowIndex: 0},
	}, 4)

	preToPost := func(fileID uint64, rowIndex uint32) (uint64, uint32, bool) {
		switch {
		case fileID == 1 && rowIndex == 0:
			return 100, 0, true
		case fileID == 1 && rowIndex == 1:
			return 0, 0, false
		case fileID == 2 && rowIndex == 0:
			return 100, 1, true
		}
		t.Fatalf("unexpected pre-location (file=%d row=%d)", fileID, rowIndex)
		return 0, 0, false
	}
	postToOrdinal := func(fileID uint64, rowIndex uint32) (uint64, bool) {
		if fileID == 100 {
			return 0, true
		}
		return 0, false
	}

	newFiles := []NewFileRef{{FileID: 100}}
	merged, err := BuildFromMergeForCompaction(2, []*Index{old}, newFiles, preToPost, postToOrdinal)
	if err != nil {
		t.Fatalf("BuildFromMergeForCompaction: %v", err)
	}
	if len(merged.Entries()) != 2 {
		t.Fatalf("got %d entries, want 2", len(merged.Entries()))
	}
	for _, e := range merged.Entries() {
		if e.FileID != 100 {
			t.Errorf("entry FileID = %d, want 100", e.FileID)
		}
	}
}

func TestBuildFromMergeForCompaction_MissingOrdinalErrors(t *testing.T) {
	old := New([]Entry{{Hash: 1, FileID: 1, RowIndex: 0}}, 1)
	preToPost := func(uint64, uint32) (uint64, uint32, bool) { return 100, 0, true }
	postToOrdinal := func(uint64, uint32) (uint64, bool) { return 0, false }

	_, err := BuildFromMergeForCompaction(1, []*Index{old}, []NewFileRef{{FileID: 100}}, preToPost, postToOrdinal)
	if err == nil {
		t.Fatalf("expected error for missing ordinal lookup")
	}
}

func TestMarshalUnmarshalBinary_RoundTrip(t *testing.T) {
	want := New([]Entry{
		{Hash: HashKey([]byte("x")), FileID: 7, RowIndex: 3},
		{Hash: HashKey([]byte("y")), FileID: 7, RowIndex: 9},
	}, 8)

	blob, err := want.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	got, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.NumBuckets() != want.NumBuckets() {
		t.Fatalf("NumBuckets = %d, want %d", got.NumBuckets(), want.NumBuckets())
	}
	if len(got.Entries()) != len(want.Entries()) {
		t.Fatalf("len(Entries) = %d, want %d", len(got.Entries()), len(want.Entries()))
	}
	for i, e := range want.Entries() {
		if got.Entries()[i] != e {
			t.Errorf("Entries[%d] = %+v, want %+v", i, got.Entries()[i], e)
		}
	}
}

func TestUnmarshalBinary_CorruptChecksumRejected(t *testing.T) {
	idx := New([]Entry{{Hash: 1, FileID: 1, RowIndex: 0}}, 1)
	blob, err := idx.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	blob[len(blob)-1] ^= 0xFF

	if _, err := UnmarshalBinary(blob); err == nil {
		t.Fatalf("expected error for corrupted blob")
	}
}

func TestHashKey_Deterministic(t *testing.T) {
	a := HashKey([]byte("same-key"))
	b := HashKey([]byte("same-key"))
	if a != b {
		t.Fatalf("HashKey not deterministic: %d != %d", a, b)
	}
	if a == HashKey([]byte("different-key")) {
		t.Fatalf("HashKey collided for distinct keys (statistically unexpected)")
	}
}
