package compaction

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/aalhour/lakestore/internal/columnar"
	"github.com/aalhour/lakestore/internal/logging"
	"github.com/aalhour/lakestore/internal/vfs"
)

// writeInputFile writes n rows (each "row-<i>") as a single batch to path,
// returning the written row payloads in order.
func writeInputFile(t *testing.T, fs vfs.FS, path string, n int) [][]byte {
	t.Helper()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create %s: %v", path, err)
	}
	w := columnar.NewWriter(f)
	rows := make([][]byte, n)
	for i := range rows {
		rows[i] = []byte(fmt.Sprintf("row-%d", i))
	}
	if err := w.WriteBatch(&columnar.Batch{Rows: rows}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return rows
}

func newTestWriter(t *testing.T, fs vfs.FS, outDir string, targetSize int64, compactedFileCount *uint64) (*OutputWriter, *[]NewDataFileEntry) {
	t.Helper()
	fileIDs := newFileIdAllocator(0, 1000)
	var produced []NewDataFileEntry
	w := newOutputWriter(fs, fileIDs, outDir, targetSize, compactedFileCount, logging.Discard,
		func(ref DataFileRef, entry CompactedDataEntry) {
			produced = append(produced, NewDataFileEntry{Ref: ref, Entry: entry})
		})
	return w, &produced
}

// S1: two small inputs, no deletions; a small target size forces a roll
// between the two files.
func TestDataFileCompactor_TwoInputsNoDeletionsRolls(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	in0 := filepath.Join(dir, "in-0.data")
	in1 := filepath.Join(dir, "in-1.data")
	rows0 := writeInputFile(t, fs, in0, 5)
	rows1 := writeInputFile(t, fs, in1, 5)

	var compactedFileCount uint64
	writer, produced := newTestWriter(t, fs, dir, 1, &compactedFileCount) // target 1 byte: always rolls

	dfc := newDataFileCompactor(fs, nil, nil, writer, logging.Discard)
	files := []SingleFileToCompact{
		{FileID: 1, Path: in0},
		{FileID: 2, Path: in1},
	}
	if err := dfc.compactAll(files, &compactedFileCount); err != nil {
		t.Fatalf("compactAll: %v", err)
	}
	if writer.IsOpen() {
		if err := writer.Roll(); err != nil {
			t.Fatalf("final Roll: %v", err)
		}
	}

	if len(*produced) != 2 {
		t.Fatalf("produced %d output files, want 2", len(*produced))
	}
	if dfc.remap.len() != 10 {
		t.Fatalf("remap has %d entries, want 10", dfc.remap.len())
	}

	for i := 0; i < len(rows0); i++ {
		pre := RecordLocation{FileID: 1, RowIndex: uint32(i)}
		if _, ok := dfc.remap.preToPost[pre]; !ok {
			t.Errorf("missing remap entry for file 1 row %d", i)
		}
	}
	for i := 0; i < len(rows1); i++ {
		pre := RecordLocation{FileID: 2, RowIndex: uint32(i)}
		if _, ok := dfc.remap.preToPost[pre]; !ok {
			t.Errorf("missing remap entry for file 2 row %d", i)
		}
	}
}

// S2: an input file whose every row is deleted contributes nothing to the
// remap and produces no output file.
func TestDataFileCompactor_AllDeletedInputElided(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	in0 := filepath.Join(dir, "in-0.data")
	writeInputFile(t, fs, in0, 4)

	dv := columnar.NewDeletionVector(4)
	for i := 0; i < 4; i++ {
		dv.MarkDeleted(i)
	}

	var compactedFileCount uint64
	writer, produced := newTestWriter(t, fs, dir, 1<<20, &compactedFileCount)

	dfc := newDataFileCompactor(fs, nil, stubDVLoader{"dv-ref": dv}, writer, logging.Discard)
	files := []SingleFileToCompact{{FileID: 1, Path: in0, DeletionVectorBlobRef: "dv-ref"}}
	if err := dfc.compactAll(files, &compactedFileCount); err != nil {
		t.Fatalf("compactAll: %v", err)
	}

	if dfc.remap.len() != 0 {
		t.Fatalf("remap has %d entries, want 0", dfc.remap.len())
	}
	if writer.IsOpen() {
		t.Fatalf("writer should never have opened an output file")
	}
	if len(*produced) != 0 {
		t.Fatalf("produced %d output files, want 0", len(*produced))
	}
}

// S3: partial deletion packs survivors into dense, contiguous output rows.
func TestDataFileCompactor_PartialDeletionPacksSurvivors(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()

	in0 := filepath.Join(dir, "in-0.data")
	writeInputFile(t, fs, in0, 10)

	dv := columnar.NewDeletionVector(10)
	for _, i := range []int{2, 5, 7} {
		dv.MarkDeleted(i)
	}

	var compactedFileCount uint64
	writer, _ := newTestWriter(t, fs, dir, 1<<20, &compactedFileCount)

	dfc := newDataFileCompactor(fs, nil, stubDVLoader{"dv-ref": dv}, writer, logging.Discard)
	files := []SingleFileToCompact{{FileID: 1, Path: in0, DeletionVectorBlobRef: "dv-ref"}}
	if err := dfc.compactAll(files, &compactedFileCount); err != nil {
		t.Fatalf("compactAll: %v", err)
	}
	if writer.IsOpen() {
		if err := writer.Roll(); err != nil {
			t.Fatalf("Roll: %v", err)
		}
	}

	wantSurvivors := []int{0, 1, 3, 4, 6, 8, 9}
	if dfc.remap.len() != len(wantSurvivors) {
		t.Fatalf("remap has %d entries, want %d", dfc.remap.len(), len(wantSurvivors))
	}
	for newRow, oldRow := range wantSurvivors {
		pre := RecordLocation{FileID: 1, RowIndex: uint32(oldRow)}
		remapped, ok := dfc.remap.preToPost[pre]
		if !ok {
			t.Fatalf("missing remap entry for old row %d", oldRow)
		}
		if remapped.Location.RowIndex != uint32(newRow) {
			t.Errorf("old row %d mapped to new row %d, want %d (must be densely packed)", oldRow, remapped.Location.RowIndex, newRow)
		}
	}
}

type stubDVLoader map[string]*columnar.DeletionVector

func (s stubDVLoader) Load(blobRef string) (*columnar.DeletionVector, error) {
	dv, ok := s[blobRef]
	if !ok {
		return nil, fmt.Errorf("stubDVLoader: no deletion vector for %q", blobRef)
	}
	return dv, nil
}
