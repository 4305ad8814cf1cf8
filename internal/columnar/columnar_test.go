package columnar

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/aalhour/lakestore/internal/vfs"
)

func TestWriterReader_RoundTrip(t *testing.T) {
	fs := vfs.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w := NewWriter(f)

	batches := []*Batch{
		{Rows: [][]byte{[]byte("row-0"), []byte("row-1"), []byte("row-2")}},
		{Rows: [][]byte{[]byte("row-3"), []byte("row-4")}},
	}
	for _, b := range batches {
		if err := w.WriteBatch(b); err != nil {
			t.Fatalf("WriteBatch: %v", err)
		}
	}
	if w.InMemoryFootprint() <= 0 {
		t.Fatalf("InMemoryFootprint() = %d, want > 0", w.InMemoryFootprint())
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if w.BytesWritten() <= 0 {
		t.Fatalf("BytesWritten() = %d, want > 0", w.BytesWritten())
	}

	rf, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r := NewReader(rf)
	defer r.Close()

	var gotRows [][]byte
	for {
		b, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		gotRows = append(gotRows, b.Rows...)
	}

	var wantRows [][]byte
	for _, b := range batches {
		wantRows = append(wantRows, b.Rows...)
	}
	if len(gotRows) != len(wantRows) {
		t.Fatalf("got %d rows, want %d", len(gotRows), len(wantRows))
	}
	for i, row := range gotRows {
		if string(row) != string(wantRows[i]) {
			t.Errorf("row[%d] = %q, want %q", i, row, wantRows[i])
		}
	}
}

func TestBatch_Select(t *testing.T) {
	b := &Batch{Rows: [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}}
	got := b.Select([]int{0, 2, 3})
	want := [][]byte{[]byte("a"), []byte("c"), []byte("d")}
	if len(got.Rows) != len(want) {
		t.Fatalf("Select len = %d, want %d", len(got.Rows), len(want))
	}
	for i := range want {
		if string(got.Rows[i]) != string(want[i]) {
			t.Errorf("Select[%d] = %q, want %q", i, got.Rows[i], want[i])
		}
	}
}
