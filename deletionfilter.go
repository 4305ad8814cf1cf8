package compaction

import "github.com/aalhour/lakestore/internal/columnar"

// applyDeletionFilter filters a decoded batch whose first row corresponds to
// absolute row index startRowIdx in the original input file, returning the
// surviving rows in original order together with their absolute indices. If
// dv is empty the batch is returned unchanged.
func applyDeletionFilter(dv *columnar.DeletionVector, b *columnar.Batch, startRowIdx int) (filtered *columnar.Batch, survivingAbsIdx []int) {
	return dv.ApplyToSlice(b, startRowIdx)
}
