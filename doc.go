// Package compaction is the data-file compaction core of a columnar table
// engine. It fuses a set of immutable input data files, together with their
// per-file deletion vectors, into a small number of dense output files, and
// produces an exact per-row remap from pre-compaction to post-compaction
// record locations along with a single merged secondary index.
//
// The package does not perform ingestion, query execution, or schema
// evolution; it consumes the object-storage cache, the columnar reader and
// writer, the deletion-vector loader, and the index subsystem as narrow
// external collaborators (see the Cache, ColumnarReader, ColumnarWriter,
// DeletionVectorLoader, and IndexSubsystem interfaces).
package compaction
