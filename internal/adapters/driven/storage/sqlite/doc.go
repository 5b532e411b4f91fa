// Package sqlite provides the embedded graph store behind the driven
// persistence ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database file implements:
//
//   - GraphStore: Doc, Chunk, MemoryNote, Entity and Topic nodes plus typed edges
//   - DocStore: The docId to path mapping table
//   - CitationStore: Immutable citation records
//   - MetaStore: Chunking parameters and index generations
//
// # Indexes
//
// Full-text search uses an FTS5 table scored with BM25. Vector search uses an
// in-process cosine index loaded from stored embeddings; it is rebuilt lazily
// whenever the store's index generation moves past the loaded copy.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.ok/data/graph.db
//
// # Thread Safety
//
// Readers use read-only transactions and see a WAL snapshot. Writers are
// serialised by an in-process gate with a bounded wait and by BEGIN IMMEDIATE
// across processes; contention surfaces as domain.ErrStoreBusy.
package sqlite
