// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - IngestService: files to content-addressed docs and chunks
//   - SearchService: hybrid retrieval fused into transient citations
//   - CitationService: persisted citation make/verify/open/list/gc
//   - DistillService: memory notes linked to their cited sources
//   - MemoryService: direct memory note authoring
//   - GraphService: pattern queries and index maintenance
//   - SettingsService: configuration with defaults
//
// Services are pure Go with no CGO. Chunk text is re-derived through
// the chunker package so citations and chunks share one span rule.
package services
