// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - GraphStore: Typed node/edge storage with vector and full-text indexes
//   - DocStore: Doc path mapping and chunk lookup
//   - CitationStore: Immutable citation records
//   - MetaStore: Store-level metadata such as chunking parameters
//   - NormaliserRegistry: Selects the normaliser for a file
//   - PostProcessorPipeline: Turns normalised text into chunks
//   - ConfigStore: Application configuration
//   - Clock: Current time
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingService: Generates vector embeddings. Without it, search is full-text only.
//   - FileWatcher: Reports file moves so doc paths can be relinked.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
