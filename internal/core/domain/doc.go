// Package domain defines the core business entities for openkl.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Doc: A content-addressed, normalised text artifact
//   - Chunk: An overlapping window over a Doc's text
//   - MemoryNote: An authored or distilled insight
//   - Entity, Topic: Labels referenced through Mentions/HasTopic edges
//   - Cite: A quoted span anchored to a node and a file path
//
// It also owns the content-addressing rules (AddressDoc, FormatChunkID,
// ParseChunkID) since every other layer depends on node identity.
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
