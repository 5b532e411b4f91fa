package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested doc, chunk, memory or node does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCiteNotFound indicates a citation id is unknown.
	ErrCiteNotFound = errors.New("citation not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown normaliser or node kind.
	ErrUnsupportedType = errors.New("unsupported type")

	// Integrity Errors.

	// ErrMalformedID indicates an id fails grammar parsing.
	ErrMalformedID = errors.New("malformed id")

	// ErrHashCollision indicates two distinct payloads map to the same doc id.
	// It is fatal for the enclosing write and needs manual intervention.
	ErrHashCollision = errors.New("hash collision detected")

	// ErrReferentialIntegrity indicates an edge endpoint does not exist.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrDrift indicates a citation no longer matches its source.
	// Verification reports drift as a result; this error only surfaces
	// from callers that require a valid citation.
	ErrDrift = errors.New("citation drift")

	// ErrInvalidSourceCitation indicates a distillation input does not resolve.
	ErrInvalidSourceCitation = errors.New("invalid source citation")

	// ErrChunkingChanged indicates the requested chunking parameters differ
	// from those recorded in the store. Re-chunking must be requested explicitly.
	ErrChunkingChanged = errors.New("chunking parameters changed")

	// Store Errors.

	// ErrStoreBusy indicates the single-writer lock could not be acquired
	// within the bounded wait. Callers may retry with backoff.
	ErrStoreBusy = errors.New("store busy")

	// ErrIndexStale indicates a query was issued before the required index exists.
	ErrIndexStale = errors.New("index stale")

	// Collaborator Errors.

	// ErrEmbeddingUnavailable indicates the embedding service is not configured
	// or did not respond. Vector search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)
