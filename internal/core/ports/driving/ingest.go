package driving

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// IngestOptions controls ingestion.
type IngestOptions struct {
	// Rechunk accepts chunking parameters that differ from the ones
	// recorded in the store.
	Rechunk bool
}

// IngestService turns local files into Docs and Chunks.
type IngestService interface {
	// Ingest stores one file.
	Ingest(ctx context.Context, path string, opts IngestOptions) (*domain.IngestResult, error)

	// IngestBatch stores many files. One failure does not stop the batch;
	// cancellation stops between documents.
	IngestBatch(ctx context.Context, paths []string, opts IngestOptions) (*domain.IngestReport, error)

	// IngestDir walks root applying include/exclude globs and ingests
	// every supported file.
	IngestDir(ctx context.Context, root string, opts IngestOptions) (*domain.IngestReport, error)

	// ListDocs returns ingested docs ordered by path. Retired docs are
	// included only when asked for.
	ListDocs(ctx context.Context, includeRetired bool) ([]domain.DocSummary, error)

	// Relocate points a doc id at a new path.
	Relocate(ctx context.Context, docID, path string) error

	// Relink hashes the file at path and, if it matches a known doc,
	// records path as that doc's location. It reports the doc id matched.
	Relink(ctx context.Context, path string) (string, error)

	// Watch ingests files under roots as they change until ctx is done.
	// report is called with the outcome of every ingestion.
	Watch(ctx context.Context, roots []string, opts IngestOptions, report func(domain.IngestResult)) error
}
