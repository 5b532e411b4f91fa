package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// ==================== Doc Mapping ====================

// DocPath returns the path currently mapped to docID.
func (s *Store) DocPath(ctx context.Context, docID string) (string, error) {
	var path string
	err := s.read(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT path FROM doc_paths WHERE doc_id = ?", docID).Scan(&path)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("getting doc path: %w", err)
		}
		return nil
	})
	return path, err
}

// DocByPath returns the live doc mapped to path.
func (s *Store) DocByPath(ctx context.Context, path string) (*domain.Doc, error) {
	var doc *domain.Doc
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		doc, err = scanDoc(tx.QueryRowContext(ctx,
			docSelect+" WHERE p.path = ? AND d.retired = 0 ORDER BY d.ingested_at DESC LIMIT 1", path))
		return err
	})
	return doc, err
}

// Relocate points docID at a new path. A different live doc already at that
// path is retired.
func (s *Store) Relocate(ctx context.Context, docID, path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", domain.ErrInvalidInput)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		var retired bool
		err := tx.QueryRowContext(ctx, "SELECT retired FROM docs WHERE id = ?", docID).Scan(&retired)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking doc: %w", err)
		}
		if retired {
			return fmt.Errorf("%w: doc %s is retired", domain.ErrInvalidInput, docID)
		}
		return mapPath(ctx, tx, docID, path)
	})
}

// ListDocs returns docs ordered by path, then id.
func (s *Store) ListDocs(ctx context.Context, includeRetired bool) ([]domain.Doc, error) {
	query := docSelect
	if !includeRetired {
		query += " WHERE d.retired = 0"
	}
	query += " ORDER BY COALESCE(p.path, ''), d.id"

	var docs []domain.Doc
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("listing docs: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			d, err := scanDoc(rows)
			if err != nil {
				return err
			}
			docs = append(docs, *d)
		}
		return rows.Err()
	})
	return docs, err
}

// DocChunks returns the chunks of docID ordered by span start.
func (s *Store) DocChunks(ctx context.Context, docID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, chunkSelect+" WHERE doc_id = ? ORDER BY span_start, span_end", docID)
		if err != nil {
			return fmt.Errorf("listing chunks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				return err
			}
			chunks = append(chunks, *c)
		}
		return rows.Err()
	})
	return chunks, err
}
