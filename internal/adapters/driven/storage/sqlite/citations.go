package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// ==================== Citations ====================

// SaveCitation inserts a citation record. Existing records are never
// overwritten.
func (s *Store) SaveCitation(ctx context.Context, cite domain.Cite) error {
	if cite.CiteID == "" {
		return fmt.Errorf("%w: citation without id", domain.ErrInvalidInput)
	}
	record, err := json.Marshal(cite)
	if err != nil {
		return fmt.Errorf("marshalling citation: %w", err)
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO citations (cite_id, type, target_id, retention_class, created_at, record)
			VALUES (?, ?, ?, ?, ?, ?)
		`, cite.CiteID, string(cite.Type), cite.ID, string(cite.RetentionClass), toUnix(cite.CreatedAt), string(record))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("%w: citation %s already exists", domain.ErrInvalidInput, cite.CiteID)
			}
			return fmt.Errorf("saving citation: %w", err)
		}
		return nil
	})
}

// GetCitation returns a citation record.
func (s *Store) GetCitation(ctx context.Context, citeID string) (*domain.Cite, error) {
	var cite *domain.Cite
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		cite, err = scanCitation(tx.QueryRowContext(ctx, "SELECT record FROM citations WHERE cite_id = ?", citeID))
		return err
	})
	return cite, err
}

// ListCitations returns every citation ordered by creation time, then id.
func (s *Store) ListCitations(ctx context.Context) ([]domain.Cite, error) {
	var cites []domain.Cite
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT record FROM citations ORDER BY created_at, cite_id")
		if err != nil {
			return fmt.Errorf("listing citations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanCitation(rows)
			if err != nil {
				return err
			}
			cites = append(cites, *c)
		}
		return rows.Err()
	})
	return cites, err
}

// CitationUsage counts DerivedFrom edges that carry citeID.
func (s *Store) CitationUsage(ctx context.Context, citeID string) (int, error) {
	var n int
	err := s.read(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM edges WHERE kind = ? AND cite_id = ?",
			string(domain.EdgeDerivedFrom), citeID).Scan(&n); err != nil {
			return fmt.Errorf("counting citation usage: %w", err)
		}
		return nil
	})
	return n, err
}

// DeleteCitations removes citation records in one transaction.
func (s *Store) DeleteCitations(ctx context.Context, citeIDs []string) error {
	if len(citeIDs) == 0 {
		return nil
	}
	args := make([]any, len(citeIDs))
	for i, id := range citeIDs {
		args[i] = id
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM citations WHERE cite_id IN ("+placeholders(len(args))+")", args...); err != nil {
			return fmt.Errorf("deleting citations: %w", err)
		}
		return nil
	})
}

func scanCitation(row scanner) (*domain.Cite, error) {
	var record string
	if err := row.Scan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCiteNotFound
		}
		return nil, fmt.Errorf("scanning citation: %w", err)
	}
	var c domain.Cite
	if err := json.Unmarshal([]byte(record), &c); err != nil {
		return nil, fmt.Errorf("unmarshaling citation: %w", err)
	}
	return &c, nil
}
