package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/logger"
)

const (
	ftsTable       = "text_fts"
	ftsShadowTable = "text_fts_shadow"
	ftsStateName   = "fts"
	generationKey  = "index_generation"

	// rebuildBatchSize is the number of nodes copied per checkpoint.
	rebuildBatchSize = 500
)

const ftsSchema = `CREATE VIRTUAL TABLE %s USING fts5(
	node_id UNINDEXED,
	kind UNINDEXED,
	text,
	tokenize = 'porter unicode61'
)`

// ==================== Index Maintenance ====================

// indexText replaces the full-text entry of a node. While a rebuild is in
// progress the shadow table receives the same write.
func indexText(ctx context.Context, tx *sql.Tx, id string, kind domain.NodeKind, text string) error {
	tables := []string{ftsTable}
	rebuilding, err := rebuildInProgress(ctx, tx)
	if err != nil {
		return err
	}
	if rebuilding {
		tables = append(tables, ftsShadowTable)
	}

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE node_id = ?", id); err != nil {
			return fmt.Errorf("clearing %s entry: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (node_id, kind, text) VALUES (?, ?, ?)", id, string(kind), text); err != nil {
			return fmt.Errorf("indexing %s: %w", id, err)
		}
	}
	return nil
}

// unindexText removes a node from the full-text index.
func unindexText(ctx context.Context, tx *sql.Tx, id string) error {
	tables := []string{ftsTable}
	rebuilding, err := rebuildInProgress(ctx, tx)
	if err != nil {
		return err
	}
	if rebuilding {
		tables = append(tables, ftsShadowTable)
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE node_id = ?", id); err != nil {
			return fmt.Errorf("unindexing %s: %w", id, err)
		}
	}
	return nil
}

func unindexDocChunks(ctx context.Context, tx *sql.Tx, docID string) error {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE doc_id = ?", docID)
	if err != nil {
		return fmt.Errorf("listing doc chunks: %w", err)
	}
	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating doc chunks: %w", err)
	}

	for _, id := range ids {
		if err := unindexText(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func rebuildInProgress(ctx context.Context, tx *sql.Tx) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM index_state WHERE name = ?", ftsStateName).Scan(&n); err != nil {
		return false, fmt.Errorf("reading index state: %w", err)
	}
	return n > 0, nil
}

// bumpGeneration records that indexed content changed.
func bumpGeneration(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
	`, generationKey)
	if err != nil {
		return fmt.Errorf("bumping index generation: %w", err)
	}
	return nil
}

func readGeneration(ctx context.Context, tx *sql.Tx) (int64, error) {
	var v string
	err := tx.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", generationKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading index generation: %w", err)
	}
	return strconv.ParseInt(v, 10, 64)
}

// ==================== Vector Index ====================

type vectorEntry struct {
	id   string
	kind domain.NodeKind
	vec  []float32
	norm float64
}

// vectorIndex is an exact cosine index over live text-bearing nodes,
// valid for one index generation.
type vectorIndex struct {
	generation int64
	entries    []vectorEntry
}

func (v *vectorIndex) search(query []float32, k int, kinds []domain.NodeKind) []domain.Candidate {
	qnorm := norm(query)
	if qnorm == 0 {
		return nil
	}
	allowed := kindSet(kinds)

	var out []domain.Candidate //nolint:prealloc // filtered below
	for _, e := range v.entries {
		if !allowed[e.kind] || len(e.vec) != len(query) || e.norm == 0 {
			continue
		}
		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(e.vec[i])
		}
		out = append(out, domain.Candidate{ID: e.id, Kind: e.kind, Score: dot / (qnorm * e.norm)})
	}

	sortCandidates(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func kindSet(kinds []domain.NodeKind) map[domain.NodeKind]bool {
	if len(kinds) == 0 {
		kinds = []domain.NodeKind{domain.NodeChunk, domain.NodeMemory}
	}
	set := make(map[domain.NodeKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

// sortCandidates orders by score descending, then id ascending.
func sortCandidates(c []domain.Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].ID < c[j].ID
	})
}

// QueryVector returns the k nearest live nodes by cosine similarity.
func (s *Store) QueryVector(ctx context.Context, vec []float32, k int, kinds []domain.NodeKind) ([]domain.Candidate, error) {
	if len(vec) == 0 || k <= 0 {
		return nil, nil
	}

	idx, err := s.currentVectors(ctx)
	if errors.Is(err, domain.ErrIndexStale) {
		logger.Debug("vector index stale, rebuilding")
		idx, err = s.rebuildVectors(ctx)
	}
	if err != nil {
		return nil, err
	}
	return idx.search(vec, k, kinds), nil
}

// currentVectors returns the loaded index, or domain.ErrIndexStale when it
// is missing or older than the store's generation.
func (s *Store) currentVectors(ctx context.Context) (*vectorIndex, error) {
	var gen int64
	if err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		gen, err = readGeneration(ctx, tx)
		return err
	}); err != nil {
		return nil, err
	}

	s.vecMu.RLock()
	defer s.vecMu.RUnlock()
	if s.vectors == nil || s.vectors.generation != gen {
		return nil, domain.ErrIndexStale
	}
	return s.vectors, nil
}

// rebuildVectors loads embeddings from one snapshot into a new index and
// swaps it in.
func (s *Store) rebuildVectors(ctx context.Context) (*vectorIndex, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	idx := &vectorIndex{}
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		if idx.generation, err = readGeneration(ctx, tx); err != nil {
			return err
		}

		s.vecMu.RLock()
		current := s.vectors
		s.vecMu.RUnlock()
		if current != nil && current.generation == idx.generation {
			idx = current
			return nil
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT c.id, 'Chunk', c.embedding FROM chunks c
			JOIN docs d ON d.id = c.doc_id
			WHERE d.retired = 0 AND c.stale = 0 AND c.embedding IS NOT NULL
			UNION ALL
			SELECT id, 'MemoryNote', embedding FROM memory_notes WHERE embedding IS NOT NULL
			ORDER BY 1
		`)
		if err != nil {
			return fmt.Errorf("loading embeddings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e vectorEntry
			var kind string
			var blob []byte
			if err := rows.Scan(&e.id, &kind, &blob); err != nil {
				return fmt.Errorf("scanning embedding: %w", err)
			}
			e.kind = domain.NodeKind(kind)
			e.vec = bytesToFloat32Slice(blob)
			e.norm = norm(e.vec)
			idx.entries = append(idx.entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	s.vecMu.Lock()
	s.vectors = idx
	s.vecMu.Unlock()
	return idx, nil
}

// ==================== Full-Text Index ====================

// QueryFullText returns the k best live nodes by BM25. Scores are negated
// BM25 so larger is better.
func (s *Store) QueryFullText(ctx context.Context, query string, k int, kinds []domain.NodeKind) ([]domain.Candidate, error) {
	match := ftsQuery(query)
	if match == "" || k <= 0 {
		return nil, nil
	}

	cands, err := s.queryFullText(ctx, match, k, kinds)
	if errors.Is(err, domain.ErrIndexStale) {
		logger.Debug("full-text index missing, rebuilding")
		if err := s.RebuildIndexes(ctx); err != nil {
			return nil, err
		}
		cands, err = s.queryFullText(ctx, match, k, kinds)
	}
	return cands, err
}

func (s *Store) queryFullText(ctx context.Context, match string, k int, kinds []domain.NodeKind) ([]domain.Candidate, error) {
	set := kindSet(kinds)
	args := []any{match}
	kindArgs := make([]string, 0, len(set))
	for kind := range set {
		kindArgs = append(kindArgs, string(kind))
	}
	sort.Strings(kindArgs)
	for _, kind := range kindArgs {
		args = append(args, kind)
	}
	args = append(args, k)

	var out []domain.Candidate
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT node_id, kind, -bm25(`+ftsTable+`) AS score
			FROM `+ftsTable+`
			WHERE `+ftsTable+` MATCH ? AND kind IN (`+placeholders(len(kindArgs))+`)
			ORDER BY score DESC, node_id ASC
			LIMIT ?
		`, args...)
		if err != nil {
			if strings.Contains(err.Error(), "no such table") {
				return fmt.Errorf("%w: %w", domain.ErrIndexStale, err)
			}
			return fmt.Errorf("querying full-text index: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c domain.Candidate
			var kind string
			if err := rows.Scan(&c.ID, &kind, &c.Score); err != nil {
				return fmt.Errorf("scanning full-text hit: %w", err)
			}
			c.Kind = domain.NodeKind(kind)
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// ftsQuery turns free text into an FTS5 expression that matches any of its
// terms. Terms are quoted so user input cannot inject query syntax.
func ftsQuery(q string) string {
	terms := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if seen[t] {
			continue
		}
		seen[t] = true
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// ==================== Rebuild ====================

// RebuildIndexes rebuilds the full-text index into a shadow table in
// checkpointed batches, swaps it in, then reloads the vector index.
// Cancelling between batches leaves the live index untouched and the
// next call resumes from the last checkpoint.
func (s *Store) RebuildIndexes(ctx context.Context) error {
	logger.Section("Index Rebuild")

	cursor, err := s.startRebuild(ctx)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("index rebuild paused at %q", cursor)
			return err
		}
		var copied int
		err := s.write(ctx, func(tx *sql.Tx) error {
			var err error
			cursor, copied, err = copyBatch(ctx, tx, cursor)
			return err
		})
		if err != nil {
			return fmt.Errorf("rebuilding full-text index: %w", err)
		}
		logger.Debug("copied %d nodes into shadow index (cursor %q)", copied, cursor)
		if copied < rebuildBatchSize {
			break
		}
	}

	if err := s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ftsTable); err != nil {
			return fmt.Errorf("dropping live index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+ftsShadowTable+" RENAME TO "+ftsTable); err != nil {
			return fmt.Errorf("swapping shadow index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_state WHERE name = ?", ftsStateName); err != nil {
			return fmt.Errorf("clearing index state: %w", err)
		}
		return bumpGeneration(ctx, tx)
	}); err != nil {
		return err
	}

	if _, err := s.rebuildVectors(ctx); err != nil {
		return fmt.Errorf("rebuilding vector index: %w", err)
	}
	logger.Info("indexes rebuilt")
	return nil
}

// startRebuild creates the shadow table, or returns the checkpoint of a
// rebuild that was interrupted.
func (s *Store) startRebuild(ctx context.Context) (string, error) {
	var cursor string
	err := s.write(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT cursor FROM index_state WHERE name = ?", ftsStateName).Scan(&cursor)
		if err == nil {
			logger.Info("resuming index rebuild after %q", cursor)
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading index state: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ftsShadowTable); err != nil {
			return fmt.Errorf("dropping stale shadow index: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(ftsSchema, ftsShadowTable)); err != nil {
			return fmt.Errorf("creating shadow index: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO index_state (name, cursor, started_at) VALUES (?, '', ?)",
			ftsStateName, toUnix(time.Now())); err != nil {
			return fmt.Errorf("recording index state: %w", err)
		}
		return nil
	})
	return cursor, err
}

// copyBatch copies the next batch of live text nodes after cursor into the
// shadow table and advances the checkpoint.
func copyBatch(ctx context.Context, tx *sql.Tx, cursor string) (string, int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, kind, text FROM (
			SELECT c.id AS id, 'Chunk' AS kind, c.text AS text FROM chunks c
			JOIN docs d ON d.id = c.doc_id WHERE d.retired = 0 AND c.stale = 0
			UNION ALL
			SELECT id, 'MemoryNote', text FROM memory_notes
		) WHERE id > ? ORDER BY id LIMIT ?
	`, cursor, rebuildBatchSize)
	if err != nil {
		return cursor, 0, fmt.Errorf("reading nodes: %w", err)
	}

	type entry struct{ id, kind, text string }
	var batch []entry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.kind, &e.text); err != nil {
			rows.Close()
			return cursor, 0, fmt.Errorf("scanning node: %w", err)
		}
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cursor, 0, err
	}

	for _, e := range batch {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+ftsShadowTable+" WHERE node_id = ?", e.id); err != nil {
			return cursor, 0, fmt.Errorf("clearing shadow entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+ftsShadowTable+" (node_id, kind, text) VALUES (?, ?, ?)", e.id, e.kind, e.text); err != nil {
			return cursor, 0, fmt.Errorf("copying %s: %w", e.id, err)
		}
		cursor = e.id
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE index_state SET cursor = ? WHERE name = ?", cursor, ftsStateName); err != nil {
		return cursor, 0, fmt.Errorf("checkpointing rebuild: %w", err)
	}
	return cursor, len(batch), nil
}
