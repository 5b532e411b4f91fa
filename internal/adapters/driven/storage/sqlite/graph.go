package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// ==================== Node and Edge Writes ====================

// UpsertNode inserts or updates a single node.
func (s *Store) UpsertNode(ctx context.Context, node domain.Node) error {
	return s.Apply(ctx, domain.Batch{Nodes: []domain.Node{node}})
}

// UpsertEdge inserts a single edge.
func (s *Store) UpsertEdge(ctx context.Context, edge domain.Edge) error {
	return s.Apply(ctx, domain.Batch{Edges: []domain.Edge{edge}})
}

// Apply writes nodes, then edges, in one transaction. Any failure rolls
// back the whole batch.
func (s *Store) Apply(ctx context.Context, batch domain.Batch) error {
	for _, n := range batch.Nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("validating node: %w", err)
		}
	}
	for _, e := range batch.Edges {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("validating edge: %w", err)
		}
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		textChanged := false
		for _, n := range batch.Nodes {
			if err := writeNode(ctx, tx, n); err != nil {
				return err
			}
			textChanged = textChanged || n.Kind.IsTextBearing() || n.Kind == domain.NodeDoc
		}

		if batch.PruneChunks {
			if err := pruneChunks(ctx, tx, batch); err != nil {
				return err
			}
		}

		if len(batch.ReplaceEdges) > 0 {
			for _, n := range batch.Nodes {
				for _, kind := range batch.ReplaceEdges {
					if _, err := tx.ExecContext(ctx,
						"DELETE FROM edges WHERE src = ? AND kind = ?", n.ID(), string(kind)); err != nil {
						return fmt.Errorf("replacing %s edges: %w", kind, err)
					}
				}
			}
		}

		for _, e := range batch.Edges {
			if err := writeEdge(ctx, tx, e); err != nil {
				return err
			}
		}

		if textChanged {
			return bumpGeneration(ctx, tx)
		}
		return nil
	})
}

func writeNode(ctx context.Context, tx *sql.Tx, n domain.Node) error {
	switch n.Kind {
	case domain.NodeDoc:
		return writeDoc(ctx, tx, n.Doc)
	case domain.NodeChunk:
		return writeChunk(ctx, tx, n.Chunk)
	case domain.NodeMemory:
		return writeMemory(ctx, tx, n.Memory)
	case domain.NodeEntity:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, name, type) VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, n.Entity.ID, n.Entity.Name, n.Entity.Type)
		if err != nil {
			return fmt.Errorf("saving entity: %w", err)
		}
		return nil
	case domain.NodeTopic:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO topics (id, name) VALUES (?, ?)
			ON CONFLICT(id) DO NOTHING
		`, n.Topic.ID, n.Topic.Name)
		if err != nil {
			return fmt.Errorf("saving topic: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: node kind %q", domain.ErrUnsupportedType, n.Kind)
	}
}

// writeDoc stores a doc, checks for hash collisions and maps its path.
// A live doc previously mapped to the same path is retired.
func writeDoc(ctx context.Context, tx *sql.Tx, d *domain.Doc) error {
	var existing string
	err := tx.QueryRowContext(ctx, "SELECT sha256 FROM docs WHERE id = ?", d.ID).Scan(&existing)
	switch {
	case err == nil && existing != d.SHA256:
		return fmt.Errorf("%w: doc %s stored as %s, incoming %s", domain.ErrHashCollision, d.ID, existing, d.SHA256)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking doc: %w", err)
	}

	var url string
	var page int
	if d.Source != nil {
		url, page = d.Source.URL, d.Source.Page
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO docs (id, sha256, source_url, source_page, ingested_at, retired, text)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_url = excluded.source_url,
			source_page = excluded.source_page,
			retired = 0,
			text = CASE WHEN excluded.text <> '' THEN excluded.text ELSE docs.text END
	`, d.ID, d.SHA256, url, page, toUnix(d.IngestedAt), d.Text); err != nil {
		return fmt.Errorf("saving doc: %w", err)
	}

	if d.Path == "" {
		return nil
	}
	return mapPath(ctx, tx, d.ID, d.Path)
}

// mapPath points docID at path and retires any other live doc at that path.
func mapPath(ctx context.Context, tx *sql.Tx, docID, path string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT p.doc_id FROM doc_paths p JOIN docs d ON d.id = p.doc_id
		WHERE p.path = ? AND p.doc_id != ? AND d.retired = 0
	`, path, docID)
	if err != nil {
		return fmt.Errorf("finding docs at path: %w", err)
	}
	var previous []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning doc id: %w", err)
		}
		previous = append(previous, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating docs at path: %w", err)
	}

	for _, id := range previous {
		if err := retireDoc(ctx, tx, id); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO doc_paths (doc_id, path, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET path = excluded.path, updated_at = excluded.updated_at
	`, docID, path, toUnix(time.Now())); err != nil {
		return fmt.Errorf("mapping doc path: %w", err)
	}
	return nil
}

// retireDoc drops the doc's mapping and removes its chunks from the indexes.
// The doc and chunk nodes remain so existing edges stay valid.
func retireDoc(ctx context.Context, tx *sql.Tx, docID string) error {
	if _, err := tx.ExecContext(ctx, "UPDATE docs SET retired = 1 WHERE id = ?", docID); err != nil {
		return fmt.Errorf("retiring doc: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM doc_paths WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("unmapping doc: %w", err)
	}
	if err := unindexDocChunks(ctx, tx, docID); err != nil {
		return err
	}
	return nil
}

func writeChunk(ctx context.Context, tx *sql.Tx, c *domain.Chunk) error {
	var retired bool
	err := tx.QueryRowContext(ctx, "SELECT retired FROM docs WHERE id = ?", c.DocID).Scan(&retired)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: chunk %s references missing doc %s", domain.ErrReferentialIntegrity, c.ID, c.DocID)
	}
	if err != nil {
		return fmt.Errorf("checking chunk doc: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (id, doc_id, text, locator, span_start, span_end, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			embedding = excluded.embedding,
			stale = 0
	`, c.ID, c.DocID, c.Text, string(c.Span.Kind), c.Span.Start, c.Span.End,
		float32SliceToBytes(c.Embedding)); err != nil {
		return fmt.Errorf("saving chunk: %w", err)
	}

	if retired {
		return nil
	}
	return indexText(ctx, tx, c.ID, domain.NodeChunk, c.Text)
}

// pruneChunks marks live chunks of the batch's docs that the batch did not
// write as stale and drops them from the indexes.
func pruneChunks(ctx context.Context, tx *sql.Tx, batch domain.Batch) error {
	keep := make(map[string]bool)
	for _, n := range batch.Nodes {
		if n.Kind == domain.NodeChunk {
			keep[n.Chunk.ID] = true
		}
	}
	for _, n := range batch.Nodes {
		if n.Kind != domain.NodeDoc {
			continue
		}
		rows, err := tx.QueryContext(ctx, "SELECT id FROM chunks WHERE doc_id = ? AND stale = 0", n.Doc.ID)
		if err != nil {
			return fmt.Errorf("listing chunks to prune: %w", err)
		}
		var stale []string //nolint:prealloc // size unknown from query
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scanning chunk id: %w", err)
			}
			if !keep[id] {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, "UPDATE chunks SET stale = 1 WHERE id = ?", id); err != nil {
				return fmt.Errorf("marking chunk stale: %w", err)
			}
			if err := unindexText(ctx, tx, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMemory(ctx context.Context, tx *sql.Tx, m *domain.MemoryNote) error {
	tagsJSON, err := json.Marshal(normaliseTags(m.Tags))
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_notes (id, text, ts, tags, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			ts = excluded.ts,
			tags = excluded.tags,
			embedding = excluded.embedding
	`, m.ID, m.Text, toUnix(m.Timestamp), string(tagsJSON), float32SliceToBytes(m.Embedding)); err != nil {
		return fmt.Errorf("saving memory note: %w", err)
	}
	return indexText(ctx, tx, m.ID, domain.NodeMemory, m.Text)
}

func normaliseTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func writeEdge(ctx context.Context, tx *sql.Tx, e domain.Edge) error {
	for _, id := range []string{e.Src, e.Dst} {
		ok, err := nodeExists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s edge endpoint %s does not exist", domain.ErrReferentialIntegrity, e.Kind, id)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO edges (kind, src, dst, cite_id) VALUES (?, ?, ?, ?)
	`, string(e.Kind), e.Src, e.Dst, e.CiteID); err != nil {
		return fmt.Errorf("saving edge: %w", err)
	}
	return nil
}

// nodeTables maps node kinds to their tables.
var nodeTables = map[domain.NodeKind]string{
	domain.NodeDoc:    "docs",
	domain.NodeChunk:  "chunks",
	domain.NodeMemory: "memory_notes",
	domain.NodeEntity: "entities",
	domain.NodeTopic:  "topics",
}

func nodeExists(ctx context.Context, q queryer, id string) (bool, error) {
	kind, err := domain.KindOf(id)
	if err != nil {
		return false, err
	}
	var one int
	err = q.QueryRowContext(ctx, "SELECT 1 FROM "+nodeTables[kind]+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking node %s: %w", id, err)
	}
	return true, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DeleteNode removes a memory note together with its edges and index entry.
// Other node kinds are never deleted by the core.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	kind, err := domain.KindOf(id)
	if err != nil {
		return err
	}
	if kind != domain.NodeMemory {
		return fmt.Errorf("%w: only memory notes can be deleted, got %s", domain.ErrInvalidInput, kind)
	}

	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM memory_notes WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting memory note: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE src = ? OR dst = ?", id, id); err != nil {
			return fmt.Errorf("deleting memory edges: %w", err)
		}
		if err := unindexText(ctx, tx, id); err != nil {
			return err
		}
		return bumpGeneration(ctx, tx)
	})
}

// ==================== Node Reads ====================

// GetNode returns the node with the given id.
func (s *Store) GetNode(ctx context.Context, id string) (domain.Node, error) {
	var node domain.Node
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		node, err = getNode(ctx, tx, id)
		return err
	})
	return node, err
}

func getNode(ctx context.Context, tx *sql.Tx, id string) (domain.Node, error) {
	kind, err := domain.KindOf(id)
	if err != nil {
		return domain.Node{}, err
	}

	switch kind {
	case domain.NodeDoc:
		d, err := scanDoc(tx.QueryRowContext(ctx, docSelect+" WHERE d.id = ?", id))
		if err != nil {
			return domain.Node{}, err
		}
		return domain.DocNode(*d), nil

	case domain.NodeChunk:
		c, err := scanChunk(tx.QueryRowContext(ctx, chunkSelect+" WHERE id = ?", id))
		if err != nil {
			return domain.Node{}, err
		}
		if c.Mentions, err = linkedEntities(ctx, tx, id); err != nil {
			return domain.Node{}, err
		}
		return domain.ChunkNode(*c), nil

	case domain.NodeMemory:
		m, err := scanMemory(tx.QueryRowContext(ctx, memorySelect+" WHERE id = ?", id))
		if err != nil {
			return domain.Node{}, err
		}
		if m.Topics, err = linkedTopics(ctx, tx, id); err != nil {
			return domain.Node{}, err
		}
		return domain.MemoryNode(*m), nil

	case domain.NodeEntity:
		var e domain.Entity
		err := tx.QueryRowContext(ctx, "SELECT id, name, type FROM entities WHERE id = ?", id).Scan(&e.ID, &e.Name, &e.Type)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Node{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.Node{}, fmt.Errorf("scanning entity: %w", err)
		}
		return domain.EntityNode(e), nil

	default:
		var t domain.Topic
		err := tx.QueryRowContext(ctx, "SELECT id, name FROM topics WHERE id = ?", id).Scan(&t.ID, &t.Name)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Node{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.Node{}, fmt.Errorf("scanning topic: %w", err)
		}
		return domain.TopicNode(t), nil
	}
}

func linkedTopics(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT t.name FROM edges e JOIN topics t ON t.id = e.dst
		WHERE e.src = ? AND e.kind = ? ORDER BY t.id
	`, id, string(domain.EdgeHasTopic))
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	var names []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func linkedEntities(ctx context.Context, tx *sql.Tx, id string) ([]domain.Entity, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT en.id, en.name, en.type FROM edges e JOIN entities en ON en.id = e.dst
		WHERE e.src = ? AND e.kind = ? ORDER BY en.id
	`, id, string(domain.EdgeMentions))
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var out []domain.Entity //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListMemories returns memory notes, newest first.
func (s *Store) ListMemories(ctx context.Context, limit int) ([]domain.MemoryNote, error) {
	if limit <= 0 {
		limit = -1
	}
	var notes []domain.MemoryNote
	err := s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, memorySelect+" ORDER BY ts DESC, id ASC LIMIT ?", limit)
		if err != nil {
			return fmt.Errorf("listing memory notes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMemory(rows)
			if err != nil {
				return err
			}
			notes = append(notes, *m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating memory notes: %w", err)
		}
		for i := range notes {
			if notes[i].Topics, err = linkedTopics(ctx, tx, notes[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	return notes, err
}

// ==================== Traversal ====================

// Neighbors returns ids one edge away from id, ordered by id.
func (s *Store) Neighbors(ctx context.Context, id string, kind domain.EdgeKind, dir domain.Direction) ([]string, error) {
	var out []string
	err := s.read(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = neighbors(ctx, tx, id, kind, dir)
		return err
	})
	return out, err
}

func neighbors(ctx context.Context, tx *sql.Tx, id string, kind domain.EdgeKind, dir domain.Direction) ([]string, error) {
	query := "SELECT DISTINCT dst FROM edges WHERE src = ? AND kind = ? ORDER BY dst"
	if dir == domain.Incoming {
		query = "SELECT DISTINCT src FROM edges WHERE dst = ? AND kind = ? ORDER BY src"
	}
	rows, err := tx.QueryContext(ctx, query, id, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying neighbors: %w", err)
	}
	defer rows.Close()

	var out []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning neighbor: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DefaultTraverseLimit caps the number of paths Traverse returns.
const DefaultTraverseLimit = 100

// Traverse expands a frontier of paths one step at a time. Paths never
// revisit a node, so "MemoryNote -HasTopic-> Topic <-HasTopic- MemoryNote"
// pairs distinct notes.
func (s *Store) Traverse(ctx context.Context, p domain.Pattern) ([]domain.Path, error) {
	if !p.StartKind.IsValid() {
		return nil, fmt.Errorf("%w: start kind %q", domain.ErrInvalidInput, p.StartKind)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultTraverseLimit
	}

	var paths []domain.Path
	err := s.read(ctx, func(tx *sql.Tx) error {
		starts, err := startIDs(ctx, tx, p)
		if err != nil {
			return err
		}
		frontier := make([]domain.Path, 0, len(starts))
		for _, id := range starts {
			frontier = append(frontier, domain.Path{id})
		}

		for _, step := range p.Steps {
			var next []domain.Path
			for _, path := range frontier {
				ids, err := neighbors(ctx, tx, path[len(path)-1], step.Edge, step.Direction)
				if err != nil {
					return err
				}
				for _, id := range ids {
					if k, err := domain.KindOf(id); err != nil || k != step.Kind || contains(path, id) {
						continue
					}
					extended := make(domain.Path, len(path), len(path)+1)
					copy(extended, path)
					next = append(next, append(extended, id))
				}
			}
			frontier = next
			if len(frontier) == 0 {
				break
			}
		}

		if len(frontier) > limit {
			frontier = frontier[:limit]
		}
		paths = frontier
		return nil
	})
	return paths, err
}

func startIDs(ctx context.Context, tx *sql.Tx, p domain.Pattern) ([]string, error) {
	if p.StartID != "" {
		kind, err := domain.KindOf(p.StartID)
		if err != nil {
			return nil, err
		}
		if kind != p.StartKind {
			return nil, fmt.Errorf("%w: %s is not a %s", domain.ErrInvalidInput, p.StartID, p.StartKind)
		}
		ok, err := nodeExists(ctx, tx, p.StartID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNotFound
		}
		return []string{p.StartID}, nil
	}

	rows, err := tx.QueryContext(ctx, "SELECT id FROM "+nodeTables[p.StartKind]+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing start nodes: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning start node: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func contains(path domain.Path, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

// ==================== Stats ====================

// Stats counts nodes per kind, edges per kind and citations.
func (s *Store) Stats(ctx context.Context) (domain.GraphStats, error) {
	stats := domain.GraphStats{
		Nodes: make(map[domain.NodeKind]int),
		Edges: make(map[domain.EdgeKind]int),
	}
	err := s.read(ctx, func(tx *sql.Tx) error {
		for kind, table := range nodeTables {
			var n int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
				return fmt.Errorf("counting %s: %w", table, err)
			}
			stats.Nodes[kind] = n
		}

		rows, err := tx.QueryContext(ctx, "SELECT kind, COUNT(*) FROM edges GROUP BY kind")
		if err != nil {
			return fmt.Errorf("counting edges: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var kind string
			var n int
			if err := rows.Scan(&kind, &n); err != nil {
				return fmt.Errorf("scanning edge count: %w", err)
			}
			stats.Edges[domain.EdgeKind(kind)] = n
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM citations").Scan(&stats.Citations)
	})
	return stats, err
}

// ==================== Scanners ====================

const (
	docSelect = `SELECT d.id, d.sha256, d.source_url, d.source_page, d.ingested_at, d.retired,
		COALESCE(p.path, ''), d.text FROM docs d LEFT JOIN doc_paths p ON p.doc_id = d.id`
	chunkSelect  = "SELECT id, doc_id, text, locator, span_start, span_end, embedding FROM chunks"
	memorySelect = "SELECT id, text, ts, tags, embedding FROM memory_notes"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(row scanner) (*domain.Doc, error) {
	var d domain.Doc
	var url string
	var page int
	var ingested int64
	if err := row.Scan(&d.ID, &d.SHA256, &url, &page, &ingested, &d.Retired, &d.Path, &d.Text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning doc: %w", err)
	}
	d.IngestedAt = fromUnix(ingested)
	if url != "" || page != 0 {
		d.Source = &domain.CiteSource{URL: url, Page: page}
	}
	return &d, nil
}

func scanChunk(row scanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var locator string
	var embeddingBlob []byte
	if err := row.Scan(&c.ID, &c.DocID, &c.Text, &locator, &c.Span.Start, &c.Span.End, &embeddingBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	c.Span.Kind = domain.LocatorKind(locator)
	c.Embedding = bytesToFloat32Slice(embeddingBlob)
	return &c, nil
}

func scanMemory(row scanner) (*domain.MemoryNote, error) {
	var m domain.MemoryNote
	var ts int64
	var tagsJSON string
	var embeddingBlob []byte
	if err := row.Scan(&m.ID, &m.Text, &ts, &tagsJSON, &embeddingBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning memory note: %w", err)
	}
	m.Timestamp = fromUnix(ts)
	m.Embedding = bytesToFloat32Slice(embeddingBlob)
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
			return nil, fmt.Errorf("unmarshaling tags: %w", err)
		}
	}
	return &m, nil
}
