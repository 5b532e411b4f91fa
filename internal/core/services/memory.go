package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
	"github.com/custodia-labs/openkl/internal/logger"
	"github.com/custodia-labs/openkl/internal/postprocessors/mentions"
)

// Ensure MemoryService implements the interface.
var _ driving.MemoryService = (*MemoryService)(nil)

// MemoryOption configures a MemoryService.
type MemoryOption func(*MemoryService)

// WithDeterministicIDs derives note ids from note text.
func WithDeterministicIDs(enabled bool) MemoryOption {
	return func(s *MemoryService) {
		s.deterministic = enabled
	}
}

// MemoryService authors memory notes directly.
type MemoryService struct {
	store            driven.Store
	embeddingService driven.EmbeddingService
	clock            driven.Clock
	mentions         *mentions.Processor
	deterministic    bool
	newSuffix        func() string
}

// NewMemoryService creates a new memory service.
// The embeddingService parameter is optional (can be nil); notes are then
// stored without vectors and found by full text only.
func NewMemoryService(
	store driven.Store,
	embeddingService driven.EmbeddingService,
	clock driven.Clock,
	opts ...MemoryOption,
) *MemoryService {
	if clock == nil {
		clock = driven.SystemClock{}
	}
	s := &MemoryService{
		store:            store,
		embeddingService: embeddingService,
		clock:            clock,
		mentions:         mentions.New(),
		newSuffix:        randomSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// randomSuffix returns 8 random hex characters.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Add stores a new note with its topics and mentioned entities.
func (s *MemoryService) Add(ctx context.Context, text string, tags, topics []string) (*domain.MemoryNote, error) {
	note, err := s.newNote(ctx, text, tags)
	if err != nil {
		return nil, err
	}

	batch := noteBatch(*note, topics, s.mentions.Extract(note.Text))
	if err := s.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}
	note.Topics = topicNames(topics)

	logger.L().Debug().Str("id", note.ID).Int("topics", len(note.Topics)).Msg("memory added")
	return note, nil
}

// newNote builds and embeds a note. Nothing is written.
func (s *MemoryService) newNote(ctx context.Context, text string, tags []string) (*domain.MemoryNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: memory text is empty", domain.ErrInvalidInput)
	}

	now := s.clock.Now().UTC()
	id := domain.NewMemoryID(now, s.newSuffix())
	if s.deterministic {
		id = domain.DeterministicMemoryID(text)
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return &domain.MemoryNote{
		ID:        id,
		Text:      text,
		Timestamp: now,
		Tags:      normaliseLabels(tags),
		Embedding: vec,
	}, nil
}

// embed returns nil without an embedding service.
func (s *MemoryService) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embeddingService == nil {
		return nil, nil
	}
	vec, err := s.embeddingService.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// Get returns one note with its topics.
func (s *MemoryService) Get(ctx context.Context, id string) (*domain.MemoryNote, error) {
	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.Kind != domain.NodeMemory {
		return nil, fmt.Errorf("%w: %s is a %s", domain.ErrNotFound, id, node.Kind)
	}
	return node.Memory, nil
}

// Update changes text, tags or topics. A text change re-embeds the note and
// re-extracts its mentions. The id is kept.
func (s *MemoryService) Update(ctx context.Context, id string, update driving.MemoryUpdate) (*domain.MemoryNote, error) {
	note, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	batch := domain.Batch{}
	if update.Text != nil {
		text := strings.TrimSpace(*update.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: memory text is empty", domain.ErrInvalidInput)
		}
		if text != note.Text {
			if note.Embedding, err = s.embed(ctx, text); err != nil {
				return nil, err
			}
			note.Text = text
			for _, e := range s.mentions.Extract(text) {
				batch.Nodes = append(batch.Nodes, domain.EntityNode(e))
				batch.Edges = append(batch.Edges, domain.Edge{Kind: domain.EdgeMentions, Src: id, Dst: e.ID})
			}
			batch.ReplaceEdges = append(batch.ReplaceEdges, domain.EdgeMentions)
		}
	}
	if update.Tags != nil {
		note.Tags = normaliseLabels(*update.Tags)
	}
	if update.Topics != nil {
		for _, t := range topicNodes(*update.Topics) {
			batch.Nodes = append(batch.Nodes, domain.TopicNode(t))
			batch.Edges = append(batch.Edges, domain.Edge{Kind: domain.EdgeHasTopic, Src: id, Dst: t.ID})
		}
		batch.ReplaceEdges = append(batch.ReplaceEdges, domain.EdgeHasTopic)
		note.Topics = topicNames(*update.Topics)
	}
	note.Timestamp = s.clock.Now().UTC()

	batch.Nodes = append([]domain.Node{domain.MemoryNode(*note)}, batch.Nodes...)
	if err := s.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("updating memory: %w", err)
	}
	return note, nil
}

// Delete removes a note and its edges.
func (s *MemoryService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteNode(ctx, id)
}

// List returns notes newest first.
func (s *MemoryService) List(ctx context.Context, limit int) ([]domain.MemoryNote, error) {
	return s.store.ListMemories(ctx, limit)
}

// ==================== Batch helpers ====================

// noteBatch writes a note together with its topics and entities.
func noteBatch(note domain.MemoryNote, topics []string, entities []domain.Entity) domain.Batch {
	batch := domain.Batch{Nodes: []domain.Node{domain.MemoryNode(note)}}
	for _, t := range topicNodes(topics) {
		batch.Nodes = append(batch.Nodes, domain.TopicNode(t))
		batch.Edges = append(batch.Edges, domain.Edge{Kind: domain.EdgeHasTopic, Src: note.ID, Dst: t.ID})
	}
	seen := make(map[string]bool)
	for _, e := range entities {
		if e.ID == "" || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		batch.Nodes = append(batch.Nodes, domain.EntityNode(e))
		batch.Edges = append(batch.Edges, domain.Edge{Kind: domain.EdgeMentions, Src: note.ID, Dst: e.ID})
	}
	return batch
}

// topicNodes returns one topic per distinct non-empty slug.
func topicNodes(names []string) []domain.Topic {
	seen := make(map[string]bool)
	var out []domain.Topic
	for _, name := range names {
		t := domain.NewTopic(name)
		if t.Name == "" || t.ID == "topic-" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// topicNames returns topic names in the order the store reads them back.
func topicNames(names []string) []string {
	topics := topicNodes(names)
	sort.Slice(topics, func(i, j int) bool { return topics[i].ID < topics[j].ID })
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, t.Name)
	}
	return out
}

// normaliseLabels trims, dedupes and sorts tags.
func normaliseLabels(labels []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
