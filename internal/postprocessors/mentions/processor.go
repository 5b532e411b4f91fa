// Package mentions provides a processor that attaches entity mentions to chunks.
//
// Two markers are recognised: wiki links ([[Name]] or [[Name|type]]) and
// hashtags (#name). Detection is purely lexical so chunk annotations are
// reproducible across runs.
package mentions

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

var (
	wikiLink = regexp.MustCompile(`\[\[([^\[\]|]+)(?:\|([^\[\]]+))?\]\]`)
	hashtag  = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}][\p{L}\p{N}_-]*)`)
)

// Processor annotates chunks with the entities their text mentions.
type Processor struct {
	hashtags bool
}

// Option configures the processor.
type Option func(*Processor)

// WithHashtags toggles hashtag detection. Enabled by default.
func WithHashtags(enabled bool) Option {
	return func(p *Processor) {
		p.hashtags = enabled
	}
}

// New creates a mentions processor.
func New(opts ...Option) *Processor {
	p := &Processor{hashtags: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "mentions"
}

// Process sets Mentions on each chunk. Chunks are returned in input order.
func (p *Processor) Process(_ context.Context, _ *domain.Doc, _ string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	for i := range chunks {
		chunks[i].Mentions = p.Extract(chunks[i].Text)
	}
	return chunks, nil
}

// Extract returns the distinct entities mentioned in text, in order of
// first appearance.
func (p *Processor) Extract(text string) []domain.Entity {
	seen := make(map[string]bool)
	var out []domain.Entity
	add := func(e domain.Entity) {
		if e.Name == "" || seen[e.ID] {
			return
		}
		seen[e.ID] = true
		out = append(out, e)
	}

	for _, m := range wikiLink.FindAllStringSubmatch(text, -1) {
		typ := "concept"
		if strings.TrimSpace(m[2]) != "" {
			typ = m[2]
		}
		add(domain.NewEntity(m[1], typ))
	}
	if p.hashtags {
		for _, m := range hashtag.FindAllStringSubmatch(text, -1) {
			add(domain.NewEntity(m[1], "tag"))
		}
	}
	return out
}
