package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads distillation prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// Files are only created on first Load, not in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptExtractFacts: `Extract key facts and important details from the following content. Focus on concrete information, numbers, dates, and specific claims.

Content:
%s

Instructions:
- Extract the most important factual information
- Include specific details, numbers, dates, and concrete claims
- Avoid opinions or interpretations
- Format as clear, concise bullet points
- Each fact should be standalone and verifiable

Output format:
- [Fact 1]
- [Fact 2]
- [Fact 3]`,

	driven.PromptIdentifyPatterns: `Identify recurring patterns, principles, and common approaches from the following content. Focus on generalizable insights.

Content:
%s

Instructions:
- Look for recurring themes, approaches, or principles
- Identify patterns that could apply to similar situations
- Extract generalizable insights and best practices
- Focus on "how" and "why" rather than specific details
- Format as clear principles or patterns

Output format:
- Pattern/Principle 1: [Description]
- Pattern/Principle 2: [Description]`,

	driven.PromptSummarizeInsights: `Create a high-level summary of the key insights from the following content. Focus on the main takeaways and implications.

Content:
%s

Instructions:
- Identify the main themes and key takeaways
- Focus on implications and broader significance
- Synthesize information into coherent insights
- Avoid repeating specific details

Output format:
[2-3 paragraph summary focusing on key insights and implications]`,

	driven.PromptExtractRelationships: `Identify relationships and connections between concepts in the following content. Focus on how different ideas relate to each other.

Content:
%s

Instructions:
- Identify how different concepts, ideas, or entities relate
- Look for cause-effect relationships, dependencies, and interactions
- Note hierarchical or categorical relationships
- Format as relationship statements

Output format:
- [Concept A] -> [Relationship] -> [Concept B]
- [Concept C] depends on [Concept D]`,

	driven.PromptExtractEntities: `Extract important entities (people, organizations, technologies, concepts) and their key properties from the following content.

Content:
%s

Instructions:
- Identify important entities central to the content
- Extract key properties or characteristics of each entity
- Note relationships between entities
- Format as entity-property pairs

Output format:
- [Entity Name]: [Key properties and characteristics]`,

	driven.PromptMemorySynthesis: `Synthesize the following content into a concise, actionable memory entry. Focus on creating a useful reference for future use.

Content:
%s

Instructions:
- Create a concise summary that captures the essence
- Focus on actionable insights and key takeaways
- Include important context and implications
- Keep it under 200 words

Output format:
[Concise, actionable memory entry that captures key insights and context]`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.ok/prompts/.
//
// The constructor does not perform any I/O.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".ok", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Names returns the built-in prompt names, sorted.
func (s *PromptStore) Names() []string {
	names := make([]string, 0, len(defaultPrompts))
	for name := range defaultPrompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// A user file that lost its placeholder falls back to the embedded default.
func (s *PromptStore) Load(name string) (string, error) {
	defaultPrompt, known := defaultPrompts[name]
	if !known {
		return "", fmt.Errorf("%w: unknown prompt %q", domain.ErrNotFound, name)
	}

	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		return defaultPrompt, nil
	}

	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	prompt, err := s.loadFromFile(name)
	if err != nil || !strings.Contains(prompt, "%s") {
		return defaultPrompt, nil
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}
}

func (s *PromptStore) loadFromFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.promptDir, name+".txt"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
