package driven

// Distillation prompt names.
const (
	PromptExtractFacts         = "extract-facts"
	PromptIdentifyPatterns     = "identify-patterns"
	PromptSummarizeInsights    = "summarize-insights"
	PromptExtractRelationships = "extract-relationships"
	PromptExtractEntities      = "extract-entities"
	PromptMemorySynthesis      = "memory-synthesis"
)

// PromptStore provides distillation prompt templates. Templates carry a
// single %s placeholder for the content to distil.
type PromptStore interface {
	// Load returns the template for name.
	Load(name string) (string, error)

	// Names returns the known prompt names in a stable order.
	Names() []string
}
