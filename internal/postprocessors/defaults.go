package postprocessors

import (
	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
	"github.com/custodia-labs/openkl/internal/postprocessors/chunker"
	"github.com/custodia-labs/openkl/internal/postprocessors/mentions"
)

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("mentions", buildMentions)
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - window_size (int): Units per chunk (default: 512)
//   - stride (int): Units shared by consecutive chunks (default: 128)
//   - locator (string): "char" or "tok" (default: "char")
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if cfg != nil {
		if size := getIntFromConfig(cfg, "window_size"); size > 0 {
			opts = append(opts, chunker.WithWindowSize(size))
		}
		if _, ok := cfg["stride"]; ok {
			opts = append(opts, chunker.WithStride(getIntFromConfig(cfg, "stride")))
		}
		if locator, ok := cfg["locator"].(string); ok {
			opts = append(opts, chunker.WithLocator(domain.LocatorKind(locator)))
		}
	}

	return chunker.New(opts...), nil
}

// buildMentions creates a mentions processor from generic config.
// Supported config keys:
//   - hashtags (bool): Detect #hashtags (default: true)
func buildMentions(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []mentions.Option
	if enabled, ok := cfg["hashtags"].(bool); ok {
		opts = append(opts, mentions.WithHashtags(enabled))
	}
	return mentions.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
