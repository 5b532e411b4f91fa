package driving

import "github.com/custodia-labs/openkl/internal/core/domain"

// SettingsService reads and writes application settings.
type SettingsService interface {
	// Get returns the stored settings layered over defaults.
	Get() (*domain.AppSettings, error)

	// Save persists settings.
	Save(settings *domain.AppSettings) error

	// Set parses value for a single dotted key and persists it.
	Set(key, value string) error

	// Validate checks the current settings.
	Validate() error
}
