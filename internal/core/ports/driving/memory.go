package driving

import (
	"context"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// MemoryUpdate changes selected fields. Nil fields are left as they are.
type MemoryUpdate struct {
	Text   *string
	Tags   *[]string
	Topics *[]string
}

// MemoryService authors memory notes directly.
type MemoryService interface {
	Add(ctx context.Context, text string, tags, topics []string) (*domain.MemoryNote, error)
	Get(ctx context.Context, id string) (*domain.MemoryNote, error)
	Update(ctx context.Context, id string, update MemoryUpdate) (*domain.MemoryNote, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]domain.MemoryNote, error)
}
