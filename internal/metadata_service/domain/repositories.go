package domain

import (
	"context"
	"errors"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

// ErrStore is returned when the contents table cannot be read.
var ErrStore = errors.New("content store unavailable")

// ContentRepository loads catalogue contents.
type ContentRepository interface {
	// GetByIDs returns the contents whose ids are in ids. Unknown ids are
	// absent from the result, not an error.
	GetByIDs(ctx context.Context, ids []uint32) ([]core.Content, error)
}
