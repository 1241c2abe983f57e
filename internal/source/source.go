package source

import (
	"context"

	"spxreplay/internal/model"
)

// Source retrieves a complete record batch in one request.
type Source interface {
	Fetch(ctx context.Context) (model.Batch, error)
	Name() string
}
