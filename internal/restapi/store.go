package restapi

import (
	"context"

	"github.com/signalforge/fsmrt/internal/query"
)

// Store is the subset of query.API methods used by the REST handlers.
// Defining an interface here lets handlers be tested against a mock store
// without a live database.
type Store interface {
	Get(ctx context.Context, class, id string) (any, bool, error)
	ListAll(ctx context.Context, class string) ([]query.Entity, error)
	GetByProperty(ctx context.Context, class, name, value string) ([]query.Entity, error)
	GetByPropertyWithRange(
		ctx context.Context,
		class, name, value, rangeName string,
		rangeStart float64, startInclusive bool,
		rangeEnd float64, endInclusive bool,
		limit int, lastID string,
	) ([]query.Entity, error)
}
