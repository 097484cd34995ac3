// Package query implements the read-only Query API (spec.md §4.K): lookups
// by id, by property, and by a numeric ranged property, each acquiring its
// own fresh connection per spec.md §5. Grounded on
// rest.Server.handleGetAlerts's filter/pagination construction (optional
// exact-match filters, a mandatory ranged window, limit/offset-shaped
// pagination), generalized from the fixed AlertQuery struct to generic
// property names/values and a lastID exclusive cursor.
package query

import (
	"context"
	"errors"
	"math"

	"github.com/signalforge/fsmrt/internal/behavior"
	"github.com/signalforge/fsmrt/internal/codec"
	"github.com/signalforge/fsmrt/internal/store"
	"github.com/signalforge/fsmrt/internal/txn"
)

// Combine selects how GetByProperties merges its per-property result sets.
type Combine int

const (
	And Combine = iota
	Or
)

// Entity pairs a decoded entity value with its id.
type Entity struct {
	ID     string
	Value  any
	State  string
}

// API is the Query API.
type API struct {
	Store       *store.Store
	Behaviors   behavior.Factory
	EntityCodec codec.Serializer
	Query       txn.QueryFactory
}

func (a *API) acquire(ctx context.Context) (txn.Queryer, func(), error) {
	return a.Query(ctx)
}

// Get returns the decoded entity for (class, id).
func (a *API) Get(ctx context.Context, class, id string) (any, bool, error) {
	q, release, err := a.acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	row, err := a.Store.ReadEntity(ctx, q, class, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := a.EntityCodec.Deserialize(class, row.Bytes)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetWithState returns the decoded entity and its parsed state value for
// (class, id).
func (a *API) GetWithState(ctx context.Context, class, id string) (any, interface{ String() string }, bool, error) {
	q, release, err := a.acquire(ctx)
	if err != nil {
		return nil, nil, false, err
	}
	defer release()

	row, err := a.Store.ReadEntity(ctx, q, class, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	b, ok := a.Behaviors.Resolve(class)
	if !ok {
		return nil, nil, false, errors.New("query: no behavior registered for class " + class)
	}
	stateValue, err := b.From(row.State)
	if err != nil {
		return nil, nil, false, err
	}
	v, err := a.EntityCodec.Deserialize(class, row.Bytes)
	if err != nil {
		return nil, nil, false, err
	}
	return v, stateValue, true, nil
}

// ListAll returns every entity of class.
func (a *API) ListAll(ctx context.Context, class string) ([]Entity, error) {
	q, release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := a.Store.ListAll(ctx, q, class)
	if err != nil {
		return nil, err
	}
	return a.decodeAll(class, rows)
}

// GetByProperty returns every entity of class carrying property
// (name, value).
func (a *API) GetByProperty(ctx context.Context, class, name, value string) ([]Entity, error) {
	q, release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := a.Store.GetByProperty(ctx, q, class, name, value)
	if err != nil {
		return nil, err
	}
	return a.decodeAll(class, rows)
}

// GetByProperties returns entities of class matching every (name, value) in
// props (And) or at least one (Or).
func (a *API) GetByProperties(ctx context.Context, class string, props map[string]string, combine Combine) ([]Entity, error) {
	if len(props) == 0 {
		return nil, nil
	}

	q, release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var sets [][]store.IDEntity
	for name, value := range props {
		rows, err := a.Store.GetByProperty(ctx, q, class, name, value)
		if err != nil {
			return nil, err
		}
		sets = append(sets, rows)
	}

	merged := mergeSets(sets, combine)
	return a.decodeAll(class, merged)
}

func mergeSets(sets [][]store.IDEntity, combine Combine) []store.IDEntity {
	counts := map[string]int{}
	byID := map[string]store.IDEntity{}
	for _, set := range sets {
		for _, ie := range set {
			counts[ie.ID]++
			byID[ie.ID] = ie
		}
	}

	var out []store.IDEntity
	for id, count := range counts {
		if combine == And && count != len(sets) {
			continue
		}
		out = append(out, byID[id])
	}
	return out
}

// GetByPropertyWithRange returns entities of class carrying property
// (name, value) whose second, numeric property (rangeName) falls within
// [rangeStart, rangeEnd] (bounds individually inclusive/exclusive),
// ordered by that numeric value then id, paginated by limit with lastID as
// an exclusive cursor (empty string for the first page).
func (a *API) GetByPropertyWithRange(
	ctx context.Context,
	class, name, value, rangeName string,
	rangeStart float64, startInclusive bool,
	rangeEnd float64, endInclusive bool,
	limit int, lastID string,
) ([]Entity, error) {
	q, release, err := a.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	effStart := rangeStart
	if !startInclusive {
		effStart = math.Nextafter(rangeStart, math.Inf(1))
	}
	effEnd := rangeEnd
	if !endInclusive {
		effEnd = math.Nextafter(rangeEnd, math.Inf(-1))
	}

	rows, err := a.Store.GetByPropertyWithRange(ctx, q, class, name, value, rangeName, effStart, effEnd, lastID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Entity, 0, len(rows))
	for _, r := range rows {
		v, err := a.EntityCodec.Deserialize(class, r.Entity.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, Entity{ID: r.ID, Value: v, State: r.Entity.State})
	}
	return out, nil
}

func (a *API) decodeAll(class string, rows []store.IDEntity) ([]Entity, error) {
	out := make([]Entity, 0, len(rows))
	for _, r := range rows {
		v, err := a.EntityCodec.Deserialize(class, r.Entity.Bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, Entity{ID: r.ID, Value: v, State: r.Entity.State})
	}
	return out, nil
}
