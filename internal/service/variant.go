package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// VariantSelector picks the content variant bound to a new attempt.
type VariantSelector struct {
	mocs repository.MocTestRepository
	pick func(n int) int
}

// NewVariantSelector creates a selector drawing from math/rand/v2.
func NewVariantSelector(mocs repository.MocTestRepository) *VariantSelector {
	return &VariantSelector{mocs: mocs, pick: rand.IntN}
}

// WithPicker replaces the random source; pick must return a value in [0, n).
func (v *VariantSelector) WithPicker(pick func(n int) int) *VariantSelector {
	v.pick = pick
	return v
}

// Select returns a uniformly chosen active variant among mocIDs, or nil when
// none is active. Candidates keep mocIDs order; a repeated id counts once.
func (v *VariantSelector) Select(ctx context.Context, mocIDs []uuid.UUID) (*model.MocTest, error) {
	if len(mocIDs) == 0 {
		return nil, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(mocIDs))
	ids := make([]uuid.UUID, 0, len(mocIDs))
	for _, id := range mocIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	variants, err := v.mocs.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load variants: %w", err)
	}

	active := make([]model.MocTest, 0, len(variants))
	for _, m := range variants {
		if m.IsActive {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	chosen := active[v.pick(len(active))]
	return &chosen, nil
}
