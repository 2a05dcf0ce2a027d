package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantSelectorActiveOnly(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	a := env.variant(t, adm.ID, true, "")
	b := env.variant(t, adm.ID, false, "")
	c := env.variant(t, adm.ID, true, "")

	var offered int
	sel := NewVariantSelector(env.store.MocTests).WithPicker(func(n int) int {
		offered = n
		return n - 1
	})

	got, err := sel.Select(env.ctx, []uuid.UUID{a.ID, b.ID, c.ID, a.ID, uuid.New()})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, offered)
	assert.Equal(t, c.ID, got.ID)
}

func TestVariantSelectorNone(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	inactive := env.variant(t, adm.ID, false, "")
	sel := NewVariantSelector(env.store.MocTests)

	got, err := sel.Select(env.ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = sel.Select(env.ctx, []uuid.UUID{inactive.ID})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestVariantSelectorIsUniform(t *testing.T) {
	env := newTestEnv(t)
	adm := env.admin(t, "a@example.com")
	ids := []uuid.UUID{
		env.variant(t, adm.ID, true, "").ID,
		env.variant(t, adm.ID, true, "").ID,
		env.variant(t, adm.ID, true, "").ID,
	}
	sel := NewVariantSelector(env.store.MocTests)

	counts := map[uuid.UUID]int{}
	for range 3000 {
		m, err := sel.Select(env.ctx, ids)
		require.NoError(t, err)
		counts[m.ID]++
	}
	for _, id := range ids {
		assert.InDelta(t, 1000, counts[id], 200)
	}
}
