package sample

import (
	"context"
	"fmt"
	"testing"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(n int) record.Batch {
	b := make(record.Batch, n)
	for i := range n {
		b[i] = record.New(fmt.Sprint(i), map[string]any{"text": fmt.Sprintf("row %d", i)})
	}
	return b
}

func apply(t *testing.T, factory func(operator.Config) (operator.Operator, error), cfg map[string]any, in record.Batch) record.Batch {
	t.Helper()
	op, err := factory(operator.MustConfig(cfg))
	require.NoError(t, err)
	res, err := op.Apply(context.Background(), operator.NewExecContext("", "", nil), in)
	require.NoError(t, err)
	return res.Records
}

func TestLimit(t *testing.T) {
	in := rows(3)
	out := apply(t, NewLimit, map[string]any{"count": 2}, in)
	require.Len(t, out, 2)
	assert.Equal(t, "0", out[0].ID)
	assert.Equal(t, "1", out[1].ID)

	assert.Len(t, apply(t, NewLimit, map[string]any{"count": 10}, in), 3)
	assert.Empty(t, apply(t, NewLimit, map[string]any{"count": 0}, in))

	_, err := NewLimit(operator.MustConfig(map[string]any{"count": -1}))
	assert.Error(t, err)
	_, err = NewLimit(operator.MustConfig(map[string]any{}))
	assert.Error(t, err)
}

func TestRandom_IsDeterministic(t *testing.T) {
	in := rows(200)
	cfg := map[string]any{"ratio": 0.5, "seed": 42}

	first := apply(t, NewRandom, cfg, in)
	second := apply(t, NewRandom, cfg, in.Clone())
	assert.True(t, record.Equal(first, second))
	assert.InDelta(t, 100, len(first), 40)

	other := apply(t, NewRandom, map[string]any{"ratio": 0.5, "seed": 7}, in)
	assert.False(t, record.Equal(first, other), "a different seed should pick a different sample")
}

func TestRandom_Bounds(t *testing.T) {
	in := rows(50)
	assert.Empty(t, apply(t, NewRandom, map[string]any{"ratio": 0}, in))
	assert.Len(t, apply(t, NewRandom, map[string]any{"ratio": 1}, in), 50)
	assert.Len(t, apply(t, NewRandom, map[string]any{"count": 5, "ratio": 0.1}, in), 5)
}

func TestRandom_InvalidConfig(t *testing.T) {
	for _, cfg := range []map[string]any{
		{},
		{"ratio": 1.5},
		{"ratio": -0.1},
		{"count": -2},
	} {
		_, err := NewRandom(operator.MustConfig(cfg))
		assert.Error(t, err, "%v", cfg)
	}
}

func TestTop(t *testing.T) {
	in := record.Batch{
		{ID: "a", Metadata: map[string]any{"quality": 0.8}},
		{ID: "b", Metadata: map[string]any{"quality": 0.4}},
		{ID: "none"},
		{ID: "c", Metadata: map[string]any{"quality": 0.9}},
		{ID: "d", Metadata: map[string]any{"quality": 0.8}},
	}

	out := apply(t, NewTop, map[string]any{"count": 3}, in)
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].ID)
	assert.Equal(t, "a", out[1].ID, "ties keep input order")
	assert.Equal(t, "d", out[2].ID)

	all := apply(t, NewTop, map[string]any{"count": 10}, in)
	assert.Equal(t, "none", all[len(all)-1].ID)

	byStars := apply(t, NewTop, map[string]any{"key": "stars", "count": 1}, record.Batch{
		{ID: "x", Metadata: map[string]any{"stars": int64(2)}},
		{ID: "y", Metadata: map[string]any{"stars": int64(5)}},
	})
	assert.Equal(t, "y", byStars[0].ID)
}
