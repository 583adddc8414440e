package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/specialistvlad/datagridgo/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs(texts ...any) record.Batch {
	b := make(record.Batch, len(texts))
	for i, t := range texts {
		b[i] = record.New(fmt.Sprint(i), map[string]any{"text": t})
	}
	return b
}

func ids(b record.Batch) []string {
	out := make([]string, len(b))
	for i, r := range b {
		out[i] = r.ID
	}
	return out
}

func apply(t *testing.T, factory registry.Factory, cfg map[string]any, in record.Batch) (record.Batch, *operator.ExecContext) {
	t.Helper()
	op, err := factory(operator.MustConfig(cfg))
	require.NoError(t, err)
	ec := operator.NewExecContext("", "", nil)
	res, err := op.Apply(context.Background(), ec, in)
	require.NoError(t, err)
	return res.Records, ec
}

func TestModule_Registers(t *testing.T) {
	r := registry.New()
	require.NoError(t, (&Module{}).Register(r))
	for _, name := range []string{"dedup.simhash", "dedup.minhash", "dedup.semantic"} {
		_, ok := r.Lookup(name)
		assert.True(t, ok, name)
	}
}

func TestDedup_KeepsFirstInInputOrder(t *testing.T) {
	in := docs(
		"Hello world!",
		"Different text entirely",
		"hello   world",
		42,
		"HELLO, WORLD",
		"different TEXT entirely",
	)
	in = append(in, record.New("no-text", map[string]any{"title": "x"}))

	testCases := []struct {
		name    string
		factory registry.Factory
		cfg     map[string]any
		counter string
	}{
		{"simhash", NewSimHash, map[string]any{"path": "payload.text", "threshold": 0.9}, "dedup.simhash.dropped"},
		{"minhash", NewMinHash, map[string]any{"path": "payload.text", "k": 32, "bands": 8}, "dedup.minhash.dropped"},
		{"semantic", NewSemantic, map[string]any{"path": "payload.text"}, "dedup.semantic.dropped"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, ec := apply(t, tc.factory, tc.cfg, in.Clone())
			assert.Equal(t, []string{"0", "1", "3", "no-text"}, ids(out))
			assert.Equal(t, int64(3), ec.Counters()[tc.counter])
		})
	}
}

func TestMinHash_DistinctTextsSurvive(t *testing.T) {
	in := docs("alpha beta gamma", "alpha  beta   gamma", "delta epsilon", "zeta eta theta iota")
	out, _ := apply(t, NewMinHash, map[string]any{"path": "payload.text", "threshold": 0.8}, in)
	assert.Equal(t, []string{"0", "2", "3"}, ids(out))
}

func TestSemantic_ThresholdControlsSimilarity(t *testing.T) {
	in := docs("large language model", "large language models", "small cats")

	out, _ := apply(t, NewSemantic, map[string]any{"path": "payload.text", "threshold": 0.5}, in)
	assert.Equal(t, []string{"0", "2"}, ids(out), "two of four distinct tokens are shared")

	out, _ = apply(t, NewSemantic, map[string]any{"path": "payload.text", "threshold": 1.0}, in)
	assert.Equal(t, []string{"0", "1", "2"}, ids(out))
}

func TestSimHash_IdenticalTokensCollide(t *testing.T) {
	assert.Equal(t, simhash(tokenize("Hello world!")), simhash(tokenize("hello   world")))
	assert.NotEqual(t, simhash(tokenize("hello world")), simhash(tokenize("goodbye moon")))
}

func TestDedup_InvalidConfig(t *testing.T) {
	testCases := []struct {
		name    string
		factory registry.Factory
		cfg     map[string]any
		field   string
	}{
		{"missing path", NewSimHash, map[string]any{}, ""},
		{"bad path", NewSemantic, map[string]any{"path": "nowhere.text"}, "path"},
		{"threshold above one", NewSimHash, map[string]any{"path": "payload.text", "threshold": 1.5}, "threshold"},
		{"negative threshold", NewSemantic, map[string]any{"path": "payload.text", "threshold": -0.1}, "threshold"},
		{"zero k", NewMinHash, map[string]any{"path": "payload.text", "k": 0}, "k"},
		{"zero bands", NewMinHash, map[string]any{"path": "payload.text", "bands": 0}, "bands"},
		{"more bands than k", NewMinHash, map[string]any{"path": "payload.text", "k": 4, "bands": 8}, "bands"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.factory(operator.MustConfig(tc.cfg))
			require.Error(t, err)
			if tc.field == "" {
				return
			}
			var cfgErr *operator.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}
