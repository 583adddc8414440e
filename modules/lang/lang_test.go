package lang

import (
	"context"
	"testing"

	"github.com/specialistvlad/datagridgo/internal/operator"
	"github.com/specialistvlad/datagridgo/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(id, s string) record.Record {
	return record.New(id, map[string]any{"text": s})
}

func TestDetect(t *testing.T) {
	op, err := NewDetect(operator.MustConfig(map[string]any{"path": "payload.text"}))
	require.NoError(t, err)

	in := record.Batch{
		text("en", "hello world"),
		text("zh", "你好世界"),
		text("ar", "مرحبا بالعالم"),
		text("ru", "привет мир"),
		text("und", ""),
		record.New("skip", map[string]any{"other": 1}),
	}
	ec := operator.NewExecContext("run", "detect", nil)
	res, err := op.Apply(context.Background(), ec, in)
	require.NoError(t, err)
	require.Len(t, res.Records, len(in))
	assert.Empty(t, res.Failures)

	for _, r := range res.Records[:5] {
		lang, ok := r.Meta("lang")
		require.True(t, ok, r.ID)
		assert.Equal(t, r.ID, lang)
	}
	_, ok := res.Records[5].Meta("lang")
	assert.False(t, ok, "records without the field pass through untouched")

	_, ok = in[0].Meta("lang")
	assert.False(t, ok, "input records are not mutated")
	assert.Equal(t, int64(1), ec.Counters()["lang.en"])
}

func TestDetect_CustomKey(t *testing.T) {
	op, err := NewDetect(operator.MustConfig(map[string]any{"path": "payload.text", "key": "language"}))
	require.NoError(t, err)

	res, err := op.Apply(context.Background(), operator.NewExecContext("", "", nil), record.Batch{text("a", "hi")})
	require.NoError(t, err)
	v, _ := res.Records[0].Meta("language")
	assert.Equal(t, "en", v)
}

func TestConfidence(t *testing.T) {
	op, err := NewConfidence(operator.MustConfig(map[string]any{"path": "payload.text"}))
	require.NoError(t, err)

	res, err := op.Apply(context.Background(), operator.NewExecContext("", "", nil), record.Batch{
		text("mixed", "ab你好"),
		text("empty", ""),
	})
	require.NoError(t, err)

	v, ok := res.Records[0].Meta("lang_confidence")
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)
	_, ok = res.Records[1].Meta("lang_confidence")
	assert.False(t, ok)
}

func TestFactories_RejectBadConfig(t *testing.T) {
	_, err := NewDetect(operator.MustConfig(map[string]any{}))
	assert.ErrorContains(t, err, "path")

	_, err = NewDetect(operator.MustConfig(map[string]any{"path": "body.text"}))
	assert.ErrorContains(t, err, "must start with 'payload' or 'metadata'")

	_, err = NewConfidence(operator.MustConfig(map[string]any{"path": "payload.text", "key": ""}))
	assert.ErrorContains(t, err, "may not be empty")
}
