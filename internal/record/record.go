package record

import (
	"maps"

	"github.com/google/uuid"
)

// Record is a single logical unit of data.
type Record struct {
	// ID is caller-assigned or generated. Empty means absent.
	ID string `json:"id,omitempty" msgpack:"id,omitempty"`
	// Payload is an arbitrary JSON-like document.
	Payload any `json:"payload" msgpack:"payload"`
	// Metadata holds values derived by operators.
	Metadata map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// Batch is an ordered sequence of records.
type Batch []Record

// New creates a record with the given id and payload.
func New(id string, payload any) Record {
	return Record{ID: id, Payload: payload}
}

// NewID returns a fresh random record identifier.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{ID: r.ID, Payload: cloneValue(r.Payload)}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = cloneValue(v)
		}
	}
	return out
}

// Meta returns the metadata value stored under key.
func (r Record) Meta(key string) (any, bool) {
	if r.Metadata == nil {
		return nil, false
	}
	v, ok := r.Metadata[key]
	return v, ok
}

// WithMetadata returns a copy of the record with key set to value. The
// payload is shared with the receiver; only the metadata map is copied.
func (r Record) WithMetadata(key string, value any) Record {
	md := make(map[string]any, len(r.Metadata)+1)
	maps.Copy(md, r.Metadata)
	md[key] = value
	r.Metadata = md
	return r
}

// WithoutMetadata returns a copy of the record with the given keys removed.
func (r Record) WithoutMetadata(keys ...string) Record {
	if r.Metadata == nil {
		return r
	}
	md := maps.Clone(r.Metadata)
	for _, k := range keys {
		delete(md, k)
	}
	r.Metadata = md
	return r
}

// Clone returns a deep copy of every record in the batch. A nil batch stays nil.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, r := range b {
		out[i] = r.Clone()
	}
	return out
}

// Concat joins batches in order into a freshly allocated batch.
func Concat(batches ...Batch) Batch {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	out := make(Batch, 0, n)
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// CloneValue deep-copies a JSON-like value.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		return maps.Clone(t)
	default:
		return v
	}
}
