package record

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

const (
	rootPayload  = "payload"
	rootMetadata = "metadata"
)

// Path addresses a value inside a record, e.g. "payload.text" or
// "metadata.quality".
type Path struct {
	raw      string
	segments []string
}

// ParsePath parses a dotted field path. The first segment must be "payload" or
// "metadata"; metadata paths need at least one key.
func ParsePath(s string) (Path, error) {
	var segments []string
	for _, seg := range strings.Split(s, ".") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return Path{}, errors.New("field path may not be empty")
	}
	switch segments[0] {
	case rootPayload:
	case rootMetadata:
		if len(segments) == 1 {
			return Path{}, errors.New("metadata paths must include at least one key")
		}
	default:
		return Path{}, fmt.Errorf("field path %q must start with 'payload' or 'metadata'", s)
	}
	return Path{raw: strings.Join(segments, "."), segments: segments}, nil
}

// MustParsePath is like ParsePath but panics on error. Intended for tests and
// package-level constants.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the normalised dotted form.
func (p Path) String() string {
	return p.raw
}

// IsZero reports whether the path was never parsed.
func (p Path) IsZero() bool {
	return len(p.segments) == 0
}

// Resolve returns the value at the path and whether it exists.
func (p Path) Resolve(r Record) (any, bool) {
	if p.IsZero() {
		return nil, false
	}
	var current any
	rest := p.segments[1:]
	if p.segments[0] == rootPayload {
		current = r.Payload
	} else {
		v, ok := r.Meta(rest[0])
		if !ok {
			return nil, false
		}
		current, rest = v, rest[1:]
	}
	for _, seg := range rest {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return current, true
}

// ResolveString returns the value at the path when it is a string.
func (p Path) ResolveString(r Record) (string, bool) {
	v, ok := p.Resolve(r)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set returns a copy of r with value stored at the path. Intermediate objects
// are copied on the way down so r itself is never modified. Setting the bare
// "payload" path replaces the whole payload.
func (p Path) Set(r Record, value any) (Record, error) {
	if p.IsZero() {
		return r, errors.New("field path may not be empty")
	}
	if p.segments[0] == rootMetadata {
		key, rest := p.segments[1], p.segments[2:]
		if len(rest) == 0 {
			return r.WithMetadata(key, value), nil
		}
		existing, _ := r.Meta(key)
		nested, err := setIn(existing, rest, value, p.raw)
		if err != nil {
			return r, err
		}
		return r.WithMetadata(key, nested), nil
	}
	payload, err := setIn(r.Payload, p.segments[1:], value, p.raw)
	if err != nil {
		return r, err
	}
	r.Payload = payload
	return r, nil
}

func setIn(current any, segments []string, value any, raw string) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}
	var m map[string]any
	switch t := current.(type) {
	case nil:
		m = make(map[string]any, 1)
	case map[string]any:
		m = maps.Clone(t)
	default:
		return nil, fmt.Errorf("cannot set %q: %T is not an object", raw, current)
	}
	child, err := setIn(m[segments[0]], segments[1:], value, raw)
	if err != nil {
		return nil, err
	}
	m[segments[0]] = child
	return m, nil
}
