package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Canonical returns the deterministic byte form of a batch: one JSON document
// per record, object keys sorted, newline separated.
func Canonical(b Batch) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataHash returns the hex sha256 of the batch's canonical form.
func DataHash(b Batch) (string, error) {
	h := sha256.New()
	if err := writeCanonical(h, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal reports whether two batches have the same canonical form.
func Equal(a, b Batch) bool {
	ca, err := Canonical(a)
	if err != nil {
		return false
	}
	cb, err := Canonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func writeCanonical(w io.Writer, b Batch) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	// encoding/json sorts map keys, which is what makes this canonical.
	for i, r := range b {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record #%d: %w", i, err)
		}
	}
	return nil
}
