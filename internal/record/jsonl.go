package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// ReadJSONL decodes one record object per line. Blank lines are ignored.
// Records without an id get a generated one when assignIDs is set.
func ReadJSONL(r io.Reader, assignIDs bool) (Batch, error) {
	var out Batch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ID == "" && assignIDs {
			rec.ID = NewID()
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return out, nil
}

// WriteJSONL encodes the batch one record per line.
func WriteJSONL(w io.Writer, b Batch) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, rec := range b {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write record #%d: %w", i, err)
		}
	}
	return bw.Flush()
}
