package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cognicore/medallion/pkg/medallion/table"
)

// ReadJSON parses an array of objects (or a single object) into a batch,
// keeping columns in first-seen key order. Input that is not a JSON document
// is retried as newline-delimited JSON.
func ReadJSON(data []byte) (*table.Batch, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return table.New(), nil
	}

	var records []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
	case '{':
		if json.Valid(trimmed) {
			records = []json.RawMessage{trimmed}
		} else {
			var err error
			if records, err = splitLines(trimmed); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unexpected json start %q", trimmed[0])
	}

	b := table.New()
	for i, raw := range records {
		row, keys, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, k := range keys {
			if !b.HasColumn(k) {
				b.Columns = append(b.Columns, k)
			}
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}

func splitLines(data []byte) ([]json.RawMessage, error) {
	var out []json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		if !json.Valid(text) {
			return nil, fmt.Errorf("line %d: invalid json", line)
		}
		out = append(out, append(json.RawMessage(nil), text...))
	}
	return out, scanner.Err()
}

func decodeObject(raw json.RawMessage) (table.Row, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	row := table.Row{}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		if _, seen := row[key]; !seen {
			keys = append(keys, key)
		}
		row[key] = scalar(value)
	}
	return row, keys, nil
}

// scalar flattens one JSON value. Nested arrays and objects are kept as
// their JSON text.
func scalar(raw json.RawMessage) any {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil
	}
	switch text[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return text
		}
		return s
	case 't', 'f':
		return text == "true"
	case '[', '{':
		return text
	}
	n := json.Number(text)
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return text
}
