package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"insightdash/internal/entities"
)

// Normalize converts either upstream table shape - a bare array of objects
// or a {columns, rows} envelope - into the canonical TableData. For bare
// arrays the column list comes from the first element's keys in response
// order; an empty array yields empty columns.
func Normalize(data []byte) (entities.TableData, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return entities.TableData{}, errors.New("empty response body")
	}

	if trimmed[0] == '[' {
		var rows []entities.Row
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return entities.TableData{}, fmt.Errorf("decode array response: %w", err)
		}
		td := entities.TableData{Columns: keysInOrder(trimmed), Rows: rows}
		if td.Columns == nil {
			td.Columns = []string{}
		}
		if td.Rows == nil {
			td.Rows = []entities.Row{}
		}
		return trimRowDates(td), nil
	}

	var env entities.TableData
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return entities.TableData{}, fmt.Errorf("decode envelope response: %w", err)
	}
	if env.Columns == nil {
		env.Columns = []string{}
	}
	if env.Rows == nil {
		env.Rows = []entities.Row{}
	}
	return trimRowDates(env), nil
}

// keysInOrder extracts the top-level keys of the first object in a JSON
// array, in document order. Go maps lose key order on decode, so the
// column list has to come from a token scan.
func keysInOrder(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return nil
	}
	if !dec.More() {
		return nil
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var keys []string
	depth := 0
	expectKey := true
	for {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				if depth == 0 {
					return keys
				}
				depth--
				if depth == 0 {
					expectKey = true
				}
			}
			continue
		}
		if depth != 0 {
			continue
		}
		if expectKey {
			if s, ok := tok.(string); ok {
				keys = append(keys, s)
			}
			expectKey = false
		} else {
			expectKey = true
		}
	}
}

// trimRowDates cuts the time component off date-like string fields
// ("2024-01-02T15:04:05" -> "2024-01-02"). Rewritten rows are copies; the
// decoded response is never mutated in place.
func trimRowDates(td entities.TableData) entities.TableData {
	out := make([]entities.Row, 0, len(td.Rows))
	for _, row := range td.Rows {
		var rewritten entities.Row
		for field, value := range row {
			if !isDateField(field) {
				continue
			}
			s, ok := value.(string)
			if !ok {
				continue
			}
			i := strings.IndexByte(s, 'T')
			if i <= 0 {
				continue
			}
			if rewritten == nil {
				rewritten = row.Clone()
			}
			rewritten[field] = s[:i]
		}
		if rewritten != nil {
			out = append(out, rewritten)
		} else {
			out = append(out, row)
		}
	}
	td.Rows = out
	return td
}

func isDateField(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), "date")
}
