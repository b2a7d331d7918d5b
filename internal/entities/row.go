package entities

import "strconv"

// Row is one record from an upstream table. The column set is whatever the
// server returned for that endpoint; nothing here is schema-fixed.
type Row map[string]interface{}

// TableData is the canonical shape every upstream table response is
// normalized into, whether the server sent a bare array or a
// {columns, rows} envelope.
type TableData struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Number reads the first present field and coerces it to a number.
// Missing or non-numeric values yield 0 so that classification never
// rejects a record.
func (r Row) Number(fields ...string) float64 {
	for _, f := range fields {
		v, ok := r[f]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return parsed
			}
			return 0
		}
	}
	return 0
}

// String reads the first present field as a string. Non-string values and
// missing fields yield "".
func (r Row) String(fields ...string) string {
	for _, f := range fields {
		if v, ok := r[f]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Clone returns a shallow copy so normalization steps can rewrite values
// without touching the decoded response.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
