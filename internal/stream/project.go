package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Projection applies a dot-path expression to JSON log records, emitting the
// projected scalar per line. Records that fail to parse are skipped, not
// fatal; structured and plain logs routinely interleave in the same stream.
type Projection struct {
	path []string
}

// ParseProjection compiles an expression like ".msg" or ".fields.level".
// The leading dot is optional. An empty expression yields a nil projection.
func ParseProjection(expr string) (*Projection, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	expr = strings.TrimPrefix(expr, ".")
	if expr == "" {
		return nil, fmt.Errorf("projection expression selects nothing")
	}
	parts := strings.Split(expr, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("invalid projection expression: empty path segment")
		}
	}
	return &Projection{path: parts}, nil
}

// Apply projects the expression onto one log line. The second return is false
// when the line is not a JSON object or the path is absent, meaning the line
// should be dropped from the projected feed.
func (p *Projection) Apply(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var record map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return "", false
	}
	var value interface{} = record
	for _, key := range p.path {
		obj, ok := value.(map[string]interface{})
		if !ok {
			return "", false
		}
		value, ok = obj[key]
		if !ok {
			return "", false
		}
	}
	switch v := value.(type) {
	case string:
		return v, true
	case nil:
		return "null", true
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}
