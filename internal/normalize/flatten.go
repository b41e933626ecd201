// Package normalize turns xAPI statements into flat records with canonical columns.
package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/verte-zerg/lrsdash/internal/model"
)

// Flatten expands a statement's JSON into dotted keys, e.g. "result.score.raw".
// Nested objects are expanded; arrays are kept whole as values.
func Flatten(s model.Statement) (model.Record, error) {
	raw := s.Raw
	if len(raw) == 0 {
		encoded, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("failed to encode statement: %w", err)
		}
		raw = encoded
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode statement %s: %w", s.ID, err)
	}
	row := model.Record{}
	flattenInto(row, "", doc)
	return row, nil
}

func flattenInto(row model.Record, prefix string, doc map[string]any) {
	for key, value := range doc {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			flattenInto(row, name, nested)
			continue
		}
		row[name] = value
	}
}
