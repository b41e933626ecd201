package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/lrsdash/internal/model"
)

const (
	ColTimestamp = "timestamp"

	srcObjectID = "object.id"
	srcVerb     = "verb.display.en-US"
	srcChoices  = "object.definition.choices"

	verbAnswered = "answered"
)

// SchemaError reports a required field missing from a statement that passed filtering.
type SchemaError struct {
	Index int
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record %d: invalid %s: %v", e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("record %d: missing required field %s", e.Index, e.Field)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Options configures one cleaning pass.
type Options struct {
	// Columns is the allow-list of source columns. Rename targets are always allowed.
	Columns []string
	// Rename maps source columns to canonical names.
	Rename map[string]string
	// ActivityPrefix drops rows whose object id is missing or does not start with it.
	// Empty keeps all.
	ActivityPrefix string
	// NumericColumns are canonical columns coerced to float64 (nil when unparseable).
	NumericColumns []string
	// DurationColumns are canonical columns holding ISO-8601 durations.
	DurationColumns []string
	// Dedup removes duplicate statements before cleaning. Nil keeps all.
	Dedup DedupPolicy
}

// Normalize flattens statements and cleans them into records.
func Normalize(statements []model.Statement, opts Options) ([]model.Record, error) {
	if opts.Dedup != nil {
		statements = opts.Dedup.Dedup(statements)
	}
	rows := make([]model.Record, 0, len(statements))
	for _, s := range statements {
		row, err := Flatten(s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return Clean(rows, opts)
}

// Clean filters, projects, renames and coerces flat rows. Input rows are not modified.
// Running Clean on its own output returns the same records.
func Clean(rows []model.Record, opts Options) ([]model.Record, error) {
	allowed := make(map[string]struct{}, len(opts.Columns)+len(opts.Rename))
	for _, c := range opts.Columns {
		allowed[c] = struct{}{}
	}
	for _, to := range opts.Rename {
		allowed[to] = struct{}{}
	}

	out := make([]model.Record, 0, len(rows))
	for i, row := range rows {
		if !matchesPrefix(row, opts) {
			continue
		}
		rec := project(withChoices(row, opts.Rename), allowed, opts.Rename)
		if err := coerceTimestamp(rec); err != nil {
			var se *SchemaError
			if errors.As(err, &se) {
				se.Index = i
			}
			return nil, err
		}
		for _, col := range opts.NumericColumns {
			if v, ok := rec[col]; ok {
				rec[col] = toFloat(v)
			}
		}
		for _, col := range opts.DurationColumns {
			if v, ok := rec[col].(string); ok {
				if secs, ok := ParseDuration(v); ok {
					rec[col] = secs
				}
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func lookup(row model.Record, source string, rename map[string]string) (any, bool) {
	if v, ok := row[source]; ok {
		return v, true
	}
	if to, ok := rename[source]; ok {
		v, ok := row[to]
		return v, ok
	}
	return nil, false
}

func matchesPrefix(row model.Record, opts Options) bool {
	if opts.ActivityPrefix == "" {
		return true
	}
	v, _ := lookup(row, srcObjectID, opts.Rename)
	id, ok := v.(string)
	if !ok || id == "" {
		return false
	}
	return strings.HasPrefix(id, opts.ActivityPrefix)
}

// withChoices returns the row plus one column per multiple-choice option
// when the statement is an answer.
func withChoices(row model.Record, rename map[string]string) model.Record {
	verb, _ := lookup(row, srcVerb, rename)
	if verb != verbAnswered {
		return row
	}
	choices, ok := row[srcChoices].([]any)
	if !ok || len(choices) == 0 {
		return row
	}
	expanded := row.Clone()
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		id, _ := choice["id"].(string)
		if id == "" {
			continue
		}
		var text any
		if desc, ok := choice["description"].(map[string]any); ok {
			text = desc["en-US"]
		}
		expanded[id] = text
	}
	return expanded
}

func project(row model.Record, allowed map[string]struct{}, rename map[string]string) model.Record {
	rec := make(model.Record, len(allowed))
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// Already-canonical columns first so a renamed source column wins on conflict.
	for _, k := range keys {
		if _, ok := rename[k]; ok {
			continue
		}
		if _, ok := allowed[k]; ok {
			rec[k] = row[k]
		}
	}
	for _, k := range keys {
		to, ok := rename[k]
		if !ok {
			continue
		}
		if _, ok := allowed[k]; ok {
			rec[to] = row[k]
		}
	}
	return rec
}

func coerceTimestamp(rec model.Record) error {
	v, ok := rec[ColTimestamp]
	if !ok || v == nil {
		return &SchemaError{Field: ColTimestamp}
	}
	switch ts := v.(type) {
	case time.Time:
		return nil
	case string:
		parsed, err := ParseTimestamp(ts)
		if err != nil {
			return &SchemaError{Field: ColTimestamp, Err: err}
		}
		rec[ColTimestamp] = parsed
		return nil
	default:
		return &SchemaError{Field: ColTimestamp, Err: fmt.Errorf("unexpected type %T", v)}
	}
}

// ParseTimestamp parses an xAPI timestamp, keeping the offset it was written with.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func toFloat(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return nil
	}
}

var durationPattern = regexp.MustCompile(`^PT(?:([0-9]*\.?[0-9]+)H)?(?:([0-9]*\.?[0-9]+)M)?(?:([0-9]*\.?[0-9]+)S)?$`)

// ParseDuration converts an ISO-8601 time duration such as "PT12.34S" to seconds.
func ParseDuration(s string) (float64, bool) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, false
	}
	var total float64
	for i, scale := range []float64{3600, 60, 1} {
		part := m[i+1]
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		total += f * scale
	}
	return total, true
}
