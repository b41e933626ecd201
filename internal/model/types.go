// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Statement is one xAPI statement as returned by the LRS.
// Only the fields the pipeline reads are decoded; Raw keeps the full payload.
type Statement struct {
	ID        string          `json:"id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Actor     json.RawMessage `json:"actor,omitempty"`
	Verb      Verb            `json:"verb"`
	Object    Object          `json:"object"`
	Result    *Result         `json:"result,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Verb identifies the action of a statement.
type Verb struct {
	ID      string            `json:"id"`
	Display map[string]string `json:"display,omitempty"`
}

// Object is the activity a statement refers to.
type Object struct {
	ID         string      `json:"id"`
	Definition *Definition `json:"definition,omitempty"`
	Location   *Location   `json:"location,omitempty"`
}

// Definition describes an activity, including multiple-choice options.
type Definition struct {
	Description map[string]string `json:"description,omitempty"`
	Choices     []Choice          `json:"choices,omitempty"`
}

// Choice is one multiple-choice option.
type Choice struct {
	ID          string            `json:"id"`
	Description map[string]string `json:"description,omitempty"`
}

// Location carries the optional geolocation extension on an object.
// Values are kept as raw JSON because producers send both numbers and strings.
type Location struct {
	Lat     json.RawMessage `json:"lat,omitempty"`
	Lng     json.RawMessage `json:"lng,omitempty"`
	City    string          `json:"city,omitempty"`
	Region  string          `json:"region,omitempty"`
	Country string          `json:"country,omitempty"`
}

// Result is the optional outcome of a statement.
type Result struct {
	Score    *Score `json:"score,omitempty"`
	Duration string `json:"duration,omitempty"`
	Response string `json:"response,omitempty"`
}

// Score holds raw and max scores.
type Score struct {
	Raw *float64 `json:"raw,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type statementAlias Statement

// UnmarshalJSON decodes the statement and retains its raw bytes.
func (s *Statement) UnmarshalJSON(data []byte) error {
	var alias statementAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return fmt.Errorf("failed to decode statement: %w", err)
	}
	*s = Statement(alias)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the original payload when available.
func (s Statement) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	return json.Marshal(statementAlias(s))
}

// VerbDisplay returns the en-US display name of the verb.
func (s Statement) VerbDisplay() string {
	return s.Verb.Display["en-US"]
}

// Record is one normalized row keyed by canonical column name.
// A nil value marks a field that was present but could not be coerced.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Dataset selects which dashboard a query feeds.
type Dataset string

const (
	DatasetScores Dataset = "scores"
	DatasetItems  Dataset = "items"
	DatasetSurvey Dataset = "survey"
)

// Namespace is the activity namespace segment for the dataset.
func (d Dataset) Namespace() string {
	if d == DatasetSurvey {
		return "survey"
	}
	return "assessment"
}

// FetchMode selects how statements are collected for a window.
type FetchMode string

const (
	// ModeRange scans every statement in the window and filters by activity prefix.
	ModeRange FetchMode = "range"
	// ModeActors resolves initializing actors and fetches their statements one by one.
	ModeActors FetchMode = "actors"
)

// Query selects one dashboard's statements for an inclusive date window.
type Query struct {
	Dataset Dataset   `json:"dataset" validate:"required,oneof=scores items survey"`
	Lang    string    `json:"lang" validate:"required,slug"`
	Type    string    `json:"type" validate:"required,slug"`
	Since   time.Time `json:"since" validate:"required"`
	Until   time.Time `json:"until" validate:"required,gtefield=Since"`
	Mode    FetchMode `json:"mode,omitempty" validate:"omitempty,oneof=range actors"`
}

// DateLayout is the day format used in queries, cache keys and filenames.
const DateLayout = "2006-01-02"

func (q Query) String() string {
	return fmt.Sprintf("%s %s/%s %s..%s", q.Dataset, q.Lang, q.Type,
		q.Since.Format(DateLayout), q.Until.Format(DateLayout))
}
