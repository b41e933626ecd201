// Package dataset loads the statements behind each dashboard and turns them
// into cleaned records.
package dataset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/verte-zerg/lrsdash/internal/model"
)

// ErrInvalidQuery wraps every query parsing and validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// DefaultWindowDays is the length of the window used when none is given.
const DefaultWindowDays = 30

// First days with trustworthy data.
var (
	AssessmentOrigin = time.Date(2022, 5, 14, 0, 0, 0, 0, time.UTC)
	SurveyOrigin     = time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC)
)

// Datasets lists the dashboards in display order.
var Datasets = []model.Dataset{model.DatasetScores, model.DatasetItems, model.DatasetSurvey}

var languages = map[model.Dataset][]string{
	model.DatasetScores: {"ukranian", "english", "zulu", "hausa"},
	model.DatasetItems:  {"ukranian", "english", "zulu", "hausa", "hausaNN", "bangla", "french"},
	model.DatasetSurvey: {"english", "zulu"},
}

var activityTypes = map[model.Dataset][]string{
	model.DatasetScores: {"letter-sound", "pseudoword"},
	model.DatasetItems:  {"letter-sound", "pseudoword", "pseudo-word"},
	model.DatasetSurvey: {"nonliterate-ses"},
}

// Languages returns the known languages of a dataset. Other values are accepted
// by queries as long as they are valid path segments.
func Languages(d model.Dataset) []string {
	return append([]string(nil), languages[d]...)
}

// ActivityTypes returns the known activity types of a dataset.
func ActivityTypes(d model.Dataset) []string {
	return append([]string(nil), activityTypes[d]...)
}

// Origin returns the first day with data for the dataset.
func Origin(d model.Dataset) time.Time {
	if d == model.DatasetSurvey {
		return SurveyOrigin
	}
	return AssessmentOrigin
}

// DefaultMode is the fetch strategy a dataset uses unless told otherwise.
func DefaultMode(d model.Dataset) model.FetchMode {
	if d == model.DatasetSurvey {
		return model.ModeActors
	}
	return model.ModeRange
}

// DefaultWindow returns the last DefaultWindowDays days ending today,
// starting no earlier than the dataset origin.
func DefaultWindow(d model.Dataset, now time.Time) (since, until time.Time) {
	until = day(now)
	since = until.AddDate(0, 0, -DefaultWindowDays)
	if origin := Origin(d); since.Before(origin) {
		since = origin
	}
	return since, until
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDataset maps a name to a dataset.
func ParseDataset(name string) (model.Dataset, error) {
	for _, d := range Datasets {
		if string(d) == strings.ToLower(name) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: unknown dataset %q (use scores, items or survey)", ErrInvalidQuery, name)
}

// ParseDay parses a YYYY-MM-DD date. Empty input yields the zero time.
func ParseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidQuery, s)
	}
	return t, nil
}

// Prepare fills the window and mode defaults of q, clamps the window to the
// dataset origin and validates the result.
func Prepare(q model.Query, now time.Time) (model.Query, error) {
	defSince, defUntil := DefaultWindow(q.Dataset, now)
	if q.Since.IsZero() {
		q.Since = defSince
	}
	if q.Until.IsZero() {
		q.Until = defUntil
	}
	q.Since, q.Until = day(q.Since), day(q.Until)
	if origin := Origin(q.Dataset); q.Since.Before(origin) {
		q.Since = origin
	}
	if q.Mode == "" || q.Dataset == model.DatasetScores {
		q.Mode = DefaultMode(q.Dataset)
	}
	if err := Validate(q); err != nil {
		return model.Query{}, err
	}
	return q, nil
}

// Activity ids are case sensitive, so mixed-case segments such as "hausaNN" are kept as given.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9]+(?:-[A-Za-z0-9]+)*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func queryValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks the fields of q.
func Validate(q model.Query) error {
	err := queryValidator().Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "slug":
		return fmt.Sprintf("%s %q must be letters and digits joined by dashes", field, fe.Value())
	case "gtefield":
		return "until must not be before since"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Params are the string inputs of a query as given on a command line, a URL
// or a form.
type Params struct {
	Dataset string
	Lang    string
	Type    string
	Since   string
	Until   string
	Mode    string
}

// ParseQuery parses p and prepares the query relative to now.
func ParseQuery(p Params, now time.Time) (model.Query, error) {
	d, err := ParseDataset(p.Dataset)
	if err != nil {
		return model.Query{}, err
	}
	since, err := ParseDay(p.Since)
	if err != nil {
		return model.Query{}, err
	}
	until, err := ParseDay(p.Until)
	if err != nil {
		return model.Query{}, err
	}
	return Prepare(model.Query{
		Dataset: d,
		Lang:    strings.TrimSpace(p.Lang),
		Type:    strings.TrimSpace(p.Type),
		Since:   since,
		Until:   until,
		Mode:    model.FetchMode(strings.ToLower(p.Mode)),
	}, now)
}
