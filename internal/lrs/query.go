package lrs

import (
	"net/url"
	"strings"
	"time"
)

const (
	VerbCompleted   = "http://adlnet.gov/expapi/verbs/completed"
	VerbInitialized = "http://adlnet.gov/expapi/verbs/initialized"
	VerbAnswered    = "http://adlnet.gov/expapi/verbs/answered"

	DefaultActivityBase = "https://data.curiouslearning.org/xAPI/activities"

	dateLayout = "2006-01-02"
)

// Window is an inclusive range of calendar days.
type Window struct {
	Since time.Time
	Until time.Time
}

func (w Window) values() url.Values {
	v := url.Values{}
	v.Set("since", w.Since.Format(dateLayout))
	// The store treats until as exclusive; the window is inclusive of its last day.
	v.Set("until", w.Until.AddDate(0, 0, 1).Format(dateLayout))
	return v
}

// ActivityID builds the activity IRI for a namespace, language and activity type.
func ActivityID(base, namespace, lang, activityType string) string {
	if base == "" {
		base = DefaultActivityBase
	}
	return strings.TrimRight(base, "/") + "/" + namespace + "/" + lang + "/" + activityType
}

// ActivityURL queries statements for one activity and verb over a window.
func ActivityURL(base *url.URL, activity, verb string, w Window) string {
	v := w.values()
	v.Set("activity", activity)
	v.Set("verb", verb)
	return withQuery(base, v)
}

// AgentURL queries every statement of one actor over a window.
func AgentURL(base *url.URL, actor ActorIdentity, w Window) string {
	v := w.values()
	v.Set("agent", string(actor))
	return withQuery(base, v)
}

// RangeURL queries every statement over a window.
func RangeURL(base *url.URL, w Window) string {
	return withQuery(base, w.values())
}

func withQuery(base *url.URL, v url.Values) string {
	u := *base
	q := u.Query()
	for key, vals := range v {
		q[key] = vals
	}
	u.RawQuery = q.Encode()
	return u.String()
}
