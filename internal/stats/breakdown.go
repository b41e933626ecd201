package stats

import (
	"fmt"
	"sort"

	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

// ValueCount is the number of records holding one value of a column.
type ValueCount struct {
	Value string
	Count int
}

// ValueCounts counts records per value of column, most frequent first.
// Records without the column are skipped.
func ValueCounts(records []model.Record, column string) []ValueCount {
	counts := map[string]int{}
	for _, r := range records {
		v, ok := r[column]
		if !ok || v == nil {
			continue
		}
		counts[fmt.Sprint(v)]++
	}
	items := make([]ValueCount, 0, len(counts))
	for v, n := range counts {
		items = append(items, ValueCount{Value: v, Count: n})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Value < items[j].Value
		}
		return items[i].Count > items[j].Count
	})
	return items
}

// GeoPoint is a record location.
type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
}

// GeoPoints returns the locations of records that carry both coordinates.
func GeoPoints(records []model.Record) []GeoPoint {
	var points []GeoPoint
	for _, r := range records {
		lat, ok := Float(r, normalize.ColLat)
		if !ok {
			continue
		}
		lon, ok := Float(r, normalize.ColLon)
		if !ok {
			continue
		}
		city, _ := r[normalize.ColCity].(string)
		country, _ := r[normalize.ColCountry].(string)
		points = append(points, GeoPoint{Lat: lat, Lon: lon, City: city, Country: country})
	}
	return points
}
