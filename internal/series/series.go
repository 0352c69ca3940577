// Package series holds the validated daily demand series a forecast is trained on.
package series

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"time"

	"stockcast/internal/apperr"
	"stockcast/internal/stats"
)

// DateLayout is the canonical day format used in records, snapshots and reports.
const DateLayout = "2006-01-02"

// Point is one aggregated day of demand.
type Point struct {
	Date     time.Time `json:"date"`
	Quantity float64   `json:"quantity"`
}

// Record is a raw observation as handed over by an ingestion layer. A nil Quantity marks a
// missing value.
type Record struct {
	Date     time.Time
	Quantity *float64
}

// Series is an ordered, deduplicated, non-negative daily demand series for one product.
// It is immutable once constructed.
type Series struct {
	points  []Point
	dropped int
}

// FromRecords builds a Series: records with a missing quantity are dropped, same-day records
// are summed, dates are normalised to UTC midnight and sorted ascending.
func FromRecords(records []Record) (Series, error) {
	byDay := make(map[time.Time]float64, len(records))
	dropped := 0

	for _, r := range records {
		if r.Quantity == nil || math.IsNaN(*r.Quantity) {
			dropped++
			continue
		}
		q := *r.Quantity
		if q < 0 || math.IsInf(q, 0) {
			return Series{}, apperr.Validation("series.FromRecords", "quantity", q, "quantities must be finite and non-negative")
		}
		if r.Date.IsZero() {
			return Series{}, apperr.Validation("series.FromRecords", "date", r.Date, "record date is required")
		}
		byDay[Day(r.Date)] += q
	}

	points := make([]Point, 0, len(byDay))
	for d, q := range byDay {
		points = append(points, Point{Date: d, Quantity: q})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	return Series{points: points, dropped: dropped}, nil
}

// FromValues builds a contiguous daily series starting at start. Intended for tests and
// synthetic data.
func FromValues(start time.Time, values []float64) (Series, error) {
	records := make([]Record, len(values))
	day := Day(start)
	for i := range values {
		v := values[i]
		records[i] = Record{Date: day.AddDate(0, 0, i), Quantity: &v}
	}
	return FromRecords(records)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Len returns the number of days in the series.
func (s Series) Len() int { return len(s.points) }

// Dropped returns how many raw records were discarded for a missing quantity.
func (s Series) Dropped() int { return s.dropped }

// Points returns a copy of the series points.
func (s Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// At returns the i-th point.
func (s Series) At(i int) Point { return s.points[i] }

// Values returns a copy of the quantities in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Quantity
	}
	return out
}

// Sum returns the total demand over the series.
func (s Series) Sum() float64 {
	return stats.Sum(s.Values())
}

// Start returns the first date, or the zero time for an empty series.
func (s Series) Start() time.Time {
	if len(s.points) == 0 {
		return time.Time{}
	}
	return s.points[0].Date
}

// End returns the last date, or the zero time for an empty series.
func (s Series) End() time.Time {
	if len(s.points) == 0 {
		return time.Time{}
	}
	return s.points[len(s.points)-1].Date
}

// SpanDays returns the number of calendar days covered, including gaps.
func (s Series) SpanDays() int {
	if len(s.points) == 0 {
		return 0
	}
	return DaysBetween(s.Start(), s.End()) + 1
}

// Head returns the points strictly before cutoff as a new Series.
func (s Series) Head(cutoff time.Time) Series {
	cutoff = Day(cutoff)
	i := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Date.Before(cutoff)
	})
	out := make([]Point, i)
	copy(out, s.points[:i])
	return Series{points: out}
}

// Between returns the points with from <= date < to.
func (s Series) Between(from, to time.Time) []Point {
	from, to = Day(from), Day(to)
	var out []Point
	for _, p := range s.points {
		if !p.Date.Before(from) && p.Date.Before(to) {
			out = append(out, p)
		}
	}
	return out
}

// Fingerprint identifies the exact content of the series. Two series with the same dates and
// quantities share a fingerprint.
func (s Series) Fingerprint() string {
	h := sha256.New()
	var buf [16]byte
	for _, p := range s.points {
		binary.BigEndian.PutUint64(buf[:8], uint64(p.Date.Unix()))
		binary.BigEndian.PutUint64(buf[8:], math.Float64bits(p.Quantity))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DaysBetween returns the whole number of days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Round(Day(b).Sub(Day(a)).Hours() / 24))
}
