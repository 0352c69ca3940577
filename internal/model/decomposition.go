package model

import (
	"math"
	"time"

	"stockcast/internal/apperr"
	"stockcast/internal/series"
	"stockcast/internal/stats"
)

// KindDecomposition identifies the additive trend + seasonality model.
const KindDecomposition = "additive_decomposition"

// DefaultMinPoints is the smallest series a decomposition model is trained on.
const DefaultMinPoints = 7

// yearlySpanDays is the span from which the month-of-year component is fitted.
const yearlySpanDays = 365

// DecompositionParams is the serialisable state of a trained decomposition model.
type DecompositionParams struct {
	Origin     time.Time    `json:"origin"`
	LastDate   time.Time    `json:"last_date"`
	Intercept  float64      `json:"intercept"`
	Slope      float64      `json:"slope"`
	Weekly     [7]float64   `json:"weekly"`
	Monthly    *[12]float64 `json:"monthly,omitempty"`
	Sigma      float64      `json:"sigma"`
	Confidence float64      `json:"confidence"`
	Points     int          `json:"points"`
}

// Decomposition is a classical additive decomposition: a linear trend on the day index, a
// centred day-of-week component and, for series spanning a year, a month-of-year component.
// The prediction interval is normal around the point forecast with a width growing with the
// horizon.
type Decomposition struct {
	productID   string
	fingerprint string
	trainedAt   time.Time
	params      DecompositionParams
}

// DecompositionTrainer trains Decomposition models.
type DecompositionTrainer struct {
	// Confidence is the central coverage of the P10..P90 interval, e.g. 0.80.
	Confidence float64
	// MinPoints is the minimum number of days required.
	MinPoints int
	// Now stamps trained models; defaults to time.Now.
	Now func() time.Time
}

// NewDecompositionTrainer returns a trainer with the given confidence level.
func NewDecompositionTrainer(confidence float64, minPoints int) *DecompositionTrainer {
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	return &DecompositionTrainer{Confidence: confidence, MinPoints: minPoints}
}

// Train fits the model. It fails with a ModelTraining error when the series is too short or
// carries no demand at all.
func (t *DecompositionTrainer) Train(productID string, s series.Series) (Model, error) {
	const op = "model.Train"

	if s.Len() < t.MinPoints {
		return nil, apperr.ModelTraining(op, "series too short to fit a model", apperr.InsufficientData(op, t.MinPoints, s.Len()))
	}
	if s.Sum() <= 0 {
		return nil, apperr.ModelTraining(op, "series has no non-zero demand", nil)
	}
	confidence := t.Confidence
	if confidence <= 0 || confidence >= 1 {
		return nil, apperr.ModelTraining(op, "confidence level must be in (0, 1)", nil)
	}

	points := s.Points()
	origin := points[0].Date
	n := len(points)

	x := make([]float64, n)
	y := make([]float64, n)
	for i, p := range points {
		x[i] = float64(series.DaysBetween(origin, p.Date))
		y[i] = p.Quantity
	}

	// 1. Initial trend on raw values
	intercept, slope := fitLine(x, y)

	// 2. Weekly component from detrended values
	detrended := make([]float64, n)
	for i := range y {
		detrended[i] = y[i] - (intercept + slope*x[i])
	}
	weekly := seasonalIndex(points, detrended, 7, func(d time.Time) int { return int(d.Weekday()) })

	// 3. Monthly component once a full year is observed
	var monthly *[12]float64
	if s.SpanDays() >= yearlySpanDays {
		rest := make([]float64, n)
		for i, p := range points {
			rest[i] = detrended[i] - weekly[p.Date.Weekday()]
		}
		idx := seasonalIndex(points, rest, 12, func(d time.Time) int { return int(d.Month()) - 1 })
		var m [12]float64
		copy(m[:], idx)
		monthly = &m
	}

	params := DecompositionParams{
		Origin:     origin,
		LastDate:   points[n-1].Date,
		Monthly:    monthly,
		Confidence: confidence,
		Points:     n,
	}
	copy(params.Weekly[:], weekly)

	// 4. Refit the trend on the deseasonalised series
	deseasonalised := make([]float64, n)
	for i, p := range points {
		deseasonalised[i] = y[i] - params.seasonal(p.Date)
	}
	params.Intercept, params.Slope = fitLine(x, deseasonalised)

	// 5. Residual spread
	residuals := make([]float64, n)
	for i, p := range points {
		residuals[i] = y[i] - params.mean(p.Date)
	}
	params.Sigma = stats.StdDev(residuals)

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}

	return &Decomposition{
		productID:   productID,
		fingerprint: s.Fingerprint(),
		trainedAt:   now().UTC(),
		params:      params,
	}, nil
}

// Kind implements Model.
func (m *Decomposition) Kind() string { return KindDecomposition }

// ProductID implements Model.
func (m *Decomposition) ProductID() string { return m.productID }

// Fingerprint implements Model.
func (m *Decomposition) Fingerprint() string { return m.fingerprint }

// TrainedAt implements Model.
func (m *Decomposition) TrainedAt() time.Time { return m.trainedAt }

// TrainingWindow implements Model.
func (m *Decomposition) TrainingWindow() (time.Time, time.Time) {
	return m.params.Origin, m.params.LastDate
}

// Params returns the fitted parameters.
func (m *Decomposition) Params() DecompositionParams { return m.params }

// Predict implements Model.
func (m *Decomposition) Predict(horizon int) []ForecastPoint {
	if horizon <= 0 {
		return nil
	}
	p := m.params
	z := stats.InverseNormalCDF(0.5 + p.Confidence/2)

	out := make([]ForecastPoint, horizon)
	for h := 1; h <= horizon; h++ {
		date := p.LastDate.AddDate(0, 0, h)
		mid := p.mean(date)
		width := z * p.Sigma * math.Sqrt(1+float64(h)/float64(p.Points))

		// Clamping each bound at zero keeps P10 <= P50 <= P90.
		out[h-1] = ForecastPoint{
			Date: date,
			P10:  math.Max(0, mid-width),
			P50:  math.Max(0, mid),
			P90:  math.Max(0, mid+width),
		}
	}
	return out
}

// Fitted implements Model.
func (m *Decomposition) Fitted(date time.Time) (float64, bool) {
	d := series.Day(date)
	if d.Before(m.params.Origin) || d.After(m.params.LastDate) {
		return 0, false
	}
	return math.Max(0, m.params.mean(d)), true
}

func (p DecompositionParams) mean(date time.Time) float64 {
	x := float64(series.DaysBetween(p.Origin, date))
	return p.Intercept + p.Slope*x + p.seasonal(date)
}

func (p DecompositionParams) seasonal(date time.Time) float64 {
	v := p.Weekly[date.Weekday()]
	if p.Monthly != nil {
		v += p.Monthly[int(date.Month())-1]
	}
	return v
}

// fitLine returns the ordinary least squares intercept and slope of y on x.
func fitLine(x, y []float64) (float64, float64) {
	mx, my := stats.Mean(x), stats.Mean(y)
	var sxy, sxx float64
	for i := range x {
		dx := x[i] - mx
		sxy += dx * (y[i] - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return my, 0
	}
	slope := sxy / sxx
	return my - slope*mx, slope
}

// seasonalIndex averages values per bucket and centres the observed buckets on zero.
// Buckets without observations stay at zero.
func seasonalIndex(points []series.Point, values []float64, buckets int, bucket func(time.Time) int) []float64 {
	sums := make([]float64, buckets)
	counts := make([]int, buckets)
	for i, p := range points {
		b := bucket(p.Date)
		sums[b] += values[i]
		counts[b]++
	}

	idx := make([]float64, buckets)
	var total float64
	observed := 0
	for b := range idx {
		if counts[b] > 0 {
			idx[b] = sums[b] / float64(counts[b])
			total += idx[b]
			observed++
		}
	}
	if observed == 0 {
		return idx
	}
	centre := total / float64(observed)
	for b := range idx {
		if counts[b] > 0 {
			idx[b] -= centre
		}
	}
	return idx
}
