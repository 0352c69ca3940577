// Package model defines the quantile forecast model contract and its default implementation.
package model

import (
	"time"

	"stockcast/internal/series"
)

// ForecastPoint is one forecast day with its calibrated quantiles.
// Invariant: 0 <= P10 <= P50 <= P90.
type ForecastPoint struct {
	Date time.Time `json:"date"`
	P10  float64   `json:"p10"`
	P50  float64   `json:"p50"`
	P90  float64   `json:"p90"`
}

// Model is a trained, immutable forecasting artifact for one product.
type Model interface {
	// Kind identifies the algorithm for serialisation.
	Kind() string
	ProductID() string
	// Fingerprint is the fingerprint of the series the model was trained on.
	Fingerprint() string
	TrainedAt() time.Time
	// TrainingWindow returns the first and last training date.
	TrainingWindow() (time.Time, time.Time)
	// Predict returns exactly horizon points starting the day after the training window.
	Predict(horizon int) []ForecastPoint
	// Fitted returns in-sample fitted values for the dates inside the training window;
	// ok is false for dates outside it.
	Fitted(date time.Time) (value float64, ok bool)
}

// Trainer produces models from series. Implementations must be deterministic for identical
// input and safe for concurrent use.
type Trainer interface {
	Train(productID string, s series.Series) (Model, error)
}

// TrainerFunc adapts a function to the Trainer interface.
type TrainerFunc func(productID string, s series.Series) (Model, error)

// Train calls f.
func (f TrainerFunc) Train(productID string, s series.Series) (Model, error) {
	return f(productID, s)
}

// Enforce clamps every quantile at zero and restores ordering. Models already satisfy this;
// callers at trust boundaries apply it again.
func Enforce(points []ForecastPoint) []ForecastPoint {
	for i := range points {
		p := &points[i]
		p.P50 = clamp(p.P50)
		p.P10 = clamp(p.P10)
		p.P90 = clamp(p.P90)
		if p.P10 > p.P50 {
			p.P10 = p.P50
		}
		if p.P90 < p.P50 {
			p.P90 = p.P50
		}
	}
	return points
}

func clamp(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	return v
}
