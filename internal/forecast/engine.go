// Package forecast turns demand series into quantile forecasts with descriptive and quality
// metadata, and validates models by walk-forward backtesting.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"stockcast/internal/apperr"
	"stockcast/internal/model"
	"stockcast/internal/modelcache"
	"stockcast/internal/series"

	"github.com/rs/zerolog/log"
)

// Config bounds forecast requests.
type Config struct {
	MinDataPoints   int
	MaxHorizon      int
	ConfidenceLevel float64
}

// minCoverage is the share of days between the first and last observation that must carry an
// observation for the series to be dense enough to fit.
const minCoverage = 0.5

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{MinDataPoints: 7, MaxHorizon: 365, ConfidenceLevel: 0.80}
}

// Result is a forecast with its metadata.
type Result struct {
	ProductID string                `json:"product_id"`
	Points    []model.ForecastPoint `json:"forecast"`
	Metadata  Metadata              `json:"metadata"`
}

// Engine validates requests, obtains models through the cache and predicts.
type Engine struct {
	cache *modelcache.Cache
	cfg   Config
	now   func() time.Time
}

// NewEngine creates an Engine backed by cache.
func NewEngine(cache *modelcache.Cache, cfg Config) *Engine {
	return &Engine{
		cache: cache,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Config returns the engine limits.
func (e *Engine) Config() Config { return e.cfg }

// Cache returns the model cache behind the engine.
func (e *Engine) Cache() *modelcache.Cache { return e.cache }

// Generate forecasts horizon days after the end of s.
//
// Errors are *apperr.Error: Validation for a bad horizon, InsufficientData for a short or sparse series,
// Forecast for a series without demand, ModelTraining when no model can be fitted, and Internal
// for anything unexpected.
func (e *Engine) Generate(ctx context.Context, productID string, s series.Series, horizon int) (res *Result, err error) {
	const op = "forecast.Generate"

	defer func() {
		if r := recover(); r != nil {
			err = e.surface(op, productID, fmt.Errorf("panic: %v", r))
			res = nil
		}
	}()

	// 1. Preconditions, before touching the cache
	if err := e.validate(op, productID, s, horizon); err != nil {
		return nil, err
	}

	// 2. Get or train
	m, err := e.cache.GetOrTrain(ctx, productID, s)
	if err != nil {
		return nil, e.surface(op, productID, err)
	}

	// 3. Predict, enforcing the quantile invariants at the boundary
	points := model.Enforce(m.Predict(horizon))
	if len(points) != horizon {
		return nil, e.surface(op, productID, fmt.Errorf("model returned %d points for horizon %d", len(points), horizon))
	}

	// 4. Metadata
	meta := buildMetadata(productID, m, s, points, e.cfg.ConfidenceLevel, e.now())

	log.Debug().Str("product", productID).Int("horizon", horizon).Str("mape", meta.QualityMetrics.MAPE.String()).Msg("Forecast generated")

	return &Result{
		ProductID: productID,
		Points:    points,
		Metadata:  meta,
	}, nil
}

// Invalidate drops a product's model from every cache tier. An empty productID drops all models.
func (e *Engine) Invalidate(ctx context.Context, productID string) {
	if productID == "" {
		e.cache.InvalidateAll(ctx)
		return
	}
	e.cache.Invalidate(ctx, productID)
}

func (e *Engine) validate(op, productID string, s series.Series, horizon int) error {
	if horizon < 1 || horizon > e.cfg.MaxHorizon {
		return apperr.Validation(op, "horizon_days", horizon, fmt.Sprintf("horizon must be between 1 and %d days", e.cfg.MaxHorizon))
	}
	if s.Len() < e.cfg.MinDataPoints {
		ierr := apperr.InsufficientData(op, e.cfg.MinDataPoints, s.Len())
		ierr.ProductID = productID
		return ierr
	}
	if required := int(math.Ceil(float64(s.SpanDays()) * minCoverage)); s.Len() < required {
		ierr := apperr.InsufficientData(op, required, s.Len())
		ierr.ProductID = productID
		return ierr
	}
	if s.Sum() <= 0 {
		return apperr.Forecast(op, productID, "degenerate demand: series contains no non-zero quantities")
	}
	return nil
}

// surface passes user-facing errors through and masks everything else.
func (e *Engine) surface(op, productID string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	log.Error().Err(err).Str("product", productID).Str("op", op).Msg("Technical failure while forecasting")
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	return apperr.Internal(op, err)
}
