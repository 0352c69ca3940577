package engine

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"stockcast/internal/demandlog"
	"stockcast/internal/series"
)

// Scenarios understood by Generate.
const (
	ScenarioSteady       = "steady"
	ScenarioSeasonal     = "seasonal"
	ScenarioIntermittent = "intermittent"
	ScenarioZero         = "zero"
)

type GeneratorConfig struct {
	Scenario   string
	Days       int
	BaseDemand float64
	Trend      float64 // units added per day
	Noise      float64 // standard deviation as a share of the base demand
	Seed       int64
	Now        time.Time
}

// Generate produces one record per day ending yesterday. Quantities follow base + trend,
// a weekly sine wave for the seasonal scenario and Gaussian noise, clamped at zero.
func Generate(cfg GeneratorConfig) ([]demandlog.Record, error) {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.Days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", cfg.Days)
	}
	if cfg.BaseDemand < 0 {
		return nil, fmt.Errorf("base demand must not be negative, got %g", cfg.BaseDemand)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	start := series.Day(cfg.Now).AddDate(0, 0, -cfg.Days)

	records := make([]demandlog.Record, 0, cfg.Days)
	for i := 0; i < cfg.Days; i++ {
		day := start.AddDate(0, 0, i)

		var qty float64
		switch cfg.Scenario {
		case ScenarioZero:
			qty = 0
		case ScenarioIntermittent:
			// Roughly one demand day in four, with lumpy sizes
			if rng.Float64() < 0.25 {
				qty = cfg.BaseDemand * (1 + rng.ExpFloat64())
			}
		case ScenarioSeasonal:
			weekly := 0.3 * cfg.BaseDemand * math.Sin(2*math.Pi*float64(day.Weekday())/7)
			qty = cfg.BaseDemand + cfg.Trend*float64(i) + weekly + rng.NormFloat64()*cfg.Noise*cfg.BaseDemand
		case ScenarioSteady, "":
			qty = cfg.BaseDemand + cfg.Trend*float64(i) + rng.NormFloat64()*cfg.Noise*cfg.BaseDemand
		default:
			return nil, fmt.Errorf("unknown scenario %q. Must be steady, seasonal, intermittent, or zero", cfg.Scenario)
		}

		rec := demandlog.NewRecord(day, math.Round(math.Max(0, qty)))
		rec.Ref = fmt.Sprintf("mock-%s", day.Format(series.DateLayout))
		rec.Source = "mockgen"
		records = append(records, rec)
	}
	return records, nil
}

// Save writes records into the demand log under dir, replacing earlier mock data for the product.
func Save(dir string, productID string, records []demandlog.Record) error {
	store := demandlog.NewStore()
	store.Replace(productID, records)
	return store.Save(dir, productID)
}
