// Package simulation estimates when stock runs out by Monte-Carlo sampling of forecast quantiles.
package simulation

import (
	"hash/fnv"
	"math"
	"math/rand"
	"sort"

	"stockcast/internal/model"
)

// Engine performs the Monte-Carlo stockout simulation over a forecast.
type Engine struct {
	points []model.ForecastPoint
	rng    *rand.Rand
}

// Result summarises the simulated stockout days.
type Result struct {
	Trials       int `json:"trials"`
	HorizonDays  int `json:"horizon_days"`
	LeadTimeDays int `json:"lead_time_days"`
	// ProbabilityWithinLeadTime is the share of trials running out before a new order arrives.
	ProbabilityWithinLeadTime float64 `json:"probability_within_lead_time"`
	ProbabilityWithinHorizon  float64 `json:"probability_within_horizon"`
	// Stockout day percentiles; nil when beyond the forecast horizon.
	P50StockoutDay *int     `json:"p50_stockout_day,omitempty"`
	P90StockoutDay *int     `json:"p90_stockout_day,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// NewEngine creates an engine whose random stream is derived from seedKey, so the same
// product and forecast always simulate the same outcome.
func NewEngine(points []model.ForecastPoint, seedKey string) *Engine {
	h := fnv.New64a()
	h.Write([]byte(seedKey))
	return &Engine{
		points: points,
		rng:    rand.New(rand.NewSource(int64(h.Sum64()))),
	}
}

// Run performs the requested number of trials starting from currentStock.
func (e *Engine) Run(currentStock float64, leadTimeDays, trials int) Result {
	horizon := len(e.points)
	res := Result{Trials: trials, HorizonDays: horizon, LeadTimeDays: leadTimeDays}
	if trials <= 0 || horizon == 0 {
		return res
	}

	days := make([]int, trials)
	withinLead, withinHorizon := 0, 0
	for i := 0; i < trials; i++ {
		d := e.simulateTrial(currentStock)
		days[i] = d
		if d <= leadTimeDays {
			withinLead++
		}
		if d <= horizon {
			withinHorizon++
		}
	}

	sort.Ints(days)

	res.ProbabilityWithinLeadTime = float64(withinLead) / float64(trials)
	res.ProbabilityWithinHorizon = float64(withinHorizon) / float64(trials)
	res.P50StockoutDay = percentileDay(days, 0.50, horizon)
	res.P90StockoutDay = percentileDay(days, 0.90, horizon)

	if leadTimeDays > horizon {
		res.Warnings = append(res.Warnings, "Lead time exceeds the forecast horizon; the lead-time probability is a lower bound.")
	}
	return res
}

// simulateTrial returns the first day on which stock is exhausted, or horizon+1 when it lasts.
func (e *Engine) simulateTrial(stock float64) int {
	if stock <= 0 {
		return 0
	}
	remaining := stock
	for d, p := range e.points {
		remaining -= sampleQuantile(p, e.rng.Float64())
		if remaining <= 0 {
			return d + 1
		}
	}
	return len(e.points) + 1
}

// sampleQuantile maps u in [0, 1) onto the piecewise-linear quantile curve through
// (0.1, P10), (0.5, P50), (0.9, P90), extending the outer segments' slopes into the tails.
func sampleQuantile(p model.ForecastPoint, u float64) float64 {
	var v float64
	switch {
	case u < 0.1:
		v = p.P10 - (0.1-u)*(p.P50-p.P10)/0.4
	case u < 0.5:
		v = p.P10 + (u-0.1)*(p.P50-p.P10)/0.4
	case u < 0.9:
		v = p.P50 + (u-0.5)*(p.P90-p.P50)/0.4
	default:
		v = p.P90 + (u-0.9)*(p.P90-p.P50)/0.4
	}
	return math.Max(0, v)
}

func percentileDay(sorted []int, q float64, horizon int) *int {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	d := sorted[idx]
	if d > horizon {
		return nil
	}
	return &d
}
