// Package batch fans forecasts and recommendations out across many products.
package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockcast/internal/apperr"
	"stockcast/internal/forecast"
	"stockcast/internal/optimizer"
	"stockcast/internal/series"
	"stockcast/internal/stats"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent product processing.
const DefaultWorkers = 4

// Request describes one batch run.
type Request struct {
	Products map[string]series.Series
	// StockLevels defaults missing products to zero stock. May be nil.
	StockLevels         map[string]float64
	LeadTimeDays        int
	ServiceLevelPercent float64
}

// Failure records a product that was skipped.
type Failure struct {
	ProductID string `json:"product_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Summary aggregates a batch.
type Summary struct {
	RunID                string    `json:"run_id"`
	TotalProducts        int       `json:"total_products"`
	ProductsToOrder      int       `json:"products_to_order"`
	TotalQuantityToOrder float64   `json:"total_quantity_to_order"`
	TotalSafetyStock     float64   `json:"total_safety_stock"`
	ServiceLevel         string    `json:"average_service_level"`
	LeadTimeDays         int       `json:"lead_time_days"`
	FailedProducts       int       `json:"failed_products"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// Result holds every recommendation of a run, ordered by product ID.
type Result struct {
	Recommendations []*optimizer.Recommendation `json:"recommendations"`
	Failures        []Failure                   `json:"failures,omitempty"`
	Summary         Summary                     `json:"summary"`
}

// Aggregator runs forecast then optimisation per product.
type Aggregator struct {
	engine    *forecast.Engine
	optimizer *optimizer.Optimizer
	workers   int
	now       func() time.Time
}

// New creates an Aggregator processing up to workers products at once.
func New(engine *forecast.Engine, opt *optimizer.Optimizer, workers int) *Aggregator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Aggregator{
		engine:    engine,
		optimizer: opt,
		workers:   workers,
		now:       time.Now,
	}
}

// Run processes every product. Parameter errors abort the run; per-product failures are
// logged and the product is skipped. Stock levels of products outside the batch are ignored.
func (a *Aggregator) Run(ctx context.Context, req Request) (*Result, error) {
	params := optimizer.Params{LeadTimeDays: req.LeadTimeDays, ServiceLevelPercent: req.ServiceLevelPercent}
	if err := params.Validate(a.optimizer.Policy()); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(req.Products))
	for id := range req.Products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		stock, ok := req.StockLevels[id]
		if !ok {
			continue
		}
		p := params
		p.CurrentStock = stock
		if err := p.Validate(a.optimizer.Policy()); err != nil {
			if ae, ok := apperr.As(err); ok {
				ae.ProductID = id
			}
			return nil, err
		}
	}

	runID := uuid.NewString()
	horizon := 2 * req.LeadTimeDays
	log.Info().Str("run", runID).Int("products", len(req.Products)).Int("workers", a.workers).Msg("Starting batch")

	var (
		mu       sync.Mutex
		recs     []*optimizer.Recommendation
		failures []Failure
	)

	var g errgroup.Group
	g.SetLimit(a.workers)

	for id, s := range req.Products {
		g.Go(func() error {
			p := params
			p.CurrentStock = req.StockLevels[id]

			rec, err := a.process(ctx, id, s, horizon, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("run", runID).Str("product", id).Msg("Skipping product in batch")
				failures = append(failures, failureOf(id, err))
				return nil
			}
			recs = append(recs, rec)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Recommendations: recs, Failures: failures}
	res.sort()
	res.Summary = summarize(runID, res.Recommendations, req, a.now())
	res.Summary.FailedProducts = len(res.Failures)

	log.Info().Str("run", runID).Int("ok", res.Summary.TotalProducts).Int("failed", res.Summary.FailedProducts).Msg("Batch complete")
	return res, nil
}

// AddFailure records a product that failed before reaching the aggregator.
func (r *Result) AddFailure(productID string, err error) {
	r.Failures = append(r.Failures, failureOf(productID, err))
	r.sort()
	r.Summary.FailedProducts = len(r.Failures)
}

func (a *Aggregator) process(ctx context.Context, id string, s series.Series, horizon int, p optimizer.Params) (*optimizer.Recommendation, error) {
	fc, err := a.engine.Generate(ctx, id, s, horizon)
	if err != nil {
		return nil, err
	}
	return a.optimizer.Recommend(id, fc.Points, p)
}

func (r *Result) sort() {
	sort.Slice(r.Recommendations, func(i, j int) bool {
		return r.Recommendations[i].ProductID < r.Recommendations[j].ProductID
	})
	sort.Slice(r.Failures, func(i, j int) bool {
		return r.Failures[i].ProductID < r.Failures[j].ProductID
	})
}

func failureOf(productID string, err error) Failure {
	return Failure{ProductID: productID, Code: apperr.KindOf(err).Code(), Message: err.Error()}
}

func summarize(runID string, recs []*optimizer.Recommendation, req Request, now time.Time) Summary {
	s := Summary{
		RunID:         runID,
		TotalProducts: len(recs),
		ServiceLevel:  fmt.Sprintf("%g%%", req.ServiceLevelPercent),
		LeadTimeDays:  req.LeadTimeDays,
		GeneratedAt:   now.UTC(),
	}
	var qty, safety float64
	for _, r := range recs {
		if r.Action == optimizer.ActionOrder {
			s.ProductsToOrder++
			qty += r.QuantityToOrder
		}
		safety += r.SafetyStock
	}
	s.TotalQuantityToOrder = stats.Round(qty, 2)
	s.TotalSafetyStock = stats.Round(safety, 2)
	return s
}
