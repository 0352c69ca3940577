// Package optimizer converts demand forecasts into replenishment recommendations.
package optimizer

import (
	"fmt"
	"math"

	"stockcast/internal/apperr"
	"stockcast/internal/model"
	"stockcast/internal/simulation"
	"stockcast/internal/stats"

	"github.com/rs/zerolog/log"
)

// Action is what the recommendation asks the buyer to do.
type Action string

const (
	ActionOrder      Action = "order"
	ActionWatch      Action = "watch"
	ActionSufficient Action = "sufficient"
)

// Status labels, ordered by urgency.
const (
	StatusCritical   = "critical"
	StatusAttention  = "attention"
	StatusWatch      = "watch"
	StatusSufficient = "sufficient"
)

const (
	// lowVariabilityRatio marks demand as nearly constant when σ falls below this share of μ.
	lowVariabilityRatio = 0.1
	// lowVariabilityBuffer is the share of lead-time demand held as safety stock in that case.
	lowVariabilityBuffer = 0.15
	watchFactor          = 1.5
	minReviewPeriod      = 14
	maxStockoutHorizon   = 30

	calculationMethod = "Dynamic Safety Stock with Service Level"
)

// Recommendation is the replenishment advice for one product.
// Invariants: ReorderPoint >= SafetyStock >= 0, QuantityToOrder == 0 unless Action is order.
type Recommendation struct {
	ProductID         string   `json:"product_id"`
	Action            Action   `json:"action"`
	Status            string   `json:"status"`
	CurrentStock      float64  `json:"current_stock"`
	QuantityToOrder   float64  `json:"quantity_to_order"`
	ReorderPoint      float64  `json:"reorder_point"`
	SafetyStock       float64  `json:"safety_stock"`
	DaysUntilStockout *int     `json:"days_until_stockout,omitempty"`
	Metadata          Metadata `json:"metadata"`
}

// Metadata explains how a recommendation was derived.
type Metadata struct {
	AverageDailyDemand float64            `json:"average_daily_demand"`
	DemandVariability  float64            `json:"demand_variability"`
	LeadTimeDays       int                `json:"lead_time"`
	ServiceLevel       string             `json:"service_level"`
	LeadTimeDemand     float64            `json:"lead_time_demand"`
	ZScore             float64            `json:"z_score"`
	ReviewPeriodDays   int                `json:"review_period,omitempty"`
	TargetStock        float64            `json:"target_stock,omitempty"`
	LowVariability     bool               `json:"low_variability"`
	CalculationMethod  string             `json:"calculation_method"`
	Rationale          string             `json:"rationale"`
	StockoutRisk       *simulation.Result `json:"stockout_risk,omitempty"`
}

// Optimizer turns forecasts into recommendations.
type Optimizer struct {
	policy Policy
}

// New creates an Optimizer enforcing policy.
func New(policy Policy) *Optimizer {
	return &Optimizer{policy: policy}
}

// Policy returns the configured bounds.
func (o *Optimizer) Policy() Policy { return o.policy }

// ZScore returns the standard normal quantile of a service level given in percent.
func ZScore(serviceLevelPercent float64) float64 {
	return stats.InverseNormalCDF(serviceLevelPercent / 100)
}

// Recommend computes safety stock, reorder point and order quantity from the P50 path of the
// forecast. The result is a pure function of its inputs.
func (o *Optimizer) Recommend(productID string, points []model.ForecastPoint, params Params) (rec *Recommendation, err error) {
	const op = "optimizer.Recommend"

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("product", productID).Interface("panic", r).Msg("Technical failure while optimizing")
			rec, err = nil, apperr.Internal(op, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := params.Validate(o.policy); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, apperr.Optimization(op, productID, "cannot compute average daily demand from an empty forecast")
	}

	// 1. Demand statistics over the median path
	p50 := make([]float64, len(points))
	for i, p := range points {
		p50[i] = p.P50
	}
	avg := stats.Mean(p50)
	std := stats.StdDev(p50)
	if math.IsNaN(avg) || math.IsInf(avg, 0) {
		return nil, apperr.Optimization(op, productID, "average daily demand is not a finite number")
	}

	lead := float64(params.LeadTimeDays)
	stock := params.CurrentStock

	// 2. Lead-time demand and service factor
	leadTimeDemand := avg * lead
	z := ZScore(params.ServiceLevelPercent)

	// 3. Safety stock with the low-variability floor
	lowVar := std < lowVariabilityRatio*avg
	var safety float64
	if lowVar {
		safety = lowVariabilityBuffer * avg * lead
	} else {
		safety = z * std * math.Sqrt(lead)
	}
	safety = math.Max(0, safety)

	// 4. Reorder point
	reorderPoint := leadTimeDemand + safety

	rec = &Recommendation{
		ProductID:    productID,
		CurrentStock: stock,
		Metadata: Metadata{
			AverageDailyDemand: stats.Round(avg, 2),
			DemandVariability:  stats.Round(std, 2),
			LeadTimeDays:       params.LeadTimeDays,
			ServiceLevel:       fmt.Sprintf("%g%%", params.ServiceLevelPercent),
			LeadTimeDemand:     stats.Round(leadTimeDemand, 2),
			ZScore:             stats.Round(z, 3),
			LowVariability:     lowVar,
			CalculationMethod:  calculationMethod,
		},
	}

	// 5. Bucketing, strictly in this order
	switch {
	case stock <= safety:
		rec.Action, rec.Status = ActionOrder, StatusCritical
	case stock <= reorderPoint:
		rec.Action, rec.Status = ActionOrder, StatusAttention
	case stock <= watchFactor*reorderPoint:
		rec.Action, rec.Status = ActionWatch, StatusWatch
	default:
		rec.Action, rec.Status = ActionSufficient, StatusSufficient
	}

	// 6. Order sizing
	if rec.Action == ActionOrder {
		review := max(minReviewPeriod, 2*params.LeadTimeDays)
		target := avg*float64(review) + safety
		minOrder := avg * lead
		rec.QuantityToOrder = stats.Round(math.Max(0, math.Max(target-stock, minOrder)), 2)
		rec.Metadata.ReviewPeriodDays = review
		rec.Metadata.TargetStock = stats.Round(target, 2)
	}

	// 7. Near-term stockout estimate
	if avg > 0 {
		days := math.Floor(stock / avg)
		if days <= maxStockoutHorizon {
			d := int(days)
			rec.DaysUntilStockout = &d
		}
	}

	rec.SafetyStock = stats.Round(safety, 2)
	rec.ReorderPoint = stats.Round(reorderPoint, 2)
	rec.Metadata.Rationale = rationale(rec, stock, safety, reorderPoint, params.LeadTimeDays)

	// 8. Optional Monte-Carlo risk over the forecast quantiles
	if o.policy.StockoutTrials > 0 {
		risk := simulation.NewEngine(points, productID).Run(stock, params.LeadTimeDays, o.policy.StockoutTrials)
		rec.Metadata.StockoutRisk = &risk
	}

	return rec, nil
}

func rationale(rec *Recommendation, stock, safety, reorderPoint float64, leadTime int) string {
	switch rec.Status {
	case StatusCritical:
		return fmt.Sprintf("Critical: stock (%.2f) is at or below safety stock (%.2f). Order %.2f units immediately to cover the %d-day lead time.",
			stock, safety, rec.QuantityToOrder, leadTime)
	case StatusAttention:
		return fmt.Sprintf("Attention: stock (%.2f) has reached the reorder point (%.2f). Order %.2f units now to avoid a stockout during the %d-day lead time.",
			stock, reorderPoint, rec.QuantityToOrder, leadTime)
	case StatusWatch:
		return fmt.Sprintf("Watch: stock (%.2f) is above the reorder point (%.2f) but within %.0f%% of it. Monitor closely.",
			stock, reorderPoint, (watchFactor-1)*100)
	default:
		return fmt.Sprintf("Sufficient: stock (%.2f) comfortably exceeds the reorder point (%.2f). No action needed.",
			stock, reorderPoint)
	}
}
