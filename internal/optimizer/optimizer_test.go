package optimizer

import (
	"math"
	"testing"
	"time"

	"stockcast/internal/apperr"
	"stockcast/internal/model"
)

func forecastOf(values ...float64) []model.ForecastPoint {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.ForecastPoint, len(values))
	for i, v := range values {
		out[i] = model.ForecastPoint{Date: start.AddDate(0, 0, i), P10: v * 0.8, P50: v, P90: v * 1.2}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func noStockoutSim() *Optimizer {
	p := DefaultPolicy()
	p.StockoutTrials = 0
	return New(p)
}

func TestRecommend_ConstantDemandScenario(t *testing.T) {
	rec, err := noStockoutSim().Recommend("SKU", forecastOf(repeat(10, 14)...), Params{CurrentStock: 50, LeadTimeDays: 7, ServiceLevelPercent: 95})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}

	if !rec.Metadata.LowVariability {
		t.Errorf("Expected the low-variability branch")
	}
	if rec.SafetyStock != 10.5 {
		t.Errorf("Expected safety stock 10.5, got %v", rec.SafetyStock)
	}
	if rec.ReorderPoint != 80.5 {
		t.Errorf("Expected reorder point 80.5, got %v", rec.ReorderPoint)
	}
	if rec.Action != ActionOrder || rec.Status != StatusAttention {
		t.Errorf("Expected order/attention, got %s/%s", rec.Action, rec.Status)
	}
	if rec.QuantityToOrder != 100.5 {
		t.Errorf("Expected quantity 100.5, got %v", rec.QuantityToOrder)
	}
	if rec.Metadata.ReviewPeriodDays != 14 || rec.Metadata.TargetStock != 150.5 {
		t.Errorf("Unexpected sizing metadata: %+v", rec.Metadata)
	}
	if rec.DaysUntilStockout == nil || *rec.DaysUntilStockout != 5 {
		t.Errorf("Expected 5 days until stockout, got %v", rec.DaysUntilStockout)
	}
	if rec.Metadata.ServiceLevel != "95%" {
		t.Errorf("Expected service level 95%%, got %s", rec.Metadata.ServiceLevel)
	}
}

func TestRecommend_ComfortableStock(t *testing.T) {
	rec, err := noStockoutSim().Recommend("SKU", forecastOf(repeat(10, 14)...), Params{CurrentStock: 1000, LeadTimeDays: 7, ServiceLevelPercent: 95})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if rec.Action != ActionSufficient || rec.QuantityToOrder != 0 {
		t.Errorf("Expected sufficient with no order, got %s/%v", rec.Action, rec.QuantityToOrder)
	}
	if rec.DaysUntilStockout != nil {
		t.Errorf("Expected days until stockout to be omitted, got %d", *rec.DaysUntilStockout)
	}
}

func TestRecommend_Buckets(t *testing.T) {
	// SS 10.5, ROP 80.5, watch limit 120.75
	tests := []struct {
		stock  float64
		action Action
		status string
	}{
		{0, ActionOrder, StatusCritical},
		{10.5, ActionOrder, StatusCritical},
		{10.6, ActionOrder, StatusAttention},
		{80.5, ActionOrder, StatusAttention},
		{100, ActionWatch, StatusWatch},
		{120.75, ActionWatch, StatusWatch},
		{121, ActionSufficient, StatusSufficient},
	}

	opt := noStockoutSim()
	for _, tt := range tests {
		rec, err := opt.Recommend("SKU", forecastOf(repeat(10, 14)...), Params{CurrentStock: tt.stock, LeadTimeDays: 7, ServiceLevelPercent: 95})
		if err != nil {
			t.Fatalf("Recommend(%v) failed: %v", tt.stock, err)
		}
		if rec.Action != tt.action || rec.Status != tt.status {
			t.Errorf("stock %v: expected %s/%s, got %s/%s", tt.stock, tt.action, tt.status, rec.Action, rec.Status)
		}
		if rec.Action != ActionOrder && rec.QuantityToOrder != 0 {
			t.Errorf("stock %v: expected no order quantity, got %v", tt.stock, rec.QuantityToOrder)
		}
		if rec.Metadata.Rationale == "" {
			t.Errorf("stock %v: expected a rationale", tt.stock)
		}
	}
}

func TestRecommend_VariableDemandUsesZScore(t *testing.T) {
	values := []float64{5, 15, 5, 15, 5, 15, 5, 15, 5, 15, 5, 15, 5, 15}
	rec, err := noStockoutSim().Recommend("SKU", forecastOf(values...), Params{CurrentStock: 0, LeadTimeDays: 4, ServiceLevelPercent: 95})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if rec.Metadata.LowVariability {
		t.Fatalf("Expected the variable-demand branch")
	}

	std := math.Sqrt(14 * 25.0 / 13)
	want := math.Round(ZScore(95)*std*2*100) / 100
	if math.Abs(rec.SafetyStock-want) > 0.01 {
		t.Errorf("Expected safety stock %v, got %v", want, rec.SafetyStock)
	}
	// target 10*14 + SS exceeds the 40 unit lead-time minimum
	if rec.QuantityToOrder < 140 {
		t.Errorf("Expected quantity to cover the review period, got %v", rec.QuantityToOrder)
	}
}

func TestRecommend_Invariants(t *testing.T) {
	opt := noStockoutSim()
	series := [][]float64{
		repeat(0.5, 10),
		{0, 0, 0, 40, 0, 0, 0, 40},
		{100, 80, 60, 40, 20, 0},
		{3},
		repeat(0, 5),
	}
	for _, values := range series {
		for _, stock := range []float64{0, 5, 50, 500} {
			for _, sl := range []float64{80, 90, 95, 99} {
				rec, err := opt.Recommend("SKU", forecastOf(values...), Params{CurrentStock: stock, LeadTimeDays: 5, ServiceLevelPercent: sl})
				if err != nil {
					t.Fatalf("Recommend failed: %v", err)
				}
				if rec.SafetyStock < 0 || rec.ReorderPoint < rec.SafetyStock {
					t.Errorf("Invariant violated: SS=%v ROP=%v", rec.SafetyStock, rec.ReorderPoint)
				}
				if rec.Action != ActionOrder && rec.QuantityToOrder != 0 {
					t.Errorf("Invariant violated: %s with quantity %v", rec.Action, rec.QuantityToOrder)
				}
				if rec.QuantityToOrder < 0 {
					t.Errorf("Negative order quantity %v", rec.QuantityToOrder)
				}
			}
		}
	}
}

func TestZScore_Monotonic(t *testing.T) {
	levels := []float64{80, 85, 90, 95, 97.5, 99}
	for i := 1; i < len(levels); i++ {
		if ZScore(levels[i]) <= ZScore(levels[i-1]) {
			t.Errorf("z(%v) should exceed z(%v)", levels[i], levels[i-1])
		}
	}
	if math.Abs(ZScore(95)-1.645) > 0.001 || math.Abs(ZScore(99)-2.326) > 0.001 {
		t.Errorf("Unexpected z values: %v %v", ZScore(95), ZScore(99))
	}
}

func TestRecommend_Errors(t *testing.T) {
	opt := noStockoutSim()
	points := forecastOf(repeat(10, 7)...)

	tests := []struct {
		name   string
		points []model.ForecastPoint
		params Params
		kind   apperr.Kind
		field  string
	}{
		{"NegativeStock", points, Params{CurrentStock: -1, LeadTimeDays: 7, ServiceLevelPercent: 95}, apperr.KindValidation, "current_stock"},
		{"ZeroLeadTime", points, Params{CurrentStock: 1, LeadTimeDays: 0, ServiceLevelPercent: 95}, apperr.KindValidation, "lead_time_days"},
		{"LongLeadTime", points, Params{CurrentStock: 1, LeadTimeDays: 91, ServiceLevelPercent: 95}, apperr.KindValidation, "lead_time_days"},
		{"LowService", points, Params{CurrentStock: 1, LeadTimeDays: 7, ServiceLevelPercent: 50}, apperr.KindValidation, "service_level_percent"},
		{"HighService", points, Params{CurrentStock: 1, LeadTimeDays: 7, ServiceLevelPercent: 99.9}, apperr.KindValidation, "service_level_percent"},
		{"EmptyForecast", nil, Params{CurrentStock: 1, LeadTimeDays: 7, ServiceLevelPercent: 95}, apperr.KindOptimization, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := opt.Recommend("SKU", tt.points, tt.params)
			ae, ok := apperr.As(err)
			if !ok || ae.Kind != tt.kind {
				t.Fatalf("Expected %s, got %v", tt.kind, err)
			}
			if ae.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, ae.Field)
			}
		})
	}
}

func TestRecommend_StockoutRisk(t *testing.T) {
	opt := New(DefaultPolicy())
	points := forecastOf(repeat(10, 14)...)

	a, err := opt.Recommend("SKU", points, Params{CurrentStock: 50, LeadTimeDays: 7, ServiceLevelPercent: 95})
	if err != nil {
		t.Fatalf("Recommend failed: %v", err)
	}
	if a.Metadata.StockoutRisk == nil {
		t.Fatalf("Expected a stockout risk estimate")
	}
	if a.Metadata.StockoutRisk.ProbabilityWithinLeadTime < 0.9 {
		t.Errorf("Expected a likely stockout within lead time, got %v", a.Metadata.StockoutRisk.ProbabilityWithinLeadTime)
	}

	b, _ := opt.Recommend("SKU", points, Params{CurrentStock: 50, LeadTimeDays: 7, ServiceLevelPercent: 95})
	if a.Metadata.StockoutRisk.ProbabilityWithinLeadTime != b.Metadata.StockoutRisk.ProbabilityWithinLeadTime {
		t.Errorf("Expected a deterministic recommendation")
	}
}

func TestParams_WithDefaults(t *testing.T) {
	p := Params{CurrentStock: 3}.WithDefaults(DefaultPolicy())
	if p.LeadTimeDays != 7 || p.ServiceLevelPercent != 95 {
		t.Errorf("Unexpected defaults: %+v", p)
	}
}
