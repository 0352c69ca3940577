package optimizer

import (
	"fmt"
	"math"

	"stockcast/internal/apperr"
)

// Policy holds the configured bounds for recommendation parameters.
type Policy struct {
	DefaultLeadTime     int
	MaxLeadTime         int
	DefaultServiceLevel float64
	MinServiceLevel     float64
	MaxServiceLevel     float64
	// StockoutTrials enables the Monte-Carlo stockout estimate when positive.
	StockoutTrials int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		DefaultLeadTime:     7,
		MaxLeadTime:         90,
		DefaultServiceLevel: 95,
		MinServiceLevel:     80,
		MaxServiceLevel:     99,
		StockoutTrials:      2000,
	}
}

// Params are the caller-supplied inputs of a recommendation.
type Params struct {
	CurrentStock        float64 `json:"current_stock"`
	LeadTimeDays        int     `json:"lead_time_days"`
	ServiceLevelPercent float64 `json:"service_level_percent"`
}

// Validate rejects negative stock, non-positive or excessive lead times and service levels
// outside the policy bounds.
func (p Params) Validate(policy Policy) error {
	const op = "optimizer.Validate"

	if p.CurrentStock < 0 || math.IsNaN(p.CurrentStock) || math.IsInf(p.CurrentStock, 0) {
		return apperr.Validation(op, "current_stock", p.CurrentStock, "current stock must be a non-negative number")
	}
	if p.LeadTimeDays <= 0 || (policy.MaxLeadTime > 0 && p.LeadTimeDays > policy.MaxLeadTime) {
		return apperr.Validation(op, "lead_time_days", p.LeadTimeDays, fmt.Sprintf("lead time must be between 1 and %d days", policy.MaxLeadTime))
	}
	if p.ServiceLevelPercent < policy.MinServiceLevel || p.ServiceLevelPercent > policy.MaxServiceLevel || math.IsNaN(p.ServiceLevelPercent) {
		return apperr.Validation(op, "service_level_percent", p.ServiceLevelPercent,
			fmt.Sprintf("service level must be between %g and %g percent", policy.MinServiceLevel, policy.MaxServiceLevel))
	}
	return nil
}

// WithDefaults fills a zero lead time or service level from the policy.
func (p Params) WithDefaults(policy Policy) Params {
	if p.LeadTimeDays == 0 {
		p.LeadTimeDays = policy.DefaultLeadTime
	}
	if p.ServiceLevelPercent == 0 {
		p.ServiceLevelPercent = policy.DefaultServiceLevel
	}
	return p
}
