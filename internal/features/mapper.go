// Package features derives the predictor's input vector from a project record.
package features

import (
	"math"

	"github.com/prism-infra/prism-sync/internal/projects/domain"
)

// Fixed components of the vector. They are not derived from the project.
const (
	LabourCost        = 0.4
	VendorReliability = 0.6
	WeatherImpact     = 0.3
)

const (
	budgetScaleCr    = 100.0
	delayScaleMonths = 12.0
)

// Vector is the five-dimensional, [0,1]-normalized predictor input.
type Vector struct {
	LabourCost        float64 `json:"labour_cost"`
	MaterialCost      float64 `json:"material_cost"`
	RegulatoryDelay   float64 `json:"regulatory_delay"`
	VendorReliability float64 `json:"vendor_reliability"`
	WeatherImpact     float64 `json:"weather_impact"`
}

// Map builds the vector for p. It never fails: missing or non-finite inputs count as 0.
func Map(p domain.Project) Vector {
	return Vector{
		LabourCost:        LabourCost,
		MaterialCost:      ratio(p.BudgetCr, budgetScaleCr),
		RegulatoryDelay:   ratio(p.DelayMonths, delayScaleMonths),
		VendorReliability: VendorReliability,
		WeatherImpact:     WeatherImpact,
	}
}

func ratio(v *float64, scale float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	r := *v / scale
	if r < 0 {
		return 0
	}
	return math.Min(1, r)
}
