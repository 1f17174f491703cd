package domain

import (
	"fmt"
	"strings"
)

// RiskLabel is the three-tier classification of a risk probability.
type RiskLabel string

const (
	RiskUnset  RiskLabel = ""
	RiskLow    RiskLabel = "Low"
	RiskMedium RiskLabel = "Medium"
	RiskHigh   RiskLabel = "High"
)

// Probability thresholds. Both bounds are inclusive-lower: 0.33 is Medium, 0.66 is High.
const (
	MediumRiskThreshold = 0.33
	HighRiskThreshold   = 0.66
)

// ClassifyRisk maps a probability onto a label.
func ClassifyRisk(p float64) RiskLabel {
	switch {
	case p < MediumRiskThreshold:
		return RiskLow
	case p < HighRiskThreshold:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// ParseRiskLabel accepts the canonical labels in any letter case; blank means unset.
func ParseRiskLabel(s string) (RiskLabel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return RiskUnset, nil
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return RiskUnset, &ValidationError{Field: "risk", Reason: fmt.Sprintf("unknown label %q", s)}
}
