package domain

import "strings"

// Location is an optional coordinate pair. Each half is independently nullable.
type Location struct {
	Lat *float64 `json:"location_lat"`
	Lng *float64 `json:"location_lng"`
}

// Project represents a single infrastructure project held by the remote project store.
// ID is zero for records that have not been saved yet.
type Project struct {
	ID   int64  `json:"id,omitempty"`
	Code string `json:"code"`
	Name string `json:"name"`
	Location
	BudgetCr    *float64  `json:"budget_cr"`
	Status      *string   `json:"status"`
	Risk        RiskLabel `json:"risk"`
	DelayMonths *float64  `json:"delay_months"`
}

// HasID reports whether the project has been assigned an id by the store.
func (p Project) HasID() bool {
	return p.ID > 0
}

// Validate checks the invariants every record crossing the store boundary must hold.
func (p Project) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if p.BudgetCr != nil && *p.BudgetCr < 0 {
		return &ValidationError{Field: "budget_cr", Reason: "must not be negative"}
	}
	if _, err := ParseRiskLabel(string(p.Risk)); err != nil {
		return err
	}
	return nil
}

// Input returns the full-record payload for this project. Every field is carried
// over, so an update built from it leaves untouched fields unchanged.
func (p Project) Input() ProjectInput {
	in := ProjectInput{
		Code:        p.Code,
		Name:        p.Name,
		LocationLat: p.Lat,
		LocationLng: p.Lng,
		BudgetCr:    p.BudgetCr,
		Status:      p.Status,
		DelayMonths: p.DelayMonths,
	}
	if p.Risk != RiskUnset {
		r := string(p.Risk)
		in.Risk = &r
	}
	return in
}

// ProjectInput is the body of create and update requests against the project store.
type ProjectInput struct {
	UserID      string   `json:"user_id,omitempty"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	LocationLat *float64 `json:"location_lat"`
	LocationLng *float64 `json:"location_lng"`
	BudgetCr    *float64 `json:"budget_cr"`
	Status      *string  `json:"status"`
	Risk        *string  `json:"risk"`
	DelayMonths *float64 `json:"delay_months"`
}

// Validate enforces that code and name are present before a request is issued.
func (in ProjectInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	return nil
}

// RiskAnnotation is a transient, display-only prediction for one project.
type RiskAnnotation struct {
	ProjectID   int64     `json:"project_id"`
	Probability float64   `json:"probability"`
	Label       RiskLabel `json:"label"`
}
