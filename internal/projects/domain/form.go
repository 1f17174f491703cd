package domain

import (
	"math"
	"strconv"
	"strings"
)

// ProjectForm holds the free-text values of a create form or an inline edit row.
// Numeric fields stay text until Parse is called.
type ProjectForm struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	LocationLat string `json:"location_lat"`
	LocationLng string `json:"location_lng"`
	BudgetCr    string `json:"budget_cr"`
	Status      string `json:"status"`
	Risk        string `json:"risk"`
	DelayMonths string `json:"delay_months"`
}

// FormPatch carries the fields a client changed; nil means untouched.
type FormPatch struct {
	Code        *string `json:"code"`
	Name        *string `json:"name"`
	LocationLat *string `json:"location_lat"`
	LocationLng *string `json:"location_lng"`
	BudgetCr    *string `json:"budget_cr"`
	Status      *string `json:"status"`
	Risk        *string `json:"risk"`
	DelayMonths *string `json:"delay_months"`
}

// FormFromProject renders a project's editable fields as text.
func FormFromProject(p Project) ProjectForm {
	f := ProjectForm{
		Code:        p.Code,
		Name:        p.Name,
		LocationLat: formatNumber(p.Lat),
		LocationLng: formatNumber(p.Lng),
		BudgetCr:    formatNumber(p.BudgetCr),
		Risk:        string(p.Risk),
		DelayMonths: formatNumber(p.DelayMonths),
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	return f
}

// Apply returns a copy of f with the patch applied.
func (f ProjectForm) Apply(patch FormPatch) ProjectForm {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&f.Code, patch.Code)
	set(&f.Name, patch.Name)
	set(&f.LocationLat, patch.LocationLat)
	set(&f.LocationLng, patch.LocationLng)
	set(&f.BudgetCr, patch.BudgetCr)
	set(&f.Status, patch.Status)
	set(&f.Risk, patch.Risk)
	set(&f.DelayMonths, patch.DelayMonths)
	return f
}

// Parse converts the form into a store payload. Blank numeric text becomes null;
// anything that is not a finite number is a validation error.
func (f ProjectForm) Parse() (ProjectInput, error) {
	in := ProjectInput{
		Code: strings.TrimSpace(f.Code),
		Name: strings.TrimSpace(f.Name),
	}
	if err := in.Validate(); err != nil {
		return ProjectInput{}, err
	}

	var err error
	if in.LocationLat, err = parseOptionalNumber("location_lat", f.LocationLat); err != nil {
		return ProjectInput{}, err
	}
	if in.LocationLng, err = parseOptionalNumber("location_lng", f.LocationLng); err != nil {
		return ProjectInput{}, err
	}
	if in.BudgetCr, err = parseOptionalNumber("budget_cr", f.BudgetCr); err != nil {
		return ProjectInput{}, err
	}
	if in.BudgetCr != nil && *in.BudgetCr < 0 {
		return ProjectInput{}, &ValidationError{Field: "budget_cr", Reason: "must not be negative"}
	}
	if in.DelayMonths, err = parseOptionalNumber("delay_months", f.DelayMonths); err != nil {
		return ProjectInput{}, err
	}

	if s := strings.TrimSpace(f.Status); s != "" {
		in.Status = &s
	}
	label, err := ParseRiskLabel(f.Risk)
	if err != nil {
		return ProjectInput{}, err
	}
	if label != RiskUnset {
		r := string(label)
		in.Risk = &r
	}
	return in, nil
}

func parseOptionalNumber(field, text string) (*float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &ValidationError{Field: field, Reason: "not a number: " + strconv.Quote(text)}
	}
	return &v, nil
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
