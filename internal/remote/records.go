package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/prism-infra/prism-sync/internal/projects/domain"
)

// number decodes a JSON number, a numeric string, or null. Anything else
// decodes as null so that loosely typed rows still reach validation.
type number struct {
	v *float64
}

func (n *number) UnmarshalJSON(data []byte) error {
	n.v = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		n.v = &f
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
			n.v = &parsed
		}
	}
	return nil
}

// projectRecord is the loose wire shape of a project. The store returns the
// location either as a pair or as separate fields depending on the endpoint.
type projectRecord struct {
	ID          *int64   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Location    []number `json:"location"`
	LocationLat number   `json:"location_lat"`
	LocationLng number   `json:"location_lng"`
	BudgetCr    number   `json:"budget_cr"`
	Status      *string  `json:"status"`
	Risk        *string  `json:"risk"`
	DelayMonths number   `json:"delay_months"`
}

// toDomain validates the record and converts it. Separate lat/lng fields win;
// the pair fills whichever half is missing.
func (r projectRecord) toDomain() (domain.Project, error) {
	p := domain.Project{
		Code:        r.Code,
		Name:        r.Name,
		BudgetCr:    r.BudgetCr.v,
		Status:      r.Status,
		DelayMonths: r.DelayMonths.v,
	}
	if r.ID != nil {
		p.ID = *r.ID
	}

	p.Lat = r.LocationLat.v
	if p.Lat == nil && len(r.Location) > 0 {
		p.Lat = r.Location[0].v
	}
	p.Lng = r.LocationLng.v
	if p.Lng == nil && len(r.Location) > 1 {
		p.Lng = r.Location[1].v
	}

	if r.Risk != nil {
		label, err := domain.ParseRiskLabel(*r.Risk)
		if err != nil {
			return domain.Project{}, fmt.Errorf("%w: id=%d: %v", domain.ErrMalformedRecord, p.ID, err)
		}
		p.Risk = label
	}

	if err := p.Validate(); err != nil {
		return domain.Project{}, fmt.Errorf("%w: id=%d: %v", domain.ErrMalformedRecord, p.ID, err)
	}
	return p, nil
}
