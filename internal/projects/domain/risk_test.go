package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRisk_Boundaries(t *testing.T) {
	cases := []struct {
		p    float64
		want RiskLabel
	}{
		{0, RiskLow},
		{0.329999, RiskLow},
		{0.33, RiskMedium},
		{0.42, RiskMedium},
		{0.659999, RiskMedium},
		{0.66, RiskHigh},
		{1.0, RiskHigh},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyRisk(tc.p), "p=%v", tc.p)
	}
}

func TestParseRiskLabel(t *testing.T) {
	t.Run("accepts any case", func(t *testing.T) {
		for in, want := range map[string]RiskLabel{
			"low": RiskLow, "MEDIUM": RiskMedium, " High ": RiskHigh, "": RiskUnset,
		} {
			got, err := ParseRiskLabel(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("rejects unknown labels", func(t *testing.T) {
		_, err := ParseRiskLabel("severe")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestProject_Validate(t *testing.T) {
	budget := -1.0

	assert.NoError(t, Project{Code: "P-1", Name: "Bridge"}.Validate())
	assert.ErrorIs(t, Project{Name: "Bridge"}.Validate(), ErrValidation)
	assert.ErrorIs(t, Project{Code: "P-1", Name: "  "}.Validate(), ErrValidation)
	assert.ErrorIs(t, Project{Code: "P-1", Name: "Bridge", BudgetCr: &budget}.Validate(), ErrValidation)
	assert.ErrorIs(t, Project{Code: "P-1", Name: "Bridge", Risk: "Extreme"}.Validate(), ErrValidation)
}

func TestProject_InputPreservesFields(t *testing.T) {
	lat, lng, budget, delay := 12.9, 77.5, 50.0, 6.0
	status := "active"
	p := Project{
		ID:          7,
		Code:        "P-7",
		Name:        "Metro line",
		Location:    Location{Lat: &lat, Lng: &lng},
		BudgetCr:    &budget,
		Status:      &status,
		Risk:        RiskHigh,
		DelayMonths: &delay,
	}

	in := p.Input()
	assert.Equal(t, "P-7", in.Code)
	assert.Equal(t, "Metro line", in.Name)
	assert.Equal(t, &lat, in.LocationLat)
	assert.Equal(t, &lng, in.LocationLng)
	assert.Equal(t, &budget, in.BudgetCr)
	assert.Equal(t, &status, in.Status)
	require.NotNil(t, in.Risk)
	assert.Equal(t, "High", *in.Risk)
	assert.Equal(t, &delay, in.DelayMonths)
	assert.Empty(t, in.UserID)

	p.Risk = RiskUnset
	assert.Nil(t, p.Input().Risk)
}
