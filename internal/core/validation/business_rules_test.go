package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
)

var now = time.Date(2020, 5, 10, 13, 0, 0, 0, time.UTC)

func existingCharge(t *testing.T, chargeType domain.ChargeType) *domain.Charge {
	t.Helper()
	op := validOperation(chargeType)
	op.StartDateTime = day(2020, 1, 1)
	c, err := domain.NewCharge(op, now)
	require.NoError(t, err)
	return c
}

func businessContext(op domain.ChargeOperation, existing *domain.Charge) BusinessContext {
	return BusinessContext{
		Operation: op,
		Existing:  existing,
		Config:    DefaultRulesConfiguration(),
		Now:       now,
		Zone:      localtime.MustZone(localtime.DefaultZoneName),
	}
}

// =============================================================================
// Factory Tests
// =============================================================================

func TestBusinessRules_RuleMembership(t *testing.T) {
	tests := []struct {
		name       string
		chargeType domain.ChargeType
		existing   bool
		want       []RuleIdentifier
	}{
		{
			name:       "new tariff",
			chargeType: domain.ChargeTypeTariff,
			want:       []RuleIdentifier{RuleStartDateValidation, RuleChargeMustExistToBeStopped},
		},
		{
			name:       "existing fee",
			chargeType: domain.ChargeTypeFee,
			existing:   true,
			want: []RuleIdentifier{
				RuleStartDateValidation,
				RuleUpdateBeforeOrOnStopDate,
				RuleChargeResolutionCanNotBeUpdated,
				RuleStopAfterChargeStart,
			},
		},
		{
			name:       "existing tariff",
			chargeType: domain.ChargeTypeTariff,
			existing:   true,
			want: []RuleIdentifier{
				RuleStartDateValidation,
				RuleUpdateBeforeOrOnStopDate,
				RuleChargeResolutionCanNotBeUpdated,
				RuleStopAfterChargeStart,
				RuleChangingTariffTaxValueNotAllowed,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var existing *domain.Charge
			if tt.existing {
				existing = existingCharge(t, tt.chargeType)
			}
			set := BusinessRules(businessContext(validOperation(tt.chargeType), existing))
			assert.Equal(t, tt.want, set.Identifiers())
		})
	}
}

// =============================================================================
// Start Date Tests
// =============================================================================

func TestStartDateRule(t *testing.T) {
	zone := localtime.MustZone("Europe/Copenhagen")

	tests := []struct {
		name  string
		start time.Time
		valid bool
	}{
		{"ten years back", time.Date(2010, 5, 10, 21, 59, 59, 0, time.UTC), false},
		{"tomorrow in local time", time.Date(2020, 5, 10, 22, 0, 0, 0, time.UTC), true},
		{"ten years ahead", time.Date(2030, 5, 13, 21, 59, 59, 0, time.UTC), false},
		{"lower bound", time.Date(2018, 5, 20, 22, 0, 0, 0, time.UTC), true},
		{"one day before lower bound", time.Date(2018, 5, 19, 22, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := StartDateRule{
				Start:    tt.start,
				Now:      now,
				Zone:     zone,
				Interval: DefaultRulesConfiguration().StartDateInterval,
			}
			assert.Equal(t, tt.valid, rule.IsValid())
		})
	}
}

func TestStartDateRule_Parameters(t *testing.T) {
	rule := StartDateRule{
		Start:    time.Date(2020, 5, 10, 22, 0, 0, 0, time.UTC),
		Now:      now,
		Zone:     localtime.MustZone("Europe/Copenhagen"),
		Interval: StartDateInterval{MinDays: 0, MaxDays: 0},
	}

	assert.False(t, rule.IsValid())
	assert.Equal(t, "2020-05-11", rule.Parameters()["LocalDate"])
	assert.Equal(t, "0", rule.Parameters()["MaxDays"])
}

// =============================================================================
// Existing Charge Rule Tests
// =============================================================================

func TestBusinessRules_StopOfUnknownCharge(t *testing.T) {
	op := validOperation(domain.ChargeTypeTariff)
	op.EndDateTime = op.StartDateTime

	result := BusinessRules(businessContext(op, nil)).Validate()
	assert.Equal(t, []RuleIdentifier{RuleChargeMustExistToBeStopped}, failedRules(result))
}

func TestBusinessRules_UpdateAfterStopDate(t *testing.T) {
	c := existingCharge(t, domain.ChargeTypeTariff)
	require.NoError(t, c.Stop(day(2020, 6, 1), now))

	tests := []struct {
		name  string
		start time.Time
		valid bool
	}{
		{"before stop", day(2020, 5, 20), true},
		{"on stop date", day(2020, 6, 1), true},
		{"after stop", day(2020, 6, 2), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := UpdateBeforeOrOnStopDateRule{Start: tt.start, Existing: c}
			assert.Equal(t, tt.valid, rule.IsValid())
		})
	}
}

func TestBusinessRules_ResolutionChange(t *testing.T) {
	c := existingCharge(t, domain.ChargeTypeTariff)
	op := validOperation(domain.ChargeTypeTariff)
	op.Resolution = domain.ResolutionDaily

	result := BusinessRules(businessContext(op, c)).Validate()
	assert.Equal(t, []RuleIdentifier{RuleChargeResolutionCanNotBeUpdated}, failedRules(result))
}

func TestBusinessRules_TariffTaxChange(t *testing.T) {
	c := existingCharge(t, domain.ChargeTypeTariff)
	op := validOperation(domain.ChargeTypeTariff)
	op.TaxIndicator = false

	result := BusinessRules(businessContext(op, c)).Validate()
	assert.Equal(t, []RuleIdentifier{RuleChangingTariffTaxValueNotAllowed}, failedRules(result))
}

func TestBusinessRules_StopAtChargeStart(t *testing.T) {
	c := existingCharge(t, domain.ChargeTypeTariff)
	op := validOperation(domain.ChargeTypeTariff)
	op.StartDateTime = c.EffectiveFrom()
	op.EndDateTime = c.EffectiveFrom()

	result := BusinessRules(businessContext(op, c)).Validate()
	assert.Equal(t, []RuleIdentifier{RuleStopAfterChargeStart}, failedRules(result))
}

func TestBusinessRules_ValidStop(t *testing.T) {
	c := existingCharge(t, domain.ChargeTypeTariff)
	op := validOperation(domain.ChargeTypeTariff)
	op.EndDateTime = op.StartDateTime

	assert.True(t, BusinessRules(businessContext(op, c)).Validate().IsValid())
}
