package validation

import (
	"strconv"
	"time"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
)

// =============================================================================
// Rules Configuration
// =============================================================================

// StartDateInterval bounds the start date of an operation, in days relative
// to today's local date. Both ends are inclusive.
type StartDateInterval struct {
	MinDays int `yaml:"min_days" json:"min_days"`
	MaxDays int `yaml:"max_days" json:"max_days"`
}

// RulesConfiguration holds the externally supplied parameters of the
// business rules.
type RulesConfiguration struct {
	StartDateInterval StartDateInterval `yaml:"start_date_interval" json:"start_date_interval"`
}

// DefaultRulesConfiguration returns the market defaults.
func DefaultRulesConfiguration() RulesConfiguration {
	return RulesConfiguration{
		StartDateInterval: StartDateInterval{MinDays: -720, MaxDays: 1095},
	}
}

// =============================================================================
// Charge Business Rules
// =============================================================================

// StartDateRule compares local calendar dates, so an instant just after local
// midnight already counts as the next day.
type StartDateRule struct {
	Start    time.Time
	Now      time.Time
	Zone     localtime.Zone
	Interval StartDateInterval
}

func (r StartDateRule) Identifier() RuleIdentifier { return RuleStartDateValidation }

func (r StartDateRule) IsValid() bool {
	offset := r.offsetDays()
	return offset >= r.Interval.MinDays && offset <= r.Interval.MaxDays
}

func (r StartDateRule) Parameters() map[string]string {
	return map[string]string{
		"StartDateTime": formatTime(r.Start),
		"LocalDate":     r.Zone.LocalDate(r.Start).String(),
		"MinDays":       strconv.Itoa(r.Interval.MinDays),
		"MaxDays":       strconv.Itoa(r.Interval.MaxDays),
	}
}

func (r StartDateRule) offsetDays() int {
	return r.Zone.LocalDate(r.Start).DaysSince(r.Zone.LocalDate(r.Now))
}

// ChargeMustExistToBeStoppedRule rejects a stop for a charge that does not exist.
type ChargeMustExistToBeStoppedRule struct {
	Operation domain.ChargeOperation
}

func (r ChargeMustExistToBeStoppedRule) Identifier() RuleIdentifier {
	return RuleChargeMustExistToBeStopped
}

func (r ChargeMustExistToBeStoppedRule) IsValid() bool {
	return !r.Operation.StartDateTime.Equal(r.Operation.EffectiveEnd())
}

func (r ChargeMustExistToBeStoppedRule) Parameters() map[string]string {
	return map[string]string{"ChargeId": r.Operation.ChargeID}
}

type UpdateBeforeOrOnStopDateRule struct {
	Start    time.Time
	Existing *domain.Charge
}

func (r UpdateBeforeOrOnStopDateRule) Identifier() RuleIdentifier {
	return RuleUpdateBeforeOrOnStopDate
}

func (r UpdateBeforeOrOnStopDateRule) IsValid() bool {
	stop, ok := r.Existing.StopPeriod()
	if !ok {
		return true
	}
	return !r.Start.After(stop.EndDateTime)
}

func (r UpdateBeforeOrOnStopDateRule) Parameters() map[string]string {
	params := map[string]string{"StartDateTime": formatTime(r.Start)}
	if stop, ok := r.Existing.StopPeriod(); ok {
		params["StopDateTime"] = formatTime(stop.EndDateTime)
	}
	return params
}

type ChargeResolutionCanNotBeUpdatedRule struct {
	Resolution domain.Resolution
	Existing   *domain.Charge
}

func (r ChargeResolutionCanNotBeUpdatedRule) Identifier() RuleIdentifier {
	return RuleChargeResolutionCanNotBeUpdated
}

func (r ChargeResolutionCanNotBeUpdatedRule) IsValid() bool {
	return r.Resolution == r.Existing.Resolution
}

func (r ChargeResolutionCanNotBeUpdatedRule) Parameters() map[string]string {
	return map[string]string{
		"Resolution":         string(r.Resolution),
		"ExistingResolution": string(r.Existing.Resolution),
	}
}

// StopAfterChargeStartRule only judges stop requests. A stop at or before the
// first period would leave the charge without any period.
type StopAfterChargeStartRule struct {
	Operation domain.ChargeOperation
	Existing  *domain.Charge
}

func (r StopAfterChargeStartRule) Identifier() RuleIdentifier { return RuleStopAfterChargeStart }

func (r StopAfterChargeStartRule) IsValid() bool {
	if domain.Classify(r.Operation, r.Existing) != domain.OperationStop {
		return true
	}
	return r.Operation.StartDateTime.After(r.Existing.EffectiveFrom())
}

func (r StopAfterChargeStartRule) Parameters() map[string]string {
	return map[string]string{
		"StopDateTime":  formatTime(r.Operation.StartDateTime),
		"EffectiveFrom": formatTime(r.Existing.EffectiveFrom()),
	}
}

type ChangingTariffTaxValueNotAllowedRule struct {
	TaxIndicator bool
	Existing     *domain.Charge
}

func (r ChangingTariffTaxValueNotAllowedRule) Identifier() RuleIdentifier {
	return RuleChangingTariffTaxValueNotAllowed
}

func (r ChangingTariffTaxValueNotAllowedRule) IsValid() bool {
	return r.TaxIndicator == r.Existing.TaxIndicator
}

func (r ChangingTariffTaxValueNotAllowedRule) Parameters() map[string]string {
	return map[string]string{"TaxIndicator": strconv.FormatBool(r.TaxIndicator)}
}
