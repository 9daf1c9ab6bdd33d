package validation

import (
	"time"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
)

// =============================================================================
// Charge Rule Factories
// =============================================================================

// InputRules returns the rules judging the operation on its own.
func InputRules(op domain.ChargeOperation) RuleSet {
	rules := []Rule{
		ChargeIDLengthRule{ChargeID: op.ChargeID},
		ChargeOwnerIsRequiredRule{ChargeOwner: op.ChargeOwner},
		ChargeTypeIsKnownRule{Type: op.Type},
		ChargeNameHasMaximumLengthRule{Name: op.Name},
		ChargeDescriptionHasMaximumLengthRule{Description: op.Description},
		ResolutionIsKnownRule{Resolution: op.Resolution},
		VatClassificationIsKnownRule{VatClassification: op.VatClassification},
		EndDateMustNotPrecedeStartDateRule{Start: op.StartDateTime, End: op.EffectiveEnd()},
		MaximumPriceRule{Points: op.Points},
	}

	switch op.Type {
	case domain.ChargeTypeFee, domain.ChargeTypeSubscription:
		rules = append(rules, SinglePriceRule{
			Type:       op.Type,
			PointCount: len(op.Points),
			IsStop:     op.StartDateTime.Equal(op.EffectiveEnd()),
		})
	}

	return NewRuleSet(rules...)
}

// BusinessContext is everything the business rules may consult.
type BusinessContext struct {
	Operation domain.ChargeOperation
	// Existing is the charge as it stands after earlier operations of the
	// same bundle, or nil when no charge has the operation's business key.
	Existing *domain.Charge
	Config   RulesConfiguration
	Now      time.Time
	Zone     localtime.Zone
}

// BusinessRules returns the rules for the operation, which differ by whether
// the charge exists and by charge type.
func BusinessRules(ctx BusinessContext) RuleSet {
	op := ctx.Operation
	rules := []Rule{
		StartDateRule{
			Start:    op.StartDateTime,
			Now:      ctx.Now,
			Zone:     ctx.Zone,
			Interval: ctx.Config.StartDateInterval,
		},
	}

	if ctx.Existing == nil {
		rules = append(rules, ChargeMustExistToBeStoppedRule{Operation: op})
		return NewRuleSet(rules...)
	}

	rules = append(rules,
		UpdateBeforeOrOnStopDateRule{Start: op.StartDateTime, Existing: ctx.Existing},
		ChargeResolutionCanNotBeUpdatedRule{Resolution: op.Resolution, Existing: ctx.Existing},
		StopAfterChargeStartRule{Operation: op, Existing: ctx.Existing},
	)
	if op.Type == domain.ChargeTypeTariff {
		rules = append(rules, ChangingTariffTaxValueNotAllowedRule{
			TaxIndicator: op.TaxIndicator,
			Existing:     ctx.Existing,
		})
	}

	return NewRuleSet(rules...)
}

// =============================================================================
// Charge Link Rule Factories
// =============================================================================

// LinkInputRules returns the rules judging a link operation on its own.
func LinkInputRules(op domain.ChargeLinkOperation) RuleSet {
	return NewRuleSet(
		MeteringPointIDIsRequiredRule{MeteringPointID: op.MeteringPointID},
		ChargeLinkFactorMustBePositiveRule{Factor: op.Factor},
		ChargeLinkStartDateIsRequiredRule{Start: op.StartDateTime},
		ChargeLinkEndMustFollowStartRule{Start: op.StartDateTime, End: op.EffectiveEnd()},
	)
}

// LinkBusinessContext is everything the link business rules may consult.
type LinkBusinessContext struct {
	Operation domain.ChargeLinkOperation
	Charge    *domain.Charge
	// Existing holds persisted links plus links accepted earlier in the bundle.
	Existing []domain.ChargeLink
}

// LinkBusinessRules returns the link rules. Overlap is only checked when the
// charge exists.
func LinkBusinessRules(ctx LinkBusinessContext) RuleSet {
	exists := ctx.Charge != nil
	rules := []Rule{ChargeMustExistRule{Key: ctx.Operation.ChargeKey(), Exists: exists}}
	if exists {
		rules = append(rules, ChargeLinkPeriodsMustNotOverlapRule{
			Operation: ctx.Operation,
			Existing:  ctx.Existing,
		})
	}
	return NewRuleSet(rules...)
}

// PreviousOperationFailed is the result given to operations after a bundle
// has been poisoned by triggeredBy.
func PreviousOperationFailed(triggeredBy, operationID string) Result {
	return NewRuleSet(PreviousOperationsMustBeValidRule{
		TriggeredBy: triggeredBy,
		OperationID: operationID,
	}).Validate()
}
