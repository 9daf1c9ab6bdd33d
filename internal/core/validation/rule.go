package validation

// =============================================================================
// Rule Identifiers
// =============================================================================

// RuleIdentifier is the stable name of a validation rule. Receipts carry it so
// that downstream systems can translate rejections.
type RuleIdentifier string

const (
	RuleChargeIDLength                    RuleIdentifier = "ChargeIdLengthValidation"
	RuleChargeOwnerIsRequired             RuleIdentifier = "ChargeOwnerIsRequiredValidation"
	RuleChargeTypeIsKnown                 RuleIdentifier = "ChargeTypeIsKnownValidation"
	RuleChargeNameHasMaximumLength        RuleIdentifier = "ChargeNameHasMaximumLength"
	RuleChargeDescriptionHasMaximumLength RuleIdentifier = "ChargeDescriptionHasMaximumLength"
	RuleResolutionIsKnown                 RuleIdentifier = "ResolutionIsKnownValidation"
	RuleVatClassificationIsKnown          RuleIdentifier = "VatClassificationValidation"
	RuleEndDateMustNotPrecedeStartDate    RuleIdentifier = "EndDateMustNotPrecedeStartDate"
	RuleMaximumPrice                      RuleIdentifier = "MaximumPrice"
	RuleFeeMustHaveSinglePrice            RuleIdentifier = "FeeMustHaveSinglePrice"
	RuleSubscriptionMustHaveSinglePrice   RuleIdentifier = "SubscriptionMustHaveSinglePrice"
	RuleStartDateValidation               RuleIdentifier = "StartDateValidation"
	RuleChargeMustExistToBeStopped        RuleIdentifier = "ChargeMustExistToBeStopped"
	RuleUpdateBeforeOrOnStopDate          RuleIdentifier = "UpdateChargeMustHaveEffectiveDateBeforeOrOnStopDate"
	RuleChargeResolutionCanNotBeUpdated   RuleIdentifier = "ChargeResolutionCanNotBeUpdated"
	RuleStopAfterChargeStart              RuleIdentifier = "StopChargeMustHaveEffectiveDateAfterChargeStart"
	RuleChangingTariffTaxValueNotAllowed  RuleIdentifier = "ChangingTariffTaxValueNotAllowed"
	RuleMeteringPointIDIsRequired         RuleIdentifier = "MeteringPointIdIsRequired"
	RuleChargeLinkFactorMustBePositive    RuleIdentifier = "ChargeLinkFactorMustBePositive"
	RuleChargeLinkStartDateIsRequired     RuleIdentifier = "ChargeLinkStartDateIsRequired"
	RuleChargeLinkEndMustFollowStart      RuleIdentifier = "ChargeLinkEndDateMustFollowStartDate"
	RuleChargeMustExist                   RuleIdentifier = "ChargeMustExist"
	RuleChargeLinkPeriodsMustNotOverlap   RuleIdentifier = "ChargeLinkPeriodsMustNotOverlap"
	RulePreviousOperationsMustBeValid     RuleIdentifier = "PreviousOperationsMustBeValid"
)

// =============================================================================
// Rule
// =============================================================================

// Rule is one check that has already been bound to the data it judges.
type Rule interface {
	Identifier() RuleIdentifier
	IsValid() bool
	// Parameters returns the values used to render the rejection text.
	Parameters() map[string]string
}

// =============================================================================
// Result
// =============================================================================

// ValidationError is one failed rule.
type ValidationError struct {
	Rule       RuleIdentifier
	Parameters map[string]string
}

// Result is the outcome of validating one rule set. The zero value is a
// successful result.
type Result struct {
	errors []ValidationError
}

// Success returns a result without errors.
func Success() Result {
	return Result{}
}

// Failure returns a result holding the given errors.
func Failure(errs ...ValidationError) Result {
	out := make([]ValidationError, len(errs))
	copy(out, errs)
	return Result{errors: out}
}

// IsValid reports whether every rule passed.
func (r Result) IsValid() bool {
	return len(r.errors) == 0
}

// Errors returns a copy of the failed rules in evaluation order.
func (r Result) Errors() []ValidationError {
	out := make([]ValidationError, len(r.errors))
	copy(out, r.errors)
	return out
}

// =============================================================================
// Rule Set
// =============================================================================

// RuleSet is an ordered, immutable collection of rules.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet creates a rule set evaluated in the given order.
func NewRuleSet(rules ...Rule) RuleSet {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return RuleSet{rules: out}
}

// Rules returns a copy of the rules in evaluation order.
func (s RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Identifiers lists the identifiers of the rules in evaluation order.
func (s RuleSet) Identifiers() []RuleIdentifier {
	ids := make([]RuleIdentifier, len(s.rules))
	for i, r := range s.rules {
		ids[i] = r.Identifier()
	}
	return ids
}

// Validate evaluates every rule. It does not stop at the first failure.
func (s RuleSet) Validate() Result {
	var errs []ValidationError
	for _, r := range s.rules {
		if !r.IsValid() {
			errs = append(errs, ValidationError{Rule: r.Identifier(), Parameters: r.Parameters()})
		}
	}
	return Result{errors: errs}
}
