package validation

import (
	"sort"
	"strings"
)

// =============================================================================
// Rejection Texts
// =============================================================================

type message struct {
	reasonCode string
	template   string
}

const defaultReasonCode = "E86"

var messages = map[RuleIdentifier]message{
	RuleChargeIDLength:                    {"E86", "Charge ID {{ChargeId}} must be between 1 and {{MaxLength}} characters"},
	RuleChargeOwnerIsRequired:             {"D02", "Charge owner is missing"},
	RuleChargeTypeIsKnown:                 {"E86", "Charge type {{ChargeType}} is not known"},
	RuleChargeNameHasMaximumLength:        {"E86", "Charge name exceeds the maximum length of {{MaxLength}} characters"},
	RuleChargeDescriptionHasMaximumLength: {"E86", "Charge description exceeds the maximum length of {{MaxLength}} characters"},
	RuleResolutionIsKnown:                 {"D23", "Resolution {{Resolution}} is not known"},
	RuleVatClassificationIsKnown:          {"E86", "VAT classification {{VatClassification}} is not known"},
	RuleEndDateMustNotPrecedeStartDate:    {"E86", "End date {{EndDateTime}} precedes start date {{StartDateTime}}"},
	RuleMaximumPrice:                      {"E90", "Price {{Price}} at position {{Position}} must be below {{MaxPrice}}"},
	RuleFeeMustHaveSinglePrice:            {"E87", "A fee must have exactly one price, got {{PointCount}}"},
	RuleSubscriptionMustHaveSinglePrice:   {"E87", "A subscription must have exactly one price, got {{PointCount}}"},
	RuleStartDateValidation:               {"E17", "Start date {{LocalDate}} is outside the allowed interval of {{MinDays}} to {{MaxDays}} days from today"},
	RuleChargeMustExistToBeStopped:        {"E0I", "Charge {{ChargeId}} cannot be stopped because it does not exist"},
	RuleUpdateBeforeOrOnStopDate:          {"E0H", "Effective date {{StartDateTime}} is after the stop date {{StopDateTime}}"},
	RuleChargeResolutionCanNotBeUpdated:   {"D23", "Resolution cannot change from {{ExistingResolution}} to {{Resolution}}"},
	RuleStopAfterChargeStart:              {"E0H", "Stop date {{StopDateTime}} must be after the charge start {{EffectiveFrom}}"},
	RuleChangingTariffTaxValueNotAllowed:  {"D14", "Tax indicator of a tariff cannot be changed"},
	RuleMeteringPointIDIsRequired:         {"E10", "Metering point ID is missing"},
	RuleChargeLinkFactorMustBePositive:    {"E86", "Factor {{Factor}} must be positive"},
	RuleChargeLinkStartDateIsRequired:     {"E0H", "Start date of the link is missing"},
	RuleChargeLinkEndMustFollowStart:      {"E86", "End date {{EndDateTime}} must be after start date {{StartDateTime}}"},
	RuleChargeMustExist:                   {"E0I", "Charge {{ChargeId}} owned by {{ChargeOwner}} does not exist"},
	RuleChargeLinkPeriodsMustNotOverlap:   {"E0H", "Link on metering point {{MeteringPointId}} overlaps the link from {{ConflictingStart}} to {{ConflictingEnd}}"},
	RulePreviousOperationsMustBeValid:     {"D14", "Operation {{OperationId}} was not processed because operation {{TriggeredBy}} in the same document was rejected"},
}

// ReasonCode returns the market reason code for a rule.
func ReasonCode(id RuleIdentifier) string {
	if m, ok := messages[id]; ok {
		return m.reasonCode
	}
	return defaultReasonCode
}

// Text renders the rejection text of e, filling placeholders from its
// parameters. Unknown placeholders are left as they are.
func Text(e ValidationError) string {
	m, ok := messages[e.Rule]
	if !ok {
		return string(e.Rule)
	}

	keys := make([]string, 0, len(e.Parameters))
	for k := range e.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", e.Parameters[k])
	}
	return strings.NewReplacer(pairs...).Replace(m.template)
}
