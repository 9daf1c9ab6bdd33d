package validation

import (
	"strconv"
	"time"

	"github.com/artpar/charges/internal/core/domain"
)

// =============================================================================
// Charge Link Input Rules
// =============================================================================

type MeteringPointIDIsRequiredRule struct{ MeteringPointID string }

func (r MeteringPointIDIsRequiredRule) Identifier() RuleIdentifier {
	return RuleMeteringPointIDIsRequired
}
func (r MeteringPointIDIsRequiredRule) IsValid() bool { return r.MeteringPointID != "" }
func (r MeteringPointIDIsRequiredRule) Parameters() map[string]string {
	return map[string]string{}
}

type ChargeLinkFactorMustBePositiveRule struct{ Factor int }

func (r ChargeLinkFactorMustBePositiveRule) Identifier() RuleIdentifier {
	return RuleChargeLinkFactorMustBePositive
}
func (r ChargeLinkFactorMustBePositiveRule) IsValid() bool { return r.Factor > 0 }
func (r ChargeLinkFactorMustBePositiveRule) Parameters() map[string]string {
	return map[string]string{"Factor": strconv.Itoa(r.Factor)}
}

type ChargeLinkStartDateIsRequiredRule struct{ Start time.Time }

func (r ChargeLinkStartDateIsRequiredRule) Identifier() RuleIdentifier {
	return RuleChargeLinkStartDateIsRequired
}
func (r ChargeLinkStartDateIsRequiredRule) IsValid() bool { return !r.Start.IsZero() }
func (r ChargeLinkStartDateIsRequiredRule) Parameters() map[string]string {
	return map[string]string{}
}

// ChargeLinkEndMustFollowStartRule is strict: links have no stop encoding.
type ChargeLinkEndMustFollowStartRule struct {
	Start time.Time
	End   time.Time
}

func (r ChargeLinkEndMustFollowStartRule) Identifier() RuleIdentifier {
	return RuleChargeLinkEndMustFollowStart
}
func (r ChargeLinkEndMustFollowStartRule) IsValid() bool { return r.Start.Before(r.End) }
func (r ChargeLinkEndMustFollowStartRule) Parameters() map[string]string {
	return map[string]string{"StartDateTime": formatTime(r.Start), "EndDateTime": formatTime(r.End)}
}

// =============================================================================
// Charge Link Business Rules
// =============================================================================

type ChargeMustExistRule struct {
	Key    domain.BusinessKey
	Exists bool
}

func (r ChargeMustExistRule) Identifier() RuleIdentifier { return RuleChargeMustExist }
func (r ChargeMustExistRule) IsValid() bool              { return r.Exists }
func (r ChargeMustExistRule) Parameters() map[string]string {
	return map[string]string{"ChargeId": r.Key.ChargeID, "ChargeOwner": r.Key.OwnerID}
}

// ChargeLinkPeriodsMustNotOverlapRule checks the new link against the links
// the same charge already has on the same metering point.
type ChargeLinkPeriodsMustNotOverlapRule struct {
	Operation domain.ChargeLinkOperation
	Existing  []domain.ChargeLink
}

func (r ChargeLinkPeriodsMustNotOverlapRule) Identifier() RuleIdentifier {
	return RuleChargeLinkPeriodsMustNotOverlap
}

func (r ChargeLinkPeriodsMustNotOverlapRule) IsValid() bool {
	_, found := r.conflict()
	return !found
}

func (r ChargeLinkPeriodsMustNotOverlapRule) Parameters() map[string]string {
	params := map[string]string{"MeteringPointId": r.Operation.MeteringPointID}
	if l, ok := r.conflict(); ok {
		params["ConflictingStart"] = formatTime(l.StartDateTime)
		params["ConflictingEnd"] = formatTime(l.EndDateTime)
	}
	return params
}

func (r ChargeLinkPeriodsMustNotOverlapRule) conflict() (domain.ChargeLink, bool) {
	start, end := r.Operation.StartDateTime, r.Operation.EffectiveEnd()
	for _, l := range r.Existing {
		if l.MeteringPointID == r.Operation.MeteringPointID && l.Overlaps(start, end) {
			return l, true
		}
	}
	return domain.ChargeLink{}, false
}

// =============================================================================
// Bundle Rule
// =============================================================================

// PreviousOperationsMustBeValidRule always fails. It rejects operations that
// follow a rejected operation in the same bundle.
type PreviousOperationsMustBeValidRule struct {
	TriggeredBy string
	OperationID string
}

func (r PreviousOperationsMustBeValidRule) Identifier() RuleIdentifier {
	return RulePreviousOperationsMustBeValid
}
func (r PreviousOperationsMustBeValidRule) IsValid() bool { return false }
func (r PreviousOperationsMustBeValidRule) Parameters() map[string]string {
	return map[string]string{"TriggeredBy": r.TriggeredBy, "OperationId": r.OperationID}
}
