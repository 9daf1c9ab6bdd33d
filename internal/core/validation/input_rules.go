package validation

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/artpar/charges/internal/core/domain"
)

const (
	MaxChargeIDLength          = 10
	MaxChargeNameLength        = 132
	MaxChargeDescriptionLength = 2048
)

// MaxPrice is the exclusive upper bound of a single price point.
var MaxPrice = decimal.NewFromInt(1_000_000)

// =============================================================================
// Charge Input Rules
// =============================================================================

type ChargeIDLengthRule struct{ ChargeID string }

func (r ChargeIDLengthRule) Identifier() RuleIdentifier { return RuleChargeIDLength }

func (r ChargeIDLengthRule) IsValid() bool {
	n := utf8.RuneCountInString(r.ChargeID)
	return n >= 1 && n <= MaxChargeIDLength
}

func (r ChargeIDLengthRule) Parameters() map[string]string {
	return map[string]string{"ChargeId": r.ChargeID, "MaxLength": strconv.Itoa(MaxChargeIDLength)}
}

type ChargeOwnerIsRequiredRule struct{ ChargeOwner string }

func (r ChargeOwnerIsRequiredRule) Identifier() RuleIdentifier { return RuleChargeOwnerIsRequired }
func (r ChargeOwnerIsRequiredRule) IsValid() bool              { return r.ChargeOwner != "" }
func (r ChargeOwnerIsRequiredRule) Parameters() map[string]string {
	return map[string]string{}
}

type ChargeTypeIsKnownRule struct{ Type domain.ChargeType }

func (r ChargeTypeIsKnownRule) Identifier() RuleIdentifier { return RuleChargeTypeIsKnown }
func (r ChargeTypeIsKnownRule) IsValid() bool              { return r.Type.IsKnown() }
func (r ChargeTypeIsKnownRule) Parameters() map[string]string {
	return map[string]string{"ChargeType": string(r.Type)}
}

type ChargeNameHasMaximumLengthRule struct{ Name string }

func (r ChargeNameHasMaximumLengthRule) Identifier() RuleIdentifier {
	return RuleChargeNameHasMaximumLength
}

func (r ChargeNameHasMaximumLengthRule) IsValid() bool {
	return utf8.RuneCountInString(r.Name) <= MaxChargeNameLength
}

func (r ChargeNameHasMaximumLengthRule) Parameters() map[string]string {
	return map[string]string{"MaxLength": strconv.Itoa(MaxChargeNameLength)}
}

type ChargeDescriptionHasMaximumLengthRule struct{ Description string }

func (r ChargeDescriptionHasMaximumLengthRule) Identifier() RuleIdentifier {
	return RuleChargeDescriptionHasMaximumLength
}

func (r ChargeDescriptionHasMaximumLengthRule) IsValid() bool {
	return utf8.RuneCountInString(r.Description) <= MaxChargeDescriptionLength
}

func (r ChargeDescriptionHasMaximumLengthRule) Parameters() map[string]string {
	return map[string]string{"MaxLength": strconv.Itoa(MaxChargeDescriptionLength)}
}

type ResolutionIsKnownRule struct{ Resolution domain.Resolution }

func (r ResolutionIsKnownRule) Identifier() RuleIdentifier { return RuleResolutionIsKnown }
func (r ResolutionIsKnownRule) IsValid() bool              { return r.Resolution.IsKnown() }
func (r ResolutionIsKnownRule) Parameters() map[string]string {
	return map[string]string{"Resolution": string(r.Resolution)}
}

type VatClassificationIsKnownRule struct {
	VatClassification domain.VatClassification
}

func (r VatClassificationIsKnownRule) Identifier() RuleIdentifier {
	return RuleVatClassificationIsKnown
}
func (r VatClassificationIsKnownRule) IsValid() bool { return r.VatClassification.IsKnown() }
func (r VatClassificationIsKnownRule) Parameters() map[string]string {
	return map[string]string{"VatClassification": string(r.VatClassification)}
}

// EndDateMustNotPrecedeStartDateRule allows an equal start and end, which is
// how a stop is requested.
type EndDateMustNotPrecedeStartDateRule struct {
	Start time.Time
	End   time.Time
}

func (r EndDateMustNotPrecedeStartDateRule) Identifier() RuleIdentifier {
	return RuleEndDateMustNotPrecedeStartDate
}

func (r EndDateMustNotPrecedeStartDateRule) IsValid() bool {
	return !r.End.Before(r.Start)
}

func (r EndDateMustNotPrecedeStartDateRule) Parameters() map[string]string {
	return map[string]string{"StartDateTime": formatTime(r.Start), "EndDateTime": formatTime(r.End)}
}

type MaximumPriceRule struct{ Points []domain.Point }

func (r MaximumPriceRule) Identifier() RuleIdentifier { return RuleMaximumPrice }

func (r MaximumPriceRule) IsValid() bool {
	_, found := r.offending()
	return !found
}

func (r MaximumPriceRule) Parameters() map[string]string {
	p, _ := r.offending()
	return map[string]string{
		"Position": strconv.Itoa(p.Position),
		"Price":    p.Price.String(),
		"MaxPrice": MaxPrice.String(),
	}
}

func (r MaximumPriceRule) offending() (domain.Point, bool) {
	for _, p := range r.Points {
		if p.Price.GreaterThanOrEqual(MaxPrice) {
			return p, true
		}
	}
	return domain.Point{}, false
}

// SinglePriceRule requires exactly one price point on fees and subscriptions.
// A stop request (zero-length window) carries no prices and is exempt.
type SinglePriceRule struct {
	Type       domain.ChargeType
	PointCount int
	IsStop     bool
}

func (r SinglePriceRule) Identifier() RuleIdentifier {
	if r.Type == domain.ChargeTypeSubscription {
		return RuleSubscriptionMustHaveSinglePrice
	}
	return RuleFeeMustHaveSinglePrice
}

func (r SinglePriceRule) IsValid() bool {
	return r.IsStop || r.PointCount == 1
}

func (r SinglePriceRule) Parameters() map[string]string {
	return map[string]string{"PointCount": strconv.Itoa(r.PointCount)}
}

func formatTime(t time.Time) string {
	if domain.IsEndOfTime(t) {
		return "none"
	}
	return t.UTC().Format(time.RFC3339)
}
