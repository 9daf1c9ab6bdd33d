package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Time Sentinels
// =============================================================================

// EndOfTime marks a period or link without a defined end.
var EndOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// IsEndOfTime reports whether t is the open-ended sentinel.
func IsEndOfTime(t time.Time) bool {
	return t.Equal(EndOfTime)
}

// =============================================================================
// Charge Type
// =============================================================================

type ChargeType string

const (
	ChargeTypeSubscription ChargeType = "subscription"
	ChargeTypeFee          ChargeType = "fee"
	ChargeTypeTariff       ChargeType = "tariff"
)

// IsKnown reports whether the charge type is one of the defined types.
func (t ChargeType) IsKnown() bool {
	switch t {
	case ChargeTypeSubscription, ChargeTypeFee, ChargeTypeTariff:
		return true
	default:
		return false
	}
}

// =============================================================================
// Resolution
// =============================================================================

type Resolution string

const (
	ResolutionQuarterHourly Resolution = "PT15M"
	ResolutionHourly        Resolution = "PT1H"
	ResolutionDaily         Resolution = "P1D"
)

// IsKnown reports whether the resolution is one of the defined resolutions.
func (r Resolution) IsKnown() bool {
	switch r {
	case ResolutionQuarterHourly, ResolutionHourly, ResolutionDaily:
		return true
	default:
		return false
	}
}

// =============================================================================
// VAT Classification
// =============================================================================

type VatClassification string

const (
	VatClassificationNoVat VatClassification = "no_vat"
	VatClassificationVat25 VatClassification = "vat25"
)

func (v VatClassification) IsKnown() bool {
	return v == VatClassificationNoVat || v == VatClassificationVat25
}

// =============================================================================
// Market Participants
// =============================================================================

// MarketParticipantRole is the business process role of a sender or recipient.
type MarketParticipantRole string

const (
	RoleGridAccessProvider         MarketParticipantRole = "grid_access_provider"
	RoleSystemOperator             MarketParticipantRole = "system_operator"
	RoleEnergySupplier             MarketParticipantRole = "energy_supplier"
	RoleMeteringPointAdministrator MarketParticipantRole = "metering_point_administrator"
)

// =============================================================================
// Business Key
// =============================================================================

// BusinessKey identifies a charge independently of its generated ID.
type BusinessKey struct {
	ChargeID string     `json:"charge_id"`
	OwnerID  string     `json:"owner_id"`
	Type     ChargeType `json:"charge_type"`
}

func (k BusinessKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.OwnerID, k.Type, k.ChargeID)
}
