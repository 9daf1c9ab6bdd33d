package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Document
// =============================================================================

// Document is the envelope of an inbound market message.
type Document struct {
	ID                 string                `json:"id"`
	BusinessReasonCode string                `json:"business_reason_code,omitempty"`
	SenderID           string                `json:"sender_id"`
	SenderRole         MarketParticipantRole `json:"sender_role"`
	RecipientID        string                `json:"recipient_id,omitempty"`
	RecipientRole      MarketParticipantRole `json:"recipient_role,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
}

func (d Document) validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidCommand)
	}
	if d.SenderID == "" {
		return fmt.Errorf("%w: document sender is required", ErrInvalidCommand)
	}
	return nil
}

// =============================================================================
// Charge Operation
// =============================================================================

// Point is one price of a charge.
type Point struct {
	Position int             `json:"position"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
}

// ChargeOperation requests a create, update, stop or cancel-stop of a charge.
// The kind of change is not stated explicitly; see Classify.
type ChargeOperation struct {
	ID                   string            `json:"id"`
	ChargeID             string            `json:"charge_id"`
	ChargeOwner          string            `json:"charge_owner"`
	Type                 ChargeType        `json:"charge_type"`
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	Resolution           Resolution        `json:"resolution"`
	TaxIndicator         bool              `json:"tax_indicator"`
	TransparentInvoicing bool              `json:"transparent_invoicing"`
	VatClassification    VatClassification `json:"vat_classification"`
	StartDateTime        time.Time         `json:"start_date_time"`
	EndDateTime          time.Time         `json:"end_date_time,omitzero"`
	Points               []Point           `json:"points,omitempty"`
}

// Key returns the business key the operation targets.
func (o ChargeOperation) Key() BusinessKey {
	return BusinessKey{ChargeID: o.ChargeID, OwnerID: o.ChargeOwner, Type: o.Type}
}

// EffectiveEnd returns the operation end, or EndOfTime when none was given.
func (o ChargeOperation) EffectiveEnd() time.Time {
	if o.EndDateTime.IsZero() {
		return EndOfTime
	}
	return o.EndDateTime
}

// ChargeCommand is an ordered bundle of charge operations from one document.
type ChargeCommand struct {
	Document   Document          `json:"document"`
	Operations []ChargeOperation `json:"operations"`
}

// Validate checks the structural preconditions of the processor. A failure
// is a contract violation, not a market rejection.
func (c ChargeCommand) Validate() error {
	if err := c.Document.validate(); err != nil {
		return err
	}
	if len(c.Operations) == 0 {
		return fmt.Errorf("%w: command has no operations", ErrInvalidCommand)
	}
	for i, op := range c.Operations {
		if op.ID == "" {
			return fmt.Errorf("%w: operation %d has no id", ErrInvalidCommand, i)
		}
	}
	return nil
}

// =============================================================================
// Charge Link Operation
// =============================================================================

// ChargeLinkOperation requests a link between a charge and a metering point.
type ChargeLinkOperation struct {
	ID              string     `json:"id"`
	MeteringPointID string     `json:"metering_point_id"`
	ChargeID        string     `json:"charge_id"`
	ChargeOwner     string     `json:"charge_owner"`
	ChargeType      ChargeType `json:"charge_type"`
	Factor          int        `json:"factor"`
	StartDateTime   time.Time  `json:"start_date_time"`
	EndDateTime     time.Time  `json:"end_date_time,omitzero"`
}

// ChargeKey returns the business key of the linked charge.
func (o ChargeLinkOperation) ChargeKey() BusinessKey {
	return BusinessKey{ChargeID: o.ChargeID, OwnerID: o.ChargeOwner, Type: o.ChargeType}
}

// EffectiveEnd returns the link end, or EndOfTime when none was given.
func (o ChargeLinkOperation) EffectiveEnd() time.Time {
	if o.EndDateTime.IsZero() {
		return EndOfTime
	}
	return o.EndDateTime
}

// ChargeLinksCommand is an ordered bundle of link operations from one document.
type ChargeLinksCommand struct {
	Document   Document              `json:"document"`
	Operations []ChargeLinkOperation `json:"operations"`
}

// Validate checks the structural preconditions of the processor.
func (c ChargeLinksCommand) Validate() error {
	if err := c.Document.validate(); err != nil {
		return err
	}
	if len(c.Operations) == 0 {
		return fmt.Errorf("%w: command has no operations", ErrInvalidCommand)
	}
	for i, op := range c.Operations {
		if op.ID == "" {
			return fmt.Errorf("%w: operation %d has no id", ErrInvalidCommand, i)
		}
	}
	return nil
}
