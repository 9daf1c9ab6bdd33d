package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChargeLink connects a charge to a metering point for an interval.
type ChargeLink struct {
	ID              string    `json:"id"`
	ChargeID        string    `json:"charge_id"`
	MeteringPointID string    `json:"metering_point_id"`
	Factor          int       `json:"factor"`
	StartDateTime   time.Time `json:"start_date_time"`
	EndDateTime     time.Time `json:"end_date_time"`
	OperationID     string    `json:"operation_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewChargeLink creates a link for an accepted link operation.
func NewChargeLink(op ChargeLinkOperation, chargeID string, receivedAt time.Time) (*ChargeLink, error) {
	start := op.StartDateTime.UTC()
	end := op.EffectiveEnd().UTC()
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: link %s", ErrInvalidPeriod, op.ID)
	}

	return &ChargeLink{
		ID:              uuid.New().String(),
		ChargeID:        chargeID,
		MeteringPointID: op.MeteringPointID,
		Factor:          op.Factor,
		StartDateTime:   start,
		EndDateTime:     end,
		OperationID:     op.ID,
		CreatedAt:       receivedAt.UTC(),
	}, nil
}

// Overlaps reports whether the link's right-open interval intersects [start, end).
func (l ChargeLink) Overlaps(start, end time.Time) bool {
	return l.StartDateTime.Before(end) && start.Before(l.EndDateTime)
}
