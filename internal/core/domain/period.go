package domain

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// Charge Period
// =============================================================================

// ChargePeriod is one contiguous interval of charge metadata. Periods are
// values: a change to the timeline replaces a period instead of editing it.
type ChargePeriod struct {
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	VatClassification    VatClassification `json:"vat_classification"`
	TransparentInvoicing bool              `json:"transparent_invoicing"`
	StartDateTime        time.Time         `json:"start_date_time"`
	EndDateTime          time.Time         `json:"end_date_time"`
	IsStop               bool              `json:"is_stop"`
	ReceivedAt           time.Time         `json:"received_at"`
	ReceivedOrder        int               `json:"received_order"`
}

// NewChargePeriodFromOperation builds the period an operation asks for.
// A bounded end marks the period as the charge's stop period.
func NewChargePeriodFromOperation(op ChargeOperation, receivedAt time.Time) (ChargePeriod, error) {
	p := ChargePeriod{
		Name:                 op.Name,
		Description:          op.Description,
		VatClassification:    op.VatClassification,
		TransparentInvoicing: op.TransparentInvoicing,
		StartDateTime:        op.StartDateTime.UTC(),
		EndDateTime:          op.EffectiveEnd().UTC(),
		ReceivedAt:           receivedAt.UTC(),
	}
	p.IsStop = !p.IsOpenEnded()
	if err := p.validate(); err != nil {
		return ChargePeriod{}, err
	}
	return p, nil
}

// IsOpenEnded reports whether the period has no defined end.
func (p ChargePeriod) IsOpenEnded() bool {
	return IsEndOfTime(p.EndDateTime)
}

// Contains reports whether t lies strictly inside the period.
func (p ChargePeriod) Contains(t time.Time) bool {
	return p.StartDateTime.Before(t) && p.EndDateTime.After(t)
}

func (p ChargePeriod) validate() error {
	if !p.StartDateTime.Before(p.EndDateTime) {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalidPeriod,
			p.StartDateTime.Format(time.RFC3339), p.EndDateTime.Format(time.RFC3339))
	}
	return nil
}

// withEnd returns a copy ending at end. The copy is never a stop period.
func (p ChargePeriod) withEnd(end time.Time) ChargePeriod {
	p.EndDateTime = end
	p.IsStop = false
	return p
}

// asStop returns a copy ending at end and flagged as the stop period.
func (p ChargePeriod) asStop(end time.Time) ChargePeriod {
	p.EndDateTime = end
	p.IsStop = true
	return p
}

// asReopened returns an open-ended, non-stop copy with the same content.
func (p ChargePeriod) asReopened() ChargePeriod {
	p.EndDateTime = EndOfTime
	p.IsStop = false
	return p
}

// received returns a copy stamped with a new receipt time.
func (p ChargePeriod) received(at time.Time) ChargePeriod {
	p.ReceivedAt = at.UTC()
	return p
}

// =============================================================================
// Ordering
// =============================================================================

// OrderedByReceipt returns periods sorted by receipt time, with the per-charge
// received order breaking ties.
func OrderedByReceipt(periods []ChargePeriod) []ChargePeriod {
	out := make([]ChargePeriod, len(periods))
	copy(out, periods)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ReceivedOrder < out[j].ReceivedOrder
	})
	return out
}

func sortByStart(periods []ChargePeriod) {
	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].StartDateTime.Before(periods[j].StartDateTime)
	})
}

// checkTimeline verifies that periods, sorted by start, form a gap-free and
// non-overlapping cover where only the last period may be open-ended or
// flagged as stop.
func checkTimeline(periods []ChargePeriod) error {
	if len(periods) == 0 {
		return fmt.Errorf("%w: charge has no periods", ErrTimelineInvariant)
	}
	last := len(periods) - 1
	for i, p := range periods {
		if err := p.validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrTimelineInvariant, err)
		}
		if i > 0 && !periods[i-1].EndDateTime.Equal(p.StartDateTime) {
			return fmt.Errorf("%w: period %d does not start where period %d ends", ErrTimelineInvariant, i, i-1)
		}
		if i < last && p.IsOpenEnded() {
			return fmt.Errorf("%w: only the latest period may be open-ended", ErrTimelineInvariant)
		}
		if i < last && p.IsStop {
			return fmt.Errorf("%w: only the latest period may be a stop period", ErrTimelineInvariant)
		}
	}
	if periods[last].IsStop == periods[last].IsOpenEnded() {
		return fmt.Errorf("%w: the latest period must be either open-ended or a stop period", ErrTimelineInvariant)
	}
	return nil
}
