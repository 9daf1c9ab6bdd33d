package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Charge
// =============================================================================

// Charge is a priced tariff, fee or subscription owned by a market
// participant. Its periods are only changed through Update, Stop and
// CancelStop, each of which leaves the timeline a gap-free cover or fails
// without touching it.
type Charge struct {
	ID                     string     `json:"id"`
	SenderProvidedChargeID string     `json:"charge_id"`
	OwnerID                string     `json:"owner_id"`
	Type                   ChargeType `json:"charge_type"`
	Resolution             Resolution `json:"resolution"`
	TaxIndicator           bool       `json:"tax_indicator"`
	TransparentInvoicing   bool       `json:"transparent_invoicing"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`

	periods   []ChargePeriod
	points    []Point
	version   int
	nextOrder int
}

// NewCharge creates a charge from its first operation.
func NewCharge(op ChargeOperation, receivedAt time.Time) (*Charge, error) {
	period, err := NewChargePeriodFromOperation(op, receivedAt)
	if err != nil {
		return nil, err
	}

	now := receivedAt.UTC()
	c := &Charge{
		ID:                     uuid.New().String(),
		SenderProvidedChargeID: op.ChargeID,
		OwnerID:                op.ChargeOwner,
		Type:                   op.Type,
		Resolution:             op.Resolution,
		TaxIndicator:           op.TaxIndicator,
		TransparentInvoicing:   op.TransparentInvoicing,
		CreatedAt:              now,
		UpdatedAt:              now,
		points:                 copyPoints(op.Points),
	}
	if err := c.commit([]ChargePeriod{c.stamp(period)}); err != nil {
		return nil, err
	}
	return c, nil
}

// Key returns the charge's business key.
func (c *Charge) Key() BusinessKey {
	return BusinessKey{ChargeID: c.SenderProvidedChargeID, OwnerID: c.OwnerID, Type: c.Type}
}

// Periods returns a copy of the periods ordered by start.
func (c *Charge) Periods() []ChargePeriod {
	out := make([]ChargePeriod, len(c.periods))
	copy(out, c.periods)
	return out
}

// Points returns a copy of the price points.
func (c *Charge) Points() []Point {
	return copyPoints(c.points)
}

// Version is the persisted version the charge was loaded with.
func (c *Charge) Version() int {
	return c.version
}

// LatestPeriod returns the period with the latest start.
func (c *Charge) LatestPeriod() ChargePeriod {
	return c.periods[len(c.periods)-1]
}

// StopPeriod returns the period flagged as stop, if any.
func (c *Charge) StopPeriod() (ChargePeriod, bool) {
	for _, p := range c.periods {
		if p.IsStop {
			return p, true
		}
	}
	return ChargePeriod{}, false
}

// EffectiveFrom returns the start of the earliest period.
func (c *Charge) EffectiveFrom() time.Time {
	return c.periods[0].StartDateTime
}

// =============================================================================
// Timeline Mutation
// =============================================================================

// Update inserts p as the new latest period. Periods starting at or after
// p's start are discarded, and a period straddling that start is cut there.
// Points at or after the start are replaced when points are given.
func (c *Charge) Update(p ChargePeriod, points []Point) error {
	if err := p.validate(); err != nil {
		return err
	}

	next := removePeriodsFrom(c.periods, p.StartDateTime)
	for i, existing := range next {
		if existing.Contains(p.StartDateTime) {
			next[i] = existing.withEnd(p.StartDateTime)
		}
	}
	next = append(next, c.stamp(p))

	if err := c.commit(next); err != nil {
		return err
	}
	if len(points) > 0 {
		c.points = append(removePointsFrom(c.points, p.StartDateTime), copyPoints(points)...)
	}
	c.UpdatedAt = p.ReceivedAt
	return nil
}

// Stop ends the charge at end. The period covering end becomes the stop
// period and everything after end is discarded.
func (c *Charge) Stop(end, receivedAt time.Time) error {
	end = end.UTC()
	idx := -1
	for i, p := range c.periods {
		if p.StartDateTime.Before(end) && !p.EndDateTime.Before(end) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNoOpenPeriod, end.Format(time.RFC3339))
	}

	stopped := c.stamp(c.periods[idx].asStop(end).received(receivedAt))
	next := replacePeriod(removePeriodsFrom(c.periods, end), idx, stopped)

	if err := c.commit(next); err != nil {
		return err
	}
	c.points = removePointsFrom(c.points, end)
	c.UpdatedAt = receivedAt.UTC()
	return nil
}

// CancelStop reopens the charge by replacing its stop period with an
// open-ended copy of the same content.
func (c *Charge) CancelStop(receivedAt time.Time) error {
	var stops []ChargePeriod
	for _, p := range OrderedByReceipt(c.periods) {
		if p.IsStop {
			stops = append(stops, p)
		}
	}
	if len(stops) != 1 {
		return fmt.Errorf("%w: found %d", ErrInvalidCancelStop, len(stops))
	}

	idx := indexByOrder(c.periods, stops[0].ReceivedOrder)
	reopened := c.stamp(stops[0].asReopened().received(receivedAt))
	if err := c.commit(replacePeriod(c.periods, idx, reopened)); err != nil {
		return err
	}
	c.UpdatedAt = receivedAt.UTC()
	return nil
}

// =============================================================================
// Period Collection Helpers
// =============================================================================

// stamp assigns the next received order of this charge.
func (c *Charge) stamp(p ChargePeriod) ChargePeriod {
	p.ReceivedOrder = c.nextOrder
	return p
}

// commit installs next as the timeline if it satisfies the invariant.
func (c *Charge) commit(next []ChargePeriod) error {
	sortByStart(next)
	if err := checkTimeline(next); err != nil {
		return err
	}
	c.periods = next
	c.nextOrder++
	return nil
}

// removePeriodsFrom returns a new slice without periods starting at or after t.
func removePeriodsFrom(periods []ChargePeriod, t time.Time) []ChargePeriod {
	out := make([]ChargePeriod, 0, len(periods)+1)
	for _, p := range periods {
		if p.StartDateTime.Before(t) {
			out = append(out, p)
		}
	}
	return out
}

// replacePeriod returns a copy of periods with the element at idx replaced.
// idx refers to the sorted order, which removePeriodsFrom preserves for every
// period that starts before the cut.
func replacePeriod(periods []ChargePeriod, idx int, p ChargePeriod) []ChargePeriod {
	out := make([]ChargePeriod, len(periods))
	copy(out, periods)
	out[idx] = p
	return out
}

func indexByOrder(periods []ChargePeriod, order int) int {
	for i, p := range periods {
		if p.ReceivedOrder == order {
			return i
		}
	}
	return -1
}

func removePointsFrom(points []Point, t time.Time) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Time.Before(t) {
			out = append(out, p)
		}
	}
	return out
}

func copyPoints(points []Point) []Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]Point, len(points))
	copy(out, points)
	return out
}

// =============================================================================
// Persistence Snapshot
// =============================================================================

// ChargeState is the full state of a charge as stored.
type ChargeState struct {
	ID                     string
	SenderProvidedChargeID string
	OwnerID                string
	Type                   ChargeType
	Resolution             Resolution
	TaxIndicator           bool
	TransparentInvoicing   bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
	Periods                []ChargePeriod
	Points                 []Point
	Version                int
}

// State returns a snapshot of the charge for persistence.
func (c *Charge) State() ChargeState {
	return ChargeState{
		ID:                     c.ID,
		SenderProvidedChargeID: c.SenderProvidedChargeID,
		OwnerID:                c.OwnerID,
		Type:                   c.Type,
		Resolution:             c.Resolution,
		TaxIndicator:           c.TaxIndicator,
		TransparentInvoicing:   c.TransparentInvoicing,
		CreatedAt:              c.CreatedAt,
		UpdatedAt:              c.UpdatedAt,
		Periods:                c.Periods(),
		Points:                 c.Points(),
		Version:                c.version,
	}
}

// RestoreCharge rebuilds a charge from stored state, checking the timeline.
func RestoreCharge(s ChargeState) (*Charge, error) {
	periods := make([]ChargePeriod, len(s.Periods))
	copy(periods, s.Periods)
	sortByStart(periods)
	if err := checkTimeline(periods); err != nil {
		return nil, fmt.Errorf("restore charge %s: %w", s.ID, err)
	}

	nextOrder := 0
	for _, p := range periods {
		if p.ReceivedOrder >= nextOrder {
			nextOrder = p.ReceivedOrder + 1
		}
	}

	return &Charge{
		ID:                     s.ID,
		SenderProvidedChargeID: s.SenderProvidedChargeID,
		OwnerID:                s.OwnerID,
		Type:                   s.Type,
		Resolution:             s.Resolution,
		TaxIndicator:           s.TaxIndicator,
		TransparentInvoicing:   s.TransparentInvoicing,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
		periods:                periods,
		points:                 copyPoints(s.Points),
		version:                s.Version,
		nextOrder:              nextOrder,
	}, nil
}

// MarkPersisted records the version the store assigned after a save.
func (c *Charge) MarkPersisted(version int) {
	c.version = version
}
