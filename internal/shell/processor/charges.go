package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/charges/internal/core/bundle"
	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/validation"
	"github.com/artpar/charges/internal/shell/metrics"
	"github.com/artpar/charges/internal/shell/store"
)

// =============================================================================
// Charge Processor
// =============================================================================

// ChargeProcessor handles charge commands.
type ChargeProcessor struct {
	deps Deps
}

// NewChargeProcessor creates a charge processor.
func NewChargeProcessor(deps Deps) *ChargeProcessor {
	deps = deps.withDefaults()
	deps.Logger = deps.Logger.With("component", "charge_processor")
	return &ChargeProcessor{deps: deps}
}

// chargeWork tracks the charges a bundle touches, in first-touch order.
type chargeWork struct {
	loaded  map[domain.BusinessKey]*domain.Charge
	created map[domain.BusinessKey]bool
	dirty   []domain.BusinessKey
	isDirty map[domain.BusinessKey]bool
}

func newChargeWork() *chargeWork {
	return &chargeWork{
		loaded:  make(map[domain.BusinessKey]*domain.Charge),
		created: make(map[domain.BusinessKey]bool),
		isDirty: make(map[domain.BusinessKey]bool),
	}
}

func (w *chargeWork) touch(key domain.BusinessKey) {
	if !w.isDirty[key] {
		w.isDirty[key] = true
		w.dirty = append(w.dirty, key)
	}
}

// Process runs cmd as one bundle. receivedAt is when the command arrived and
// stamps every period the bundle creates.
//
// A malformed command, a mutation that breaks the timeline or a persistence
// failure returns an error and sends no receipts. ErrDelivery means the
// bundle was committed but not every receipt went out.
func (p *ChargeProcessor) Process(ctx context.Context, cmd domain.ChargeCommand, receivedAt time.Time) (*Outcome, error) {
	return p.ProcessCommand(ctx, "", cmd, receivedAt)
}

// ProcessCommand is Process for a command taken from the inbox. The inbox
// entry commandID is marked processed in the transaction that commits the
// bundle.
func (p *ChargeProcessor) ProcessCommand(ctx context.Context, commandID string, cmd domain.ChargeCommand, receivedAt time.Time) (*Outcome, error) {
	started := time.Now()
	outcome, err := p.process(ctx, commandID, cmd, receivedAt)
	switch {
	case err == nil:
		p.deps.Metrics.ObserveBundle(string(domain.ReceiptKindCharge), metrics.OutcomeCommitted, started)
	case errors.Is(err, domain.ErrInvalidCommand), errors.Is(err, domain.ErrTimelineInvariant),
		errors.Is(err, domain.ErrNoOpenPeriod), errors.Is(err, domain.ErrInvalidCancelStop):
		p.deps.Metrics.ObserveBundle(string(domain.ReceiptKindCharge), metrics.OutcomeFatal, started)
	default:
		p.deps.Metrics.ObserveBundle(string(domain.ReceiptKindCharge), metrics.OutcomeFailed, started)
	}
	return outcome, err
}

func (p *ChargeProcessor) process(ctx context.Context, commandID string, cmd domain.ChargeCommand, receivedAt time.Time) (*Outcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	cfg, err := p.deps.Rules.GetConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules configuration: %w", err)
	}
	now := p.deps.Clock.Now()
	logger := p.deps.Logger.With("document_id", cmd.Document.ID)

	header := p.deps.Receipts.Header(domain.ReceiptKindCharge, cmd.Document)
	work := newChargeWork()
	state := bundle.Clean()
	outcome := &Outcome{}

	for i, op := range cmd.Operations {
		existing, err := p.load(ctx, work, op.Key())
		if err != nil {
			return nil, err
		}

		var result validation.Result
		state, result = bundle.Step(state, op.ID,
			func() validation.Result { return validation.InputRules(op).Validate() },
			func() validation.Result {
				return validation.BusinessRules(validation.BusinessContext{
					Operation: op,
					Existing:  existing,
					Config:    cfg,
					Now:       now,
					Zone:      p.deps.Zone,
				}).Validate()
			},
		)

		if result.IsValid() {
			kind, err := p.apply(work, op, existing, receivedAt)
			if err != nil {
				return nil, fmt.Errorf("operation %s: %w", op.ID, err)
			}
			logger.Debug("operation accepted", "operation_id", op.ID, "charge_id", op.ChargeID, "type", kind)
		} else {
			logger.Info("operation rejected",
				"operation_id", op.ID,
				"charge_id", op.ChargeID,
				"rules", ruleNames(result),
			)
		}

		r, err := p.deps.Receipts.Build(header, op.ID, i+1, result)
		if err != nil {
			return nil, err
		}
		outcome.add(r)
	}
	outcome.PoisonedBy = state.TriggeredBy()

	if err := p.commit(ctx, work, commandID); err != nil {
		return nil, err
	}
	p.observe(outcome)

	if err := p.deps.Sender.SendAll(context.WithoutCancel(ctx), outcome.Receipts); err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return outcome, nil
}

// load returns the charge with key as earlier operations of the bundle left
// it, reading the store on first use. A missing charge is nil.
func (p *ChargeProcessor) load(ctx context.Context, work *chargeWork, key domain.BusinessKey) (*domain.Charge, error) {
	if c, ok := work.loaded[key]; ok {
		return c, nil
	}
	c, err := p.deps.Store.GetChargeByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		c, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load charge %s: %w", key, err)
	}
	work.loaded[key] = c
	return c, nil
}

func (p *ChargeProcessor) apply(work *chargeWork, op domain.ChargeOperation, existing *domain.Charge, receivedAt time.Time) (domain.OperationType, error) {
	kind := domain.Classify(op, existing)
	key := op.Key()

	switch kind {
	case domain.OperationCreate:
		c, err := domain.NewCharge(op, receivedAt)
		if err != nil {
			return kind, err
		}
		work.loaded[key] = c
		work.created[key] = true

	case domain.OperationUpdate:
		period, err := domain.NewChargePeriodFromOperation(op, receivedAt)
		if err != nil {
			return kind, err
		}
		if err := existing.Update(period, op.Points); err != nil {
			return kind, err
		}

	case domain.OperationStop:
		if err := existing.Stop(op.EffectiveEnd(), receivedAt); err != nil {
			return kind, err
		}

	case domain.OperationCancelStop:
		if err := existing.CancelStop(receivedAt); err != nil {
			return kind, err
		}
	}

	work.touch(key)
	return kind, nil
}

// commit writes every touched charge, and marks the inbox command when there
// is one, in one transaction.
func (p *ChargeProcessor) commit(ctx context.Context, work *chargeWork, commandID string) error {
	if len(work.dirty) == 0 && commandID == "" {
		return nil
	}
	err := p.deps.Store.WithTx(ctx, func(tx store.Store) error {
		for _, key := range work.dirty {
			c := work.loaded[key]
			if work.created[key] {
				if err := tx.CreateCharge(ctx, c); err != nil {
					return err
				}
				continue
			}
			if err := tx.UpdateCharge(ctx, c); err != nil {
				return err
			}
		}
		return markProcessed(ctx, tx, commandID, p.deps.Clock.Now())
	})
	if err != nil {
		if store.IsConflict(err) {
			p.deps.Metrics.ObserveCommitConflict()
		}
		return fmt.Errorf("commit charges: %w", err)
	}
	return nil
}

func (p *ChargeProcessor) observe(o *Outcome) {
	observeOutcome(p.deps.Metrics, domain.ReceiptKindCharge, o)
}

func ruleNames(result validation.Result) []string {
	errs := result.Errors()
	names := make([]string, len(errs))
	for i, e := range errs {
		names[i] = string(e.Rule)
	}
	return names
}
