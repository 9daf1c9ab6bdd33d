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
// Charge Link Processor
// =============================================================================

// LinkProcessor handles charge link commands with the same bundle semantics
// as charge commands.
type LinkProcessor struct {
	deps Deps
}

// NewLinkProcessor creates a link processor.
func NewLinkProcessor(deps Deps) *LinkProcessor {
	deps = deps.withDefaults()
	deps.Logger = deps.Logger.With("component", "link_processor")
	return &LinkProcessor{deps: deps}
}

type linkScope struct {
	chargeID        string
	meteringPointID string
}

type linkWork struct {
	charges map[domain.BusinessKey]*domain.Charge
	links   map[linkScope][]domain.ChargeLink
	pending []*domain.ChargeLink
}

// Process runs cmd as one bundle. Error handling matches
// ChargeProcessor.Process.
func (p *LinkProcessor) Process(ctx context.Context, cmd domain.ChargeLinksCommand, receivedAt time.Time) (*Outcome, error) {
	return p.ProcessCommand(ctx, "", cmd, receivedAt)
}

// ProcessCommand is Process for a command taken from the inbox, see
// ChargeProcessor.ProcessCommand.
func (p *LinkProcessor) ProcessCommand(ctx context.Context, commandID string, cmd domain.ChargeLinksCommand, receivedAt time.Time) (*Outcome, error) {
	started := time.Now()
	outcome, err := p.process(ctx, commandID, cmd, receivedAt)
	kind := string(domain.ReceiptKindChargeLink)
	switch {
	case err == nil:
		p.deps.Metrics.ObserveBundle(kind, metrics.OutcomeCommitted, started)
	case errors.Is(err, domain.ErrInvalidCommand), errors.Is(err, domain.ErrInvalidPeriod):
		p.deps.Metrics.ObserveBundle(kind, metrics.OutcomeFatal, started)
	default:
		p.deps.Metrics.ObserveBundle(kind, metrics.OutcomeFailed, started)
	}
	return outcome, err
}

func (p *LinkProcessor) process(ctx context.Context, commandID string, cmd domain.ChargeLinksCommand, receivedAt time.Time) (*Outcome, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	logger := p.deps.Logger.With("document_id", cmd.Document.ID)
	header := p.deps.Receipts.Header(domain.ReceiptKindChargeLink, cmd.Document)
	work := &linkWork{
		charges: make(map[domain.BusinessKey]*domain.Charge),
		links:   make(map[linkScope][]domain.ChargeLink),
	}
	state := bundle.Clean()
	outcome := &Outcome{}

	for i, op := range cmd.Operations {
		charge, err := p.loadCharge(ctx, work, op.ChargeKey())
		if err != nil {
			return nil, err
		}
		var existing []domain.ChargeLink
		if charge != nil {
			existing, err = p.loadLinks(ctx, work, linkScope{charge.ID, op.MeteringPointID})
			if err != nil {
				return nil, err
			}
		}

		var result validation.Result
		state, result = bundle.Step(state, op.ID,
			func() validation.Result { return validation.LinkInputRules(op).Validate() },
			func() validation.Result {
				return validation.LinkBusinessRules(validation.LinkBusinessContext{
					Operation: op,
					Charge:    charge,
					Existing:  existing,
				}).Validate()
			},
		)

		if result.IsValid() {
			link, err := domain.NewChargeLink(op, charge.ID, receivedAt)
			if err != nil {
				return nil, fmt.Errorf("operation %s: %w", op.ID, err)
			}
			scope := linkScope{charge.ID, op.MeteringPointID}
			work.links[scope] = append(work.links[scope], *link)
			work.pending = append(work.pending, link)
			logger.Debug("link accepted", "operation_id", op.ID, "metering_point_id", op.MeteringPointID)
		} else {
			logger.Info("link rejected",
				"operation_id", op.ID,
				"metering_point_id", op.MeteringPointID,
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

	if len(work.pending) > 0 || commandID != "" {
		err := p.deps.Store.WithTx(ctx, func(tx store.Store) error {
			for _, link := range work.pending {
				if err := tx.CreateChargeLink(ctx, link); err != nil {
					return err
				}
			}
			return markProcessed(ctx, tx, commandID, p.deps.Clock.Now())
		})
		if err != nil {
			return nil, fmt.Errorf("commit charge links: %w", err)
		}
	}
	observeOutcome(p.deps.Metrics, domain.ReceiptKindChargeLink, outcome)

	if err := p.deps.Sender.SendAll(context.WithoutCancel(ctx), outcome.Receipts); err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return outcome, nil
}

func (p *LinkProcessor) loadCharge(ctx context.Context, work *linkWork, key domain.BusinessKey) (*domain.Charge, error) {
	if c, ok := work.charges[key]; ok {
		return c, nil
	}
	c, err := p.deps.Store.GetChargeByKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		c, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load charge %s: %w", key, err)
	}
	work.charges[key] = c
	return c, nil
}

// loadLinks returns the stored links of scope plus those accepted earlier in
// the bundle.
func (p *LinkProcessor) loadLinks(ctx context.Context, work *linkWork, scope linkScope) ([]domain.ChargeLink, error) {
	if links, ok := work.links[scope]; ok {
		return links, nil
	}
	links, err := p.deps.Store.ListChargeLinksForMeteringPoint(ctx, scope.chargeID, scope.meteringPointID)
	if err != nil {
		return nil, fmt.Errorf("load links for %s: %w", scope.meteringPointID, err)
	}
	work.links[scope] = links
	return links, nil
}
