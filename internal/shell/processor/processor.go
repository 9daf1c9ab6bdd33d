// Package processor applies received commands: it validates each operation
// of a bundle in order, mutates the affected charges, commits everything in
// one transaction and then sends one receipt per operation.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
	"github.com/artpar/charges/internal/core/validation"
	"github.com/artpar/charges/internal/shell/metrics"
	"github.com/artpar/charges/internal/shell/receipt"
	"github.com/artpar/charges/internal/shell/rulesconfig"
	"github.com/artpar/charges/internal/shell/store"
)

// ErrDelivery marks a failure to send receipts after the bundle was
// committed. Such a command must not be processed again.
var ErrDelivery = errors.New("receipt delivery failed")

// =============================================================================
// Configuration
// =============================================================================

// Deps holds what both processors share.
type Deps struct {
	Store store.Store
	Rules rulesconfig.Provider
	Clock localtime.Clock
	// Zone converts instants to local dates. The zero Zone is UTC.
	Zone     localtime.Zone
	Receipts *receipt.Builder
	Sender   *receipt.Sender
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Rules == nil {
		d.Rules = rulesconfig.MustStaticProvider(validation.DefaultRulesConfiguration())
	}
	if d.Clock == nil {
		d.Clock = localtime.SystemClock{}
	}
	if d.Receipts == nil {
		d.Receipts = receipt.NewBuilder(domain.MarketParticipant{}, d.Clock)
	}
	if d.Sender == nil {
		d.Sender = receipt.NewSender(nil, d.Logger)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Outcome is the result of processing one command.
type Outcome struct {
	Receipts []domain.Receipt
	Accepted int
	Rejected int
	// PoisonedBy is the operation that poisoned the bundle, if any.
	PoisonedBy string
}

func (o *Outcome) add(r domain.Receipt) {
	o.Receipts = append(o.Receipts, r)
	if r.Status == domain.ReceiptAccepted {
		o.Accepted++
	} else {
		o.Rejected++
	}
}

// observeOutcome records a committed bundle.
func observeOutcome(m *metrics.Metrics, kind domain.ReceiptKind, o *Outcome) {
	for _, r := range o.Receipts {
		m.ObserveOperation(string(kind), r.Status == domain.ReceiptAccepted)
		for _, e := range r.Errors {
			m.ObserveRuleFailure(e.RuleIdentifier)
		}
	}
	if o.PoisonedBy != "" {
		m.ObservePoisonedBundle(string(kind))
	}
}

// markProcessed closes the inbox entry of a committed command. Commands that
// did not come from the inbox have no id.
func markProcessed(ctx context.Context, tx store.Store, commandID string, at time.Time) error {
	if commandID == "" {
		return nil
	}
	return tx.MarkCommandProcessed(ctx, commandID, at)
}
