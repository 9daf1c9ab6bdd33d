// Package receipt turns validation results into market receipts and hands
// them to a notifier in operation order.
package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
	"github.com/artpar/charges/internal/core/validation"
	"github.com/artpar/charges/internal/shell/notify"
)

// =============================================================================
// Builder
// =============================================================================

// Builder creates receipts on behalf of the system participant.
type Builder struct {
	sender domain.MarketParticipant
	clock  localtime.Clock
}

// NewBuilder creates a builder. sender identifies this system on receipts.
func NewBuilder(sender domain.MarketParticipant, clock localtime.Clock) *Builder {
	if clock == nil {
		clock = localtime.SystemClock{}
	}
	return &Builder{sender: sender, clock: clock}
}

// Header returns the fields shared by every receipt answering doc. Receipts
// go back to whoever sent the document.
func (b *Builder) Header(kind domain.ReceiptKind, doc domain.Document) domain.ReceiptHeader {
	return domain.ReceiptHeader{
		Kind:               kind,
		DocumentID:         doc.ID,
		BusinessReasonCode: doc.BusinessReasonCode,
		Sender:             b.sender,
		Recipient:          domain.MarketParticipant{ID: doc.SenderID, Role: doc.SenderRole},
	}
}

// Build answers one operation. order is the one-based position of the
// operation in its document.
func (b *Builder) Build(h domain.ReceiptHeader, operationID string, order int, result validation.Result) (domain.Receipt, error) {
	now := b.clock.Now()
	if result.IsValid() {
		return domain.NewAcceptReceipt(h, operationID, order, now), nil
	}

	r, err := domain.NewRejectReceipt(h, operationID, order, Errors(result), now)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("operation %s: %w", operationID, err)
	}
	return r, nil
}

// Errors renders the failed rules of result with reason codes and texts. The
// rule parameters are kept alongside the text.
func Errors(result validation.Result) []domain.ReceiptError {
	failed := result.Errors()
	out := make([]domain.ReceiptError, 0, len(failed))
	for _, e := range failed {
		out = append(out, domain.ReceiptError{
			RuleIdentifier: string(e.Rule),
			ReasonCode:     validation.ReasonCode(e.Rule),
			Text:           validation.Text(e),
			Parameters:     maps.Clone(e.Parameters),
		})
	}
	return out
}

// =============================================================================
// Sender
// =============================================================================

// Sender delivers the receipts of one bundle.
type Sender struct {
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewSender creates a sender.
func NewSender(notifier notify.Notifier, logger *slog.Logger) *Sender {
	if notifier == nil {
		notifier = notify.NewNoOpNotifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{notifier: notifier, logger: logger.With("component", "receipt_sender")}
}

// SendAll sends receipts in slice order and stops at the first failure, so a
// recipient never sees a later receipt without the earlier ones.
func (s *Sender) SendAll(ctx context.Context, receipts []domain.Receipt) error {
	for i, r := range receipts {
		if err := s.notifier.Send(ctx, r); err != nil {
			s.logger.Error("receipt delivery failed",
				"receipt_id", r.ID,
				"operation_id", r.OriginalOperationID,
				"document_id", r.DocumentID,
				"sent", i,
				"total", len(receipts),
				"error", err,
			)
			return fmt.Errorf("send receipt for operation %s: %w", r.OriginalOperationID, err)
		}
	}
	return nil
}
