// Package notify delivers receipts to the market participant that sent the
// command, over a log, a webhook or a Redis stream.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/artpar/charges/internal/core/domain"
)

// =============================================================================
// Notifier Interface
// =============================================================================

// Notifier hands one receipt to the outbound transport. Callers send the
// receipts of a bundle one at a time, in operation order.
type Notifier interface {
	Send(ctx context.Context, receipt domain.Receipt) error
}

// =============================================================================
// Log Notifier
// =============================================================================

// LogNotifier writes receipts to the log. It is the default for development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "receipt_log")}
}

func (n *LogNotifier) Send(ctx context.Context, receipt domain.Receipt) error {
	attrs := []any{
		"receipt_id", receipt.ID,
		"kind", receipt.Kind,
		"status", receipt.Status,
		"operation_id", receipt.OriginalOperationID,
		"document_id", receipt.DocumentID,
		"order", receipt.OperationOrder,
		"recipient", receipt.Recipient.ID,
	}
	if receipt.Status == domain.ReceiptRejected {
		rules := make([]string, len(receipt.Errors))
		for i, e := range receipt.Errors {
			rules[i] = e.RuleIdentifier
		}
		attrs = append(attrs, "rules", rules)
	}
	n.logger.InfoContext(ctx, "receipt", attrs...)
	return nil
}

// =============================================================================
// Multi Notifier
// =============================================================================

// MultiNotifier sends every receipt to each notifier in turn. All notifiers
// are tried, and their errors are joined.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier fanning out to notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (m *MultiNotifier) Send(ctx context.Context, receipt domain.Receipt) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, receipt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// No-Op Notifier (for testing)
// =============================================================================

// NoOpNotifier drops every receipt.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a no-op notifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, receipt domain.Receipt) error {
	return nil
}
