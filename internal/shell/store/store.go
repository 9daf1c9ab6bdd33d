package store

import (
	"context"
	"time"

	"github.com/artpar/charges/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for charges, charge links and the
// command inbox.
type Store interface {
	// Charge operations
	GetChargeByKey(ctx context.Context, key domain.BusinessKey) (*domain.Charge, error)
	CreateCharge(ctx context.Context, charge *domain.Charge) error
	// UpdateCharge replaces the stored timeline and points. It fails with
	// ErrVersionConflict when the stored version differs from charge.Version().
	UpdateCharge(ctx context.Context, charge *domain.Charge) error

	// Charge link operations
	CreateChargeLink(ctx context.Context, link *domain.ChargeLink) error
	ListChargeLinks(ctx context.Context, chargeID string, opts ListOptions) ([]domain.ChargeLink, error)
	ListChargeLinksForMeteringPoint(ctx context.Context, chargeID, meteringPointID string) ([]domain.ChargeLink, error)

	// Command inbox operations
	EnqueueCommand(ctx context.Context, cmd *InboxCommand) error
	GetCommand(ctx context.Context, id string) (*InboxCommand, error)
	// ClaimPendingCommands moves up to limit pending commands, oldest first,
	// to the processing state and returns them.
	ClaimPendingCommands(ctx context.Context, limit int) ([]InboxCommand, error)
	// ReleaseProcessingCommands returns commands left in the processing
	// state, e.g. by a crash, to pending and reports how many were released.
	ReleaseProcessingCommands(ctx context.Context) (int, error)
	MarkCommandProcessed(ctx context.Context, id string, at time.Time) error
	MarkCommandFailed(ctx context.Context, id, message string, at time.Time) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Command Inbox
// =============================================================================

// CommandKind tells how an inbox payload is decoded.
type CommandKind string

const (
	CommandKindCharge     CommandKind = "charge"
	CommandKindChargeLink CommandKind = "charge_link"
)

// CommandStatus is the processing state of an inbox command.
type CommandStatus string

const (
	CommandPending    CommandStatus = "pending"
	CommandProcessing CommandStatus = "processing"
	CommandProcessed  CommandStatus = "processed"
	CommandFailed     CommandStatus = "failed"
)

// InboxCommand is a received command waiting to be processed. Payload holds
// the JSON encoded command.
type InboxCommand struct {
	ID          string
	Kind        CommandKind
	DocumentID  string
	Payload     []byte
	Status      CommandStatus
	Error       string
	Attempts    int
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

// =============================================================================
// List Options
// =============================================================================

// ListOptions configures pagination for list operations.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
