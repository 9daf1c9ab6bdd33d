package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
	"github.com/artpar/charges/internal/core/validation"
	"github.com/artpar/charges/internal/shell/receipt"
	"github.com/artpar/charges/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

var (
	now        = time.Date(2020, 5, 10, 13, 0, 0, 0, time.UTC)
	receivedAt = now
	owner      = "5790000000001"
	document   = domain.Document{
		ID:         "doc-1",
		SenderID:   owner,
		SenderRole: domain.RoleGridAccessProvider,
	}
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type recordingNotifier struct {
	mu       sync.Mutex
	receipts []domain.Receipt
	err      error
}

func (n *recordingNotifier) Send(ctx context.Context, r domain.Receipt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.receipts = append(n.receipts, r)
	return nil
}

func (n *recordingNotifier) sent() []domain.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Receipt(nil), n.receipts...)
}

// failingTxStore fails every transaction.
type failingTxStore struct {
	store.Store
	err error
}

func (s *failingTxStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return s.err
}

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDeps(s store.Store, n *recordingNotifier) Deps {
	clock := localtime.FixedClock{At: now}
	return Deps{
		Store:    s,
		Clock:    clock,
		Zone:     localtime.MustZone(localtime.DefaultZoneName),
		Receipts: receipt.NewBuilder(domain.MarketParticipant{ID: "5790001330583", Role: domain.RoleMeteringPointAdministrator}, clock),
		Sender:   receipt.NewSender(n, nil),
	}
}

func tariff(id string, start time.Time) domain.ChargeOperation {
	return domain.ChargeOperation{
		ID:                id,
		ChargeID:          "EA-001",
		ChargeOwner:       owner,
		Type:              domain.ChargeTypeTariff,
		Name:              "Net tariff " + id,
		Description:       "Grid tariff",
		Resolution:        domain.ResolutionHourly,
		TaxIndicator:      true,
		VatClassification: domain.VatClassificationVat25,
		StartDateTime:     start,
		Points: []domain.Point{
			{Position: 1, Price: decimal.RequireFromString("0.25"), Time: start},
		},
	}
}

func stop(id string, end time.Time) domain.ChargeOperation {
	op := tariff(id, end)
	op.EndDateTime = end
	op.Points = nil
	return op
}

func chargeCommand(ops ...domain.ChargeOperation) domain.ChargeCommand {
	return domain.ChargeCommand{Document: document, Operations: ops}
}

func statuses(receipts []domain.Receipt) []domain.ReceiptStatus {
	out := make([]domain.ReceiptStatus, len(receipts))
	for i, r := range receipts {
		out[i] = r.Status
	}
	return out
}

func key() domain.BusinessKey {
	return domain.BusinessKey{ChargeID: "EA-001", OwnerID: owner, Type: domain.ChargeTypeTariff}
}

// =============================================================================
// Charge Processor Tests
// =============================================================================

func TestChargeProcessor_CreateCharge(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))

	outcome, err := p.Process(context.Background(), chargeCommand(tariff("op-1", day(2020, 1, 1))), receivedAt)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Accepted)
	assert.Empty(t, outcome.PoisonedBy)

	sent := n.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ReceiptAccepted, sent[0].Status)
	assert.Equal(t, "op-1", sent[0].OriginalOperationID)
	assert.Equal(t, owner, sent[0].Recipient.ID)

	charge, err := s.GetChargeByKey(context.Background(), key())
	require.NoError(t, err)
	require.Len(t, charge.Periods(), 1)
	assert.True(t, charge.Periods()[0].IsOpenEnded())
}

func TestChargeProcessor_PoisonedBundle(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))

	invalid := tariff("op-2", day(2020, 3, 1))
	invalid.Resolution = domain.ResolutionDaily

	outcome, err := p.Process(context.Background(), chargeCommand(
		tariff("op-1", day(2020, 1, 1)),
		invalid,
		tariff("op-3", day(2020, 6, 1)),
	), receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "op-2", outcome.PoisonedBy)
	assert.Equal(t, 1, outcome.Accepted)
	assert.Equal(t, 2, outcome.Rejected)

	sent := n.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []domain.ReceiptStatus{domain.ReceiptAccepted, domain.ReceiptRejected, domain.ReceiptRejected}, statuses(sent))
	for i, r := range sent {
		assert.Equal(t, i+1, r.OperationOrder)
	}

	require.Len(t, sent[1].Errors, 1)
	assert.Equal(t, string(validation.RuleChargeResolutionCanNotBeUpdated), sent[1].Errors[0].RuleIdentifier)

	require.Len(t, sent[2].Errors, 1)
	assert.Equal(t, string(validation.RulePreviousOperationsMustBeValid), sent[2].Errors[0].RuleIdentifier)
	assert.Contains(t, sent[2].Errors[0].Text, "op-2")
	assert.Equal(t, "op-2", sent[2].Errors[0].Parameters["TriggeredBy"])

	charge, err := s.GetChargeByKey(context.Background(), key())
	require.NoError(t, err)
	require.Len(t, charge.Periods(), 1)
	assert.Equal(t, "Net tariff op-1", charge.Periods()[0].Name)
	assert.Equal(t, day(2020, 1, 1), charge.Periods()[0].StartDateTime)
}

func TestChargeProcessor_UpdateAcrossCommands(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))
	ctx := context.Background()

	_, err := p.Process(ctx, chargeCommand(tariff("op-1", day(2020, 1, 1))), receivedAt)
	require.NoError(t, err)
	_, err = p.Process(ctx, chargeCommand(tariff("op-2", day(2020, 6, 1))), receivedAt.Add(time.Hour))
	require.NoError(t, err)

	charge, err := s.GetChargeByKey(ctx, key())
	require.NoError(t, err)
	periods := charge.Periods()
	require.Len(t, periods, 2)
	assert.Equal(t, day(2020, 1, 1), periods[0].StartDateTime)
	assert.Equal(t, day(2020, 6, 1), periods[0].EndDateTime)
	assert.Equal(t, day(2020, 6, 1), periods[1].StartDateTime)
	assert.True(t, periods[1].IsOpenEnded())
	assert.Equal(t, 2, charge.Version())
}

func TestChargeProcessor_StopAndCancelStop(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))
	ctx := context.Background()

	cancel := tariff("op-3", day(2020, 9, 1))
	cancel.Points = nil

	outcome, err := p.Process(ctx, chargeCommand(
		tariff("op-1", day(2020, 1, 1)),
		stop("op-2", day(2020, 9, 1)),
		cancel,
	), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Accepted)

	charge, err := s.GetChargeByKey(ctx, key())
	require.NoError(t, err)
	require.Len(t, charge.Periods(), 1)
	assert.True(t, charge.LatestPeriod().IsOpenEnded())
	_, stopped := charge.StopPeriod()
	assert.False(t, stopped)
}

func TestChargeProcessor_StopUnknownCharge(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))

	outcome, err := p.Process(context.Background(), chargeCommand(stop("op-1", day(2020, 9, 1))), receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "op-1", outcome.PoisonedBy)
	require.Len(t, n.sent(), 1)
	assert.Equal(t, string(validation.RuleChargeMustExistToBeStopped), n.sent()[0].Errors[0].RuleIdentifier)

	_, err = s.GetChargeByKey(context.Background(), key())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChargeProcessor_InvalidCommand(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))

	tests := []struct {
		name string
		cmd  domain.ChargeCommand
	}{
		{"no operations", chargeCommand()},
		{"no sender", domain.ChargeCommand{Document: domain.Document{ID: "doc"}, Operations: []domain.ChargeOperation{tariff("op-1", day(2020, 1, 1))}}},
		{"no operation id", chargeCommand(tariff("", day(2020, 1, 1)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), tt.cmd, receivedAt)
			assert.ErrorIs(t, err, domain.ErrInvalidCommand)
		})
	}
	assert.Empty(t, n.sent())
}

func TestChargeProcessor_PersistenceFailureSendsNothing(t *testing.T) {
	boom := errors.New("disk full")
	s := &failingTxStore{Store: setupStore(t), err: boom}
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))

	outcome, err := p.Process(context.Background(), chargeCommand(tariff("op-1", day(2020, 1, 1))), receivedAt)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, outcome)
	assert.Empty(t, n.sent())
}

func TestChargeProcessor_DeliveryFailure(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{err: errors.New("webhook down")}
	p := NewChargeProcessor(testDeps(s, n))

	outcome, err := p.Process(context.Background(), chargeCommand(tariff("op-1", day(2020, 1, 1))), receivedAt)
	assert.ErrorIs(t, err, ErrDelivery)
	require.NotNil(t, outcome)
	assert.Len(t, outcome.Receipts, 1)

	_, err = s.GetChargeByKey(context.Background(), key())
	assert.NoError(t, err)
}

func TestChargeProcessor_AllRejectedCommitsNothing(t *testing.T) {
	s := &failingTxStore{Store: setupStore(t), err: errors.New("must not be called")}
	n := &recordingNotifier{}
	p := NewChargeProcessor(testDeps(s, n))

	op := tariff("op-1", day(2020, 1, 1))
	op.ChargeID = "TOO-LONG-CHARGE-ID"

	outcome, err := p.Process(context.Background(), chargeCommand(op), receivedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Rejected)
	require.Len(t, n.sent(), 1)
	assert.Equal(t, string(validation.RuleChargeIDLength), n.sent()[0].Errors[0].RuleIdentifier)
}

// =============================================================================
// Link Processor Tests
// =============================================================================

func linkOp(id, meteringPoint string, start time.Time) domain.ChargeLinkOperation {
	return domain.ChargeLinkOperation{
		ID:              id,
		MeteringPointID: meteringPoint,
		ChargeID:        "EA-001",
		ChargeOwner:     owner,
		ChargeType:      domain.ChargeTypeTariff,
		Factor:          1,
		StartDateTime:   start,
	}
}

func TestLinkProcessor_OverlapWithinBundle(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	ctx := context.Background()

	_, err := NewChargeProcessor(testDeps(s, n)).Process(ctx, chargeCommand(tariff("op-1", day(2020, 1, 1))), receivedAt)
	require.NoError(t, err)

	links := &recordingNotifier{}
	p := NewLinkProcessor(testDeps(s, links))

	bounded := linkOp("link-1", "571313180000000001", day(2020, 2, 1))
	bounded.EndDateTime = day(2020, 4, 1)

	outcome, err := p.Process(ctx, domain.ChargeLinksCommand{
		Document: document,
		Operations: []domain.ChargeLinkOperation{
			bounded,
			linkOp("link-2", "571313180000000001", day(2020, 3, 1)),
			linkOp("link-3", "571313180000000002", day(2020, 3, 1)),
		},
	}, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "link-2", outcome.PoisonedBy)
	sent := links.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []domain.ReceiptStatus{domain.ReceiptAccepted, domain.ReceiptRejected, domain.ReceiptRejected}, statuses(sent))
	assert.Equal(t, domain.ReceiptKindChargeLink, sent[0].Kind)
	assert.Equal(t, string(validation.RuleChargeLinkPeriodsMustNotOverlap), sent[1].Errors[0].RuleIdentifier)
	assert.Equal(t, string(validation.RulePreviousOperationsMustBeValid), sent[2].Errors[0].RuleIdentifier)

	charge, err := s.GetChargeByKey(ctx, key())
	require.NoError(t, err)
	stored, err := s.ListChargeLinks(ctx, charge.ID, store.DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "link-1", stored[0].OperationID)
}

func TestLinkProcessor_ChargeMustExist(t *testing.T) {
	s := setupStore(t)
	n := &recordingNotifier{}
	p := NewLinkProcessor(testDeps(s, n))

	outcome, err := p.Process(context.Background(), domain.ChargeLinksCommand{
		Document:   document,
		Operations: []domain.ChargeLinkOperation{linkOp("link-1", "571313180000000001", day(2020, 2, 1))},
	}, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Rejected)
	require.Len(t, n.sent(), 1)
	assert.Equal(t, string(validation.RuleChargeMustExist), n.sent()[0].Errors[0].RuleIdentifier)
}

func TestLinkProcessor_InvalidCommand(t *testing.T) {
	p := NewLinkProcessor(testDeps(setupStore(t), &recordingNotifier{}))

	_, err := p.Process(context.Background(), domain.ChargeLinksCommand{Document: document}, receivedAt)
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)
}

func TestLinkProcessor_MissingStartRejected(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := NewChargeProcessor(testDeps(s, &recordingNotifier{})).Process(ctx, chargeCommand(tariff("op-1", day(2020, 1, 1))), receivedAt)
	require.NoError(t, err)

	n := &recordingNotifier{}
	outcome, err := NewLinkProcessor(testDeps(s, n)).Process(ctx, domain.ChargeLinksCommand{
		Document:   document,
		Operations: []domain.ChargeLinkOperation{linkOp("link-1", "571313180000000001", time.Time{})},
	}, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Rejected)
	require.Len(t, n.sent(), 1)
	assert.Equal(t, string(validation.RuleChargeLinkStartDateIsRequired), n.sent()[0].Errors[0].RuleIdentifier)

	charge, err := s.GetChargeByKey(ctx, key())
	require.NoError(t, err)
	stored, err := s.ListChargeLinks(ctx, charge.ID, store.DefaultListOptions())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

// =============================================================================
// Inbox Commit Tests
// =============================================================================

func claimed(t *testing.T, s store.Store, id string, kind store.CommandKind) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnqueueCommand(ctx, &store.InboxCommand{
		ID: id, Kind: kind, DocumentID: document.ID, Payload: []byte("{}"), ReceivedAt: receivedAt,
	}))
	_, err := s.ClaimPendingCommands(ctx, 10)
	require.NoError(t, err)
}

func TestProcessCommand_MarksInboxInCommit(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	t.Run("accepted", func(t *testing.T) {
		claimed(t, s, "cmd-1", store.CommandKindCharge)
		p := NewChargeProcessor(testDeps(s, &recordingNotifier{}))

		_, err := p.ProcessCommand(ctx, "cmd-1", chargeCommand(tariff("op-1", day(2020, 1, 1))), receivedAt)
		require.NoError(t, err)

		cmd, err := s.GetCommand(ctx, "cmd-1")
		require.NoError(t, err)
		assert.Equal(t, store.CommandProcessed, cmd.Status)
	})

	t.Run("all rejected", func(t *testing.T) {
		claimed(t, s, "cmd-2", store.CommandKindChargeLink)
		p := NewLinkProcessor(testDeps(s, &recordingNotifier{}))

		outcome, err := p.ProcessCommand(ctx, "cmd-2", domain.ChargeLinksCommand{
			Document:   document,
			Operations: []domain.ChargeLinkOperation{linkOp("link-1", "", day(2020, 2, 1))},
		}, receivedAt)
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Rejected)

		cmd, err := s.GetCommand(ctx, "cmd-2")
		require.NoError(t, err)
		assert.Equal(t, store.CommandProcessed, cmd.Status)
	})

	t.Run("rolled back with the bundle", func(t *testing.T) {
		claimed(t, s, "cmd-3", store.CommandKindCharge)
		boom := errors.New("disk full")
		p := NewChargeProcessor(testDeps(&failingTxStore{Store: s, err: boom}, &recordingNotifier{}))

		_, err := p.ProcessCommand(ctx, "cmd-3", chargeCommand(tariff("op-9", day(2020, 1, 1))), receivedAt)
		require.ErrorIs(t, err, boom)

		cmd, err := s.GetCommand(ctx, "cmd-3")
		require.NoError(t, err)
		assert.Equal(t, store.CommandProcessing, cmd.Status)
	})
}
