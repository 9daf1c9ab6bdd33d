package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/charges/internal/core/domain"
	"github.com/artpar/charges/internal/core/localtime"
	"github.com/artpar/charges/internal/shell/processor"
	"github.com/artpar/charges/internal/shell/receipt"
	"github.com/artpar/charges/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

var receivedAt = time.Date(2020, 5, 10, 13, 0, 0, 0, time.UTC)

// commit marks the command processed the way the real processors do when a
// bundle is committed.
func commit(ctx context.Context, s store.Store, commandID string, err error) error {
	if s != nil && (err == nil || errors.Is(err, processor.ErrDelivery)) {
		if markErr := s.MarkCommandProcessed(ctx, commandID, receivedAt); markErr != nil {
			return markErr
		}
	}
	return err
}

type fakeChargeProcessor struct {
	store    store.Store
	mu       sync.Mutex
	seen     []string
	received []time.Time
	err      error
}

func (f *fakeChargeProcessor) ProcessCommand(ctx context.Context, commandID string, cmd domain.ChargeCommand, at time.Time) (*processor.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, cmd.Document.ID)
	f.received = append(f.received, at)
	return &processor.Outcome{}, commit(ctx, f.store, commandID, f.err)
}

type fakeLinkProcessor struct {
	store store.Store
	mu    sync.Mutex
	seen  []string
	err   error
}

func (f *fakeLinkProcessor) ProcessCommand(ctx context.Context, commandID string, cmd domain.ChargeLinksCommand, at time.Time) (*processor.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, cmd.Document.ID)
	return &processor.Outcome{}, commit(ctx, f.store, commandID, f.err)
}

// interruptingProcessor cancels the cycle before anything is committed.
type interruptingProcessor struct {
	cancel context.CancelFunc
}

func (p *interruptingProcessor) ProcessCommand(ctx context.Context, commandID string, cmd domain.ChargeCommand, at time.Time) (*processor.Outcome, error) {
	p.cancel()
	return nil, ctx.Err()
}

// cancellingNotifier records receipts and cancels the cycle on each one,
// i.e. after the bundle was committed.
type cancellingNotifier struct {
	mu       sync.Mutex
	cancel   context.CancelFunc
	receipts []domain.Receipt
}

func (n *cancellingNotifier) Send(ctx context.Context, r domain.Receipt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, r)
	n.cancel()
	return nil
}

func (n *cancellingNotifier) sent() []domain.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Receipt(nil), n.receipts...)
}

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, s store.Store, id string, kind store.CommandKind, payload any) {
	t.Helper()
	raw, ok := payload.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	require.NoError(t, s.EnqueueCommand(context.Background(), &store.InboxCommand{
		ID:         id,
		Kind:       kind,
		DocumentID: "doc-" + id,
		Payload:    raw,
		ReceivedAt: receivedAt,
	}))
}

func chargeCommand(docID string) domain.ChargeCommand {
	return domain.ChargeCommand{
		Document: domain.Document{ID: docID, SenderID: "5790000000001"},
		Operations: []domain.ChargeOperation{{
			ID: "op-1", ChargeID: "EA-001", ChargeOwner: "5790000000001", Type: domain.ChargeTypeTariff,
		}},
	}
}

func validTariffCommand(docID string) domain.ChargeCommand {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cmd := chargeCommand(docID)
	op := &cmd.Operations[0]
	op.Name = "Net tariff"
	op.Description = "Grid tariff"
	op.Resolution = domain.ResolutionHourly
	op.VatClassification = domain.VatClassificationVat25
	op.StartDateTime = start
	op.Points = []domain.Point{{Position: 1, Price: decimal.RequireFromString("0.25"), Time: start}}
	return cmd
}

func status(t *testing.T, s store.Store, id string) *store.InboxCommand {
	t.Helper()
	cmd, err := s.GetCommand(context.Background(), id)
	require.NoError(t, err)
	return cmd
}

// =============================================================================
// Configuration Tests
// =============================================================================

func TestDefaultInboxWorkerConfig(t *testing.T) {
	config := DefaultInboxWorkerConfig()

	assert.Equal(t, 2*time.Second, config.Interval)
	assert.Equal(t, 50, config.BatchSize)
	assert.Equal(t, DefaultDispatcherConfig(), config.Dispatcher)
}

func TestNewInboxWorker_DefaultConfig(t *testing.T) {
	w := NewInboxWorker(setupStore(t), nil, nil, nil, nil, InboxWorkerConfig{}, nil)

	assert.Equal(t, 2*time.Second, w.config.Interval)
	assert.Equal(t, 50, w.config.BatchSize)
	assert.NotNil(t, w.clock)
}

// =============================================================================
// Cycle Tests
// =============================================================================

func TestInboxWorker_RunCycle(t *testing.T) {
	s := setupStore(t)
	charges := &fakeChargeProcessor{store: s}
	links := &fakeLinkProcessor{store: s}

	enqueue(t, s, "cmd-1", store.CommandKindCharge, chargeCommand("doc-a"))
	enqueue(t, s, "cmd-2", store.CommandKindChargeLink, domain.ChargeLinksCommand{
		Document: domain.Document{ID: "doc-b", SenderID: "5790000000001"},
	})
	enqueue(t, s, "cmd-3", store.CommandKindCharge, []byte("{not json"))

	clock := localtime.FixedClock{At: receivedAt.Add(time.Minute)}
	w := NewInboxWorker(s, charges, links, clock, nil, InboxWorkerConfig{}, nil)

	assert.Equal(t, 3, w.RunCycle(context.Background()))

	assert.Equal(t, []string{"doc-a"}, charges.seen)
	assert.Equal(t, receivedAt, charges.received[0])
	assert.Equal(t, []string{"doc-b"}, links.seen)

	assert.Equal(t, store.CommandProcessed, status(t, s, "cmd-1").Status)
	assert.Equal(t, store.CommandProcessed, status(t, s, "cmd-2").Status)

	failed := status(t, s, "cmd-3")
	assert.Equal(t, store.CommandFailed, failed.Status)
	assert.Contains(t, failed.Error, "decode charge command")

	assert.Equal(t, 0, w.RunCycle(context.Background()))
}

func TestInboxWorker_ProcessingErrors(t *testing.T) {
	s := setupStore(t)
	charges := &fakeChargeProcessor{store: s, err: domain.ErrInvalidCommand}
	links := &fakeLinkProcessor{store: s, err: errors.Join(processor.ErrDelivery, errors.New("webhook down"))}

	enqueue(t, s, "cmd-1", store.CommandKindCharge, chargeCommand("doc-a"))
	enqueue(t, s, "cmd-2", store.CommandKindChargeLink, domain.ChargeLinksCommand{})

	w := NewInboxWorker(s, charges, links, nil, nil, InboxWorkerConfig{}, nil)
	w.RunCycle(context.Background())

	failed := status(t, s, "cmd-1")
	assert.Equal(t, store.CommandFailed, failed.Status)
	assert.Contains(t, failed.Error, "invalid command")

	delivered := status(t, s, "cmd-2")
	assert.Equal(t, store.CommandProcessed, delivered.Status)
}

func TestInboxWorker_UnknownKind(t *testing.T) {
	s := setupStore(t)
	enqueue(t, s, "cmd-1", store.CommandKind("other"), []byte("{}"))

	w := NewInboxWorker(s, &fakeChargeProcessor{store: s}, &fakeLinkProcessor{store: s}, nil, nil, InboxWorkerConfig{}, nil)
	w.RunCycle(context.Background())

	assert.Equal(t, store.CommandFailed, status(t, s, "cmd-1").Status)
}

// =============================================================================
// Shutdown Tests
// =============================================================================

func TestInboxWorker_CommittedCommandSurvivesShutdown(t *testing.T) {
	s := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &cancellingNotifier{cancel: cancel}
	clock := localtime.FixedClock{At: receivedAt}
	deps := processor.Deps{Store: s, Clock: clock, Sender: receipt.NewSender(n, nil)}
	w := NewInboxWorker(s, processor.NewChargeProcessor(deps), processor.NewLinkProcessor(deps), clock, nil, InboxWorkerConfig{}, nil)

	enqueue(t, s, "cmd-1", store.CommandKindCharge, validTariffCommand("doc-a"))

	assert.Equal(t, 1, w.RunCycle(ctx))
	require.Error(t, ctx.Err())
	assert.Equal(t, store.CommandProcessed, status(t, s, "cmd-1").Status)

	released, err := s.ReleaseProcessingCommands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, released)
	assert.Equal(t, 0, w.RunCycle(context.Background()))

	sent := n.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.ReceiptAccepted, sent[0].Status)

	charge, err := s.GetChargeByKey(context.Background(), validTariffCommand("doc-a").Operations[0].Key())
	require.NoError(t, err)
	assert.Equal(t, 1, charge.Version())
}

func TestInboxWorker_InterruptedCommandIsReleased(t *testing.T) {
	s := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enqueue(t, s, "cmd-1", store.CommandKindCharge, chargeCommand("doc-a"))

	w := NewInboxWorker(s, &interruptingProcessor{cancel: cancel}, &fakeLinkProcessor{store: s}, nil, nil, InboxWorkerConfig{}, nil)
	assert.Equal(t, 1, w.RunCycle(ctx))
	assert.Equal(t, store.CommandProcessing, status(t, s, "cmd-1").Status)

	released, err := s.ReleaseProcessingCommands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	charges := &fakeChargeProcessor{store: s}
	w = NewInboxWorker(s, charges, &fakeLinkProcessor{store: s}, nil, nil, InboxWorkerConfig{}, nil)
	assert.Equal(t, 1, w.RunCycle(context.Background()))
	assert.Equal(t, []string{"doc-a"}, charges.seen)
	assert.Equal(t, store.CommandProcessed, status(t, s, "cmd-1").Status)
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestInboxWorker_StartStop(t *testing.T) {
	s := setupStore(t)
	charges := &fakeChargeProcessor{store: s}
	enqueue(t, s, "cmd-1", store.CommandKindCharge, chargeCommand("doc-a"))

	_, err := s.ClaimPendingCommands(context.Background(), 10)
	require.NoError(t, err)

	w := NewInboxWorker(s, charges, &fakeLinkProcessor{store: s}, nil, nil, InboxWorkerConfig{Interval: 10 * time.Millisecond}, nil)
	w.Start()

	require.Eventually(t, func() bool {
		return status(t, s, "cmd-1").Status == store.CommandProcessed
	}, time.Second, 10*time.Millisecond)

	w.Stop()
	assert.Equal(t, 2, status(t, s, "cmd-1").Attempts)
}
