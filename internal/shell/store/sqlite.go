package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/artpar/charges/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout keeps nanoseconds at a fixed width so stored instants sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// SQLite allows one writer, and every connection to :memory: is a
	// separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) GetChargeByKey(ctx context.Context, key domain.BusinessKey) (*domain.Charge, error) {
	return getChargeByKey(ctx, s.db, key)
}

func (s *SQLiteStore) CreateCharge(ctx context.Context, charge *domain.Charge) error {
	return createCharge(ctx, s.db, charge)
}

func (s *SQLiteStore) UpdateCharge(ctx context.Context, charge *domain.Charge) error {
	return updateCharge(ctx, s.db, charge)
}

func (s *SQLiteStore) CreateChargeLink(ctx context.Context, link *domain.ChargeLink) error {
	return createChargeLink(ctx, s.db, link)
}

func (s *SQLiteStore) ListChargeLinks(ctx context.Context, chargeID string, opts ListOptions) ([]domain.ChargeLink, error) {
	return listChargeLinks(ctx, s.db, chargeID, opts)
}

func (s *SQLiteStore) ListChargeLinksForMeteringPoint(ctx context.Context, chargeID, meteringPointID string) ([]domain.ChargeLink, error) {
	return listChargeLinksForMeteringPoint(ctx, s.db, chargeID, meteringPointID)
}

func (s *SQLiteStore) EnqueueCommand(ctx context.Context, cmd *InboxCommand) error {
	return enqueueCommand(ctx, s.db, cmd)
}

func (s *SQLiteStore) GetCommand(ctx context.Context, id string) (*InboxCommand, error) {
	return getCommand(ctx, s.db, id)
}

func (s *SQLiteStore) ClaimPendingCommands(ctx context.Context, limit int) ([]InboxCommand, error) {
	var claimed []InboxCommand
	err := s.WithTx(ctx, func(tx Store) error {
		var err error
		claimed, err = tx.ClaimPendingCommands(ctx, limit)
		return err
	})
	return claimed, err
}

func (s *SQLiteStore) ReleaseProcessingCommands(ctx context.Context) (int, error) {
	return releaseProcessingCommands(ctx, s.db)
}

func (s *SQLiteStore) MarkCommandProcessed(ctx context.Context, id string, at time.Time) error {
	return finishCommand(ctx, s.db, "MarkCommandProcessed", id, CommandProcessed, "", at)
}

func (s *SQLiteStore) MarkCommandFailed(ctx context.Context, id, message string, at time.Time) error {
	return finishCommand(ctx, s.db, "MarkCommandFailed", id, CommandFailed, message, at)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) GetChargeByKey(ctx context.Context, key domain.BusinessKey) (*domain.Charge, error) {
	return getChargeByKey(ctx, s.tx, key)
}

func (s *txSQLiteStore) CreateCharge(ctx context.Context, charge *domain.Charge) error {
	return createCharge(ctx, s.tx, charge)
}

func (s *txSQLiteStore) UpdateCharge(ctx context.Context, charge *domain.Charge) error {
	return updateCharge(ctx, s.tx, charge)
}

func (s *txSQLiteStore) CreateChargeLink(ctx context.Context, link *domain.ChargeLink) error {
	return createChargeLink(ctx, s.tx, link)
}

func (s *txSQLiteStore) ListChargeLinks(ctx context.Context, chargeID string, opts ListOptions) ([]domain.ChargeLink, error) {
	return listChargeLinks(ctx, s.tx, chargeID, opts)
}

func (s *txSQLiteStore) ListChargeLinksForMeteringPoint(ctx context.Context, chargeID, meteringPointID string) ([]domain.ChargeLink, error) {
	return listChargeLinksForMeteringPoint(ctx, s.tx, chargeID, meteringPointID)
}

func (s *txSQLiteStore) EnqueueCommand(ctx context.Context, cmd *InboxCommand) error {
	return enqueueCommand(ctx, s.tx, cmd)
}

func (s *txSQLiteStore) GetCommand(ctx context.Context, id string) (*InboxCommand, error) {
	return getCommand(ctx, s.tx, id)
}

func (s *txSQLiteStore) ClaimPendingCommands(ctx context.Context, limit int) ([]InboxCommand, error) {
	return claimPendingCommands(ctx, s.tx, limit)
}

func (s *txSQLiteStore) ReleaseProcessingCommands(ctx context.Context) (int, error) {
	return releaseProcessingCommands(ctx, s.tx)
}

func (s *txSQLiteStore) MarkCommandProcessed(ctx context.Context, id string, at time.Time) error {
	return finishCommand(ctx, s.tx, "MarkCommandProcessed", id, CommandProcessed, "", at)
}

func (s *txSQLiteStore) MarkCommandFailed(ctx context.Context, id, message string, at time.Time) error {
	return finishCommand(ctx, s.tx, "MarkCommandFailed", id, CommandFailed, message, at)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Charge Rows
// =============================================================================

type chargeRow struct {
	ID                     string `db:"id"`
	SenderProvidedChargeID string `db:"sender_provided_charge_id"`
	OwnerID                string `db:"owner_id"`
	Type                   string `db:"charge_type"`
	Resolution             string `db:"resolution"`
	TaxIndicator           bool   `db:"tax_indicator"`
	TransparentInvoicing   bool   `db:"transparent_invoicing"`
	Version                int    `db:"version"`
	CreatedAt              string `db:"created_at"`
	UpdatedAt              string `db:"updated_at"`
}

type periodRow struct {
	Name                 string `db:"name"`
	Description          string `db:"description"`
	VatClassification    string `db:"vat_classification"`
	TransparentInvoicing bool   `db:"transparent_invoicing"`
	StartDateTime        string `db:"start_date_time"`
	EndDateTime          string `db:"end_date_time"`
	IsStop               bool   `db:"is_stop"`
	ReceivedAt           string `db:"received_at"`
	ReceivedOrder        int    `db:"received_order"`
}

type pointRow struct {
	Position int    `db:"position"`
	Price    string `db:"price"`
	Time     string `db:"time"`
}

// =============================================================================
// Charge Implementation
// =============================================================================

func getChargeByKey(ctx context.Context, exec executor, key domain.BusinessKey) (*domain.Charge, error) {
	query := `
		SELECT id, sender_provided_charge_id, owner_id, charge_type, resolution,
			tax_indicator, transparent_invoicing, version, created_at, updated_at
		FROM charges
		WHERE sender_provided_charge_id = ? AND owner_id = ? AND charge_type = ?`

	var row chargeRow
	err := exec.GetContext(ctx, &row, query, key.ChargeID, key.OwnerID, string(key.Type))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetChargeByKey", "charge", key.String(), "charge not found", ErrNotFound)
		}
		return nil, NewStoreError("GetChargeByKey", "charge", key.String(), err.Error(), err)
	}

	var periods []periodRow
	err = exec.SelectContext(ctx, &periods, `
		SELECT name, description, vat_classification, transparent_invoicing,
			start_date_time, end_date_time, is_stop, received_at, received_order
		FROM charge_periods WHERE charge_id = ? ORDER BY start_date_time`, row.ID)
	if err != nil {
		return nil, NewStoreError("GetChargeByKey", "charge", row.ID, err.Error(), err)
	}

	var points []pointRow
	err = exec.SelectContext(ctx, &points, `
		SELECT position, price, time FROM charge_points WHERE charge_id = ? ORDER BY time, position`, row.ID)
	if err != nil {
		return nil, NewStoreError("GetChargeByKey", "charge", row.ID, err.Error(), err)
	}

	return rowsToCharge(&row, periods, points)
}

func createCharge(ctx context.Context, exec executor, charge *domain.Charge) error {
	query := `
		INSERT INTO charges (
			id, sender_provided_charge_id, owner_id, charge_type, resolution,
			tax_indicator, transparent_invoicing, version, created_at, updated_at
		) VALUES (
			:id, :sender_provided_charge_id, :owner_id, :charge_type, :resolution,
			:tax_indicator, :transparent_invoicing, 1, :created_at, :updated_at
		)`

	_, err := exec.NamedExecContext(ctx, query, chargeToRow(charge))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: charges.id") {
			return NewStoreError("CreateCharge", "charge", charge.ID, "charge with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: charges.sender_provided_charge_id") {
			return NewStoreError("CreateCharge", "charge", charge.Key().String(), "charge with this business key already exists", ErrDuplicateKey)
		}
		return NewStoreError("CreateCharge", "charge", charge.ID, err.Error(), err)
	}

	if err := replaceTimeline(ctx, exec, "CreateCharge", charge); err != nil {
		return err
	}

	charge.MarkPersisted(1)
	return nil
}

func updateCharge(ctx context.Context, exec executor, charge *domain.Charge) error {
	query := `
		UPDATE charges SET
			resolution = :resolution,
			tax_indicator = :tax_indicator,
			transparent_invoicing = :transparent_invoicing,
			updated_at = :updated_at,
			version = version + 1
		WHERE id = :id AND version = :version`

	row := chargeToRow(charge)
	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateCharge", "charge", charge.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		var exists int
		if err := exec.GetContext(ctx, &exists, `SELECT COUNT(*) FROM charges WHERE id = ?`, charge.ID); err != nil {
			return NewStoreError("UpdateCharge", "charge", charge.ID, err.Error(), err)
		}
		if exists == 0 {
			return NewStoreError("UpdateCharge", "charge", charge.ID, "charge not found", ErrNotFound)
		}
		return NewStoreError("UpdateCharge", "charge", charge.ID,
			fmt.Sprintf("stored version differs from %d", charge.Version()), ErrVersionConflict)
	}

	if err := replaceTimeline(ctx, exec, "UpdateCharge", charge); err != nil {
		return err
	}

	charge.MarkPersisted(charge.Version() + 1)
	return nil
}

// replaceTimeline rewrites the periods and points of a charge.
func replaceTimeline(ctx context.Context, exec executor, op string, charge *domain.Charge) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM charge_periods WHERE charge_id = ?`, charge.ID); err != nil {
		return NewStoreError(op, "charge", charge.ID, err.Error(), err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM charge_points WHERE charge_id = ?`, charge.ID); err != nil {
		return NewStoreError(op, "charge", charge.ID, err.Error(), err)
	}

	for _, p := range charge.Periods() {
		_, err := exec.NamedExecContext(ctx, `
			INSERT INTO charge_periods (
				charge_id, name, description, vat_classification, transparent_invoicing,
				start_date_time, end_date_time, is_stop, received_at, received_order
			) VALUES (
				:charge_id, :name, :description, :vat_classification, :transparent_invoicing,
				:start_date_time, :end_date_time, :is_stop, :received_at, :received_order
			)`, map[string]any{
			"charge_id":             charge.ID,
			"name":                  p.Name,
			"description":           p.Description,
			"vat_classification":    string(p.VatClassification),
			"transparent_invoicing": p.TransparentInvoicing,
			"start_date_time":       formatTime(p.StartDateTime),
			"end_date_time":         formatTime(p.EndDateTime),
			"is_stop":               p.IsStop,
			"received_at":           formatTime(p.ReceivedAt),
			"received_order":        p.ReceivedOrder,
		})
		if err != nil {
			return NewStoreError(op, "charge_period", charge.ID, err.Error(), err)
		}
	}

	for _, p := range charge.Points() {
		_, err := exec.ExecContext(ctx,
			`INSERT INTO charge_points (charge_id, position, price, time) VALUES (?, ?, ?, ?)`,
			charge.ID, p.Position, p.Price.String(), formatTime(p.Time))
		if err != nil {
			return NewStoreError(op, "charge_point", charge.ID, err.Error(), err)
		}
	}

	return nil
}

// =============================================================================
// Charge Link Implementation
// =============================================================================

type chargeLinkRow struct {
	ID              string `db:"id"`
	ChargeID        string `db:"charge_id"`
	MeteringPointID string `db:"metering_point_id"`
	Factor          int    `db:"factor"`
	StartDateTime   string `db:"start_date_time"`
	EndDateTime     string `db:"end_date_time"`
	OperationID     string `db:"operation_id"`
	CreatedAt       string `db:"created_at"`
}

func createChargeLink(ctx context.Context, exec executor, link *domain.ChargeLink) error {
	query := `
		INSERT INTO charge_links (
			id, charge_id, metering_point_id, factor, start_date_time,
			end_date_time, operation_id, created_at
		) VALUES (
			:id, :charge_id, :metering_point_id, :factor, :start_date_time,
			:end_date_time, :operation_id, :created_at
		)`

	row := chargeLinkRow{
		ID:              link.ID,
		ChargeID:        link.ChargeID,
		MeteringPointID: link.MeteringPointID,
		Factor:          link.Factor,
		StartDateTime:   formatTime(link.StartDateTime),
		EndDateTime:     formatTime(link.EndDateTime),
		OperationID:     link.OperationID,
		CreatedAt:       formatTime(link.CreatedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: charge_links.id") {
			return NewStoreError("CreateChargeLink", "charge_link", link.ID, "charge link with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateChargeLink", "charge_link", link.ID, "charge does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateChargeLink", "charge_link", link.ID, err.Error(), err)
	}

	return nil
}

func listChargeLinks(ctx context.Context, exec executor, chargeID string, opts ListOptions) ([]domain.ChargeLink, error) {
	opts = opts.Normalize()
	query := `
		SELECT * FROM charge_links WHERE charge_id = ?
		ORDER BY metering_point_id, start_date_time LIMIT ? OFFSET ?`

	var rows []chargeLinkRow
	if err := exec.SelectContext(ctx, &rows, query, chargeID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListChargeLinks", "charge_link", chargeID, err.Error(), err)
	}
	return rowsToChargeLinks(rows)
}

func listChargeLinksForMeteringPoint(ctx context.Context, exec executor, chargeID, meteringPointID string) ([]domain.ChargeLink, error) {
	query := `
		SELECT * FROM charge_links WHERE charge_id = ? AND metering_point_id = ?
		ORDER BY start_date_time`

	var rows []chargeLinkRow
	if err := exec.SelectContext(ctx, &rows, query, chargeID, meteringPointID); err != nil {
		return nil, NewStoreError("ListChargeLinksForMeteringPoint", "charge_link", chargeID, err.Error(), err)
	}
	return rowsToChargeLinks(rows)
}

// =============================================================================
// Command Inbox Implementation
// =============================================================================

type inboxRow struct {
	ID          string  `db:"id"`
	Kind        string  `db:"kind"`
	DocumentID  string  `db:"document_id"`
	Payload     string  `db:"payload"`
	Status      string  `db:"status"`
	Error       string  `db:"error"`
	Attempts    int     `db:"attempts"`
	ReceivedAt  string  `db:"received_at"`
	ProcessedAt *string `db:"processed_at"`
}

func enqueueCommand(ctx context.Context, exec executor, cmd *InboxCommand) error {
	if cmd.Status == "" {
		cmd.Status = CommandPending
	}

	query := `
		INSERT INTO command_inbox (id, kind, document_id, payload, status, error, attempts, received_at)
		VALUES (:id, :kind, :document_id, :payload, :status, :error, :attempts, :received_at)`

	row := map[string]any{
		"id":          cmd.ID,
		"kind":        string(cmd.Kind),
		"document_id": cmd.DocumentID,
		"payload":     string(cmd.Payload),
		"status":      string(cmd.Status),
		"error":       cmd.Error,
		"attempts":    cmd.Attempts,
		"received_at": formatTime(cmd.ReceivedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: command_inbox.id") {
			return NewStoreError("EnqueueCommand", "command", cmd.ID, "command with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("EnqueueCommand", "command", cmd.ID, err.Error(), err)
	}
	return nil
}

func getCommand(ctx context.Context, exec executor, id string) (*InboxCommand, error) {
	var row inboxRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM command_inbox WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetCommand", "command", id, "command not found", ErrNotFound)
		}
		return nil, NewStoreError("GetCommand", "command", id, err.Error(), err)
	}
	return rowToCommand(&row)
}

func claimPendingCommands(ctx context.Context, exec executor, limit int) ([]InboxCommand, error) {
	if limit <= 0 {
		limit = DefaultListOptions().Limit
	}

	var rows []inboxRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM command_inbox WHERE status = ? ORDER BY received_at, id LIMIT ?`,
		string(CommandPending), limit)
	if err != nil {
		return nil, NewStoreError("ClaimPendingCommands", "command", "", err.Error(), err)
	}

	commands := make([]InboxCommand, 0, len(rows))
	for i := range rows {
		_, err := exec.ExecContext(ctx,
			`UPDATE command_inbox SET status = ?, attempts = attempts + 1 WHERE id = ?`,
			string(CommandProcessing), rows[i].ID)
		if err != nil {
			return nil, NewStoreError("ClaimPendingCommands", "command", rows[i].ID, err.Error(), err)
		}

		cmd, err := rowToCommand(&rows[i])
		if err != nil {
			return nil, err
		}
		cmd.Status = CommandProcessing
		cmd.Attempts++
		commands = append(commands, *cmd)
	}

	return commands, nil
}

func releaseProcessingCommands(ctx context.Context, exec executor) (int, error) {
	result, err := exec.ExecContext(ctx,
		`UPDATE command_inbox SET status = ? WHERE status = ?`,
		string(CommandPending), string(CommandProcessing))
	if err != nil {
		return 0, NewStoreError("ReleaseProcessingCommands", "command", "", err.Error(), err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, NewStoreError("ReleaseProcessingCommands", "command", "", err.Error(), err)
	}
	return int(n), nil
}

func finishCommand(ctx context.Context, exec executor, op, id string, status CommandStatus, message string, at time.Time) error {
	result, err := exec.ExecContext(ctx,
		`UPDATE command_inbox SET status = ?, error = ?, processed_at = ? WHERE id = ?`,
		string(status), message, formatTime(at), id)
	if err != nil {
		return NewStoreError(op, "command", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError(op, "command", id, "command not found", ErrNotFound)
	}
	return nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func chargeToRow(charge *domain.Charge) chargeRow {
	return chargeRow{
		ID:                     charge.ID,
		SenderProvidedChargeID: charge.SenderProvidedChargeID,
		OwnerID:                charge.OwnerID,
		Type:                   string(charge.Type),
		Resolution:             string(charge.Resolution),
		TaxIndicator:           charge.TaxIndicator,
		TransparentInvoicing:   charge.TransparentInvoicing,
		Version:                charge.Version(),
		CreatedAt:              formatTime(charge.CreatedAt),
		UpdatedAt:              formatTime(charge.UpdatedAt),
	}
}

// rowsToCharge converts database rows to a domain.Charge. The timeline is
// checked on the way in.
func rowsToCharge(row *chargeRow, periods []periodRow, points []pointRow) (*domain.Charge, error) {
	createdAt, _ := parseTime(row.CreatedAt)
	updatedAt, _ := parseTime(row.UpdatedAt)

	state := domain.ChargeState{
		ID:                     row.ID,
		SenderProvidedChargeID: row.SenderProvidedChargeID,
		OwnerID:                row.OwnerID,
		Type:                   domain.ChargeType(row.Type),
		Resolution:             domain.Resolution(row.Resolution),
		TaxIndicator:           row.TaxIndicator,
		TransparentInvoicing:   row.TransparentInvoicing,
		CreatedAt:              createdAt,
		UpdatedAt:              updatedAt,
		Version:                row.Version,
	}

	for _, p := range periods {
		start, err := parseTime(p.StartDateTime)
		if err != nil {
			return nil, NewStoreError("rowsToCharge", "charge_period", row.ID, "failed to parse start", ErrInvalidData)
		}
		end, err := parseTime(p.EndDateTime)
		if err != nil {
			return nil, NewStoreError("rowsToCharge", "charge_period", row.ID, "failed to parse end", ErrInvalidData)
		}
		receivedAt, _ := parseTime(p.ReceivedAt)

		state.Periods = append(state.Periods, domain.ChargePeriod{
			Name:                 p.Name,
			Description:          p.Description,
			VatClassification:    domain.VatClassification(p.VatClassification),
			TransparentInvoicing: p.TransparentInvoicing,
			StartDateTime:        start,
			EndDateTime:          end,
			IsStop:               p.IsStop,
			ReceivedAt:           receivedAt,
			ReceivedOrder:        p.ReceivedOrder,
		})
	}

	for _, p := range points {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, NewStoreError("rowsToCharge", "charge_point", row.ID, "failed to parse price", ErrInvalidData)
		}
		t, _ := parseTime(p.Time)
		state.Points = append(state.Points, domain.Point{Position: p.Position, Price: price, Time: t})
	}

	charge, err := domain.RestoreCharge(state)
	if err != nil {
		return nil, NewStoreError("rowsToCharge", "charge", row.ID, err.Error(), ErrInvalidData)
	}
	return charge, nil
}

func rowsToChargeLinks(rows []chargeLinkRow) ([]domain.ChargeLink, error) {
	links := make([]domain.ChargeLink, 0, len(rows))
	for _, row := range rows {
		start, err := parseTime(row.StartDateTime)
		if err != nil {
			return nil, NewStoreError("rowsToChargeLinks", "charge_link", row.ID, "failed to parse start", ErrInvalidData)
		}
		end, err := parseTime(row.EndDateTime)
		if err != nil {
			return nil, NewStoreError("rowsToChargeLinks", "charge_link", row.ID, "failed to parse end", ErrInvalidData)
		}
		createdAt, _ := parseTime(row.CreatedAt)

		links = append(links, domain.ChargeLink{
			ID:              row.ID,
			ChargeID:        row.ChargeID,
			MeteringPointID: row.MeteringPointID,
			Factor:          row.Factor,
			StartDateTime:   start,
			EndDateTime:     end,
			OperationID:     row.OperationID,
			CreatedAt:       createdAt,
		})
	}
	return links, nil
}

func rowToCommand(row *inboxRow) (*InboxCommand, error) {
	receivedAt, err := parseTime(row.ReceivedAt)
	if err != nil {
		return nil, NewStoreError("rowToCommand", "command", row.ID, "failed to parse received_at", ErrInvalidData)
	}

	var processedAt *time.Time
	if row.ProcessedAt != nil && *row.ProcessedAt != "" {
		t, _ := parseTime(*row.ProcessedAt)
		processedAt = &t
	}

	return &InboxCommand{
		ID:          row.ID,
		Kind:        CommandKind(row.Kind),
		DocumentID:  row.DocumentID,
		Payload:     []byte(row.Payload),
		Status:      CommandStatus(row.Status),
		Error:       row.Error,
		Attempts:    row.Attempts,
		ReceivedAt:  receivedAt,
		ProcessedAt: processedAt,
	}, nil
}
