/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements booking.Store and booking.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  room_types:     Authoritative capacity catalog
  availability:   Per-(room type, date) remaining-unit ledger
  reservations:   Booking rows with lifecycle status (never deleted)
  payment_proofs: Guest-uploaded payment evidence
  webhook_events: Processed gateway events, keyed by external payment id
  corrections:    Reconciliation audit trail

LAZY LEDGER ROWS:
  The availability table holds no row for a date nobody has touched.
  Reads and debits initialize rows on demand at the room type's
  total_quantity, so creating a room type costs O(1) regardless of how
  far ahead guests may book.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.
  Transaction-bound views run under the mutex already held by WithTx and
  never re-acquire it; all query helpers take a dbtx so the same code
  serves both the raw connection and an open transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/booking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  controller := booking.NewController(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/booking-engine/booking"
)

// dbtx is the subset of *sql.DB and *sql.Tx the query helpers need, so
// every operation can run either standalone or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements booking.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Capacity catalog
	CREATE TABLE IF NOT EXISTS room_types (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		total_quantity INTEGER NOT NULL,
		nightly_rate TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_types_property
		ON room_types(property_id);

	-- Availability ledger: one row per (room type, date), created lazily
	CREATE TABLE IF NOT EXISTS availability (
		room_type_id TEXT NOT NULL,
		date TEXT NOT NULL,
		available_count INTEGER NOT NULL,
		PRIMARY KEY (room_type_id, date)
	);

	-- Reservations (never deleted; terminal rows are kept for audit)
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		room_type_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_amount TEXT NOT NULL,
		created_at TEXT NOT NULL,
		payment_deadline TEXT NOT NULL,
		confirmed_at TEXT,
		cancelled_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_user
		ON reservations(user_id, created_at DESC);

	-- Sweep query hot path
	CREATE INDEX IF NOT EXISTS idx_reservations_status_deadline
		ON reservations(status, payment_deadline);

	-- Payment proofs (latest upload wins per reservation)
	CREATE TABLE IF NOT EXISTS payment_proofs (
		id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL UNIQUE,
		file_ref TEXT NOT NULL,
		uploaded_at TEXT NOT NULL
	);

	-- Processed webhook events; the primary key IS the idempotency check
	CREATE TABLE IF NOT EXISTS webhook_events (
		external_payment_id TEXT PRIMARY KEY,
		reservation_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	-- Reconciliation audit trail
	CREATE TABLE IF NOT EXISTS corrections (
		id TEXT PRIMARY KEY,
		room_type_id TEXT NOT NULL,
		date TEXT NOT NULL,
		from_count INTEGER NOT NULL,
		to_count INTEGER NOT NULL,
		corrected_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_corrections_room_type
		ON corrections(room_type_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CAPACITY CATALOG
// =============================================================================

// SaveRoomType inserts or updates a room type definition.
func (s *Store) SaveRoomType(ctx context.Context, rt booking.RoomType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRoomTypeIn(ctx, s.db, rt)
}

func (s *Store) saveRoomTypeIn(ctx context.Context, db dbtx, rt booking.RoomType) error {
	query := `
		INSERT INTO room_types (id, property_id, owner_id, name, total_quantity, nightly_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_id = excluded.property_id,
			owner_id = excluded.owner_id,
			name = excluded.name,
			total_quantity = excluded.total_quantity,
			nightly_rate = excluded.nightly_rate
	`

	createdAt := rt.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		rt.ID, rt.PropertyID, rt.OwnerID, rt.Name,
		rt.TotalQuantity, rt.NightlyRate.String(),
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save room type: %w", err)
	}
	return nil
}

// GetRoomType returns a room type, or booking.ErrRoomTypeNotFound.
func (s *Store) GetRoomType(ctx context.Context, id booking.RoomTypeID) (*booking.RoomType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRoomTypeIn(ctx, s.db, id)
}

func (s *Store) getRoomTypeIn(ctx context.Context, db dbtx, id booking.RoomTypeID) (*booking.RoomType, error) {
	var (
		rt          booking.RoomType
		nightlyRate string
		createdAt   string
	)

	err := db.QueryRowContext(ctx,
		"SELECT id, property_id, owner_id, name, total_quantity, nightly_rate, created_at FROM room_types WHERE id = ?",
		id,
	).Scan(&rt.ID, &rt.PropertyID, &rt.OwnerID, &rt.Name, &rt.TotalQuantity, &nightlyRate, &createdAt)

	if err == sql.ErrNoRows {
		return nil, booking.ErrRoomTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room type: %w", err)
	}

	rt.NightlyRate, err = decimal.NewFromString(nightlyRate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nightly rate: %w", err)
	}
	rt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rt, nil
}

// TotalQuantity returns the authoritative capacity for a room type.
func (s *Store) TotalQuantity(ctx context.Context, id booking.RoomTypeID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, err := s.getRoomTypeIn(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	return rt.TotalQuantity, nil
}

// UpdateRoomTypeQuantity changes authoritative capacity. Existing
// availability rows are left alone; reconciliation repairs oversold ones.
func (s *Store) UpdateRoomTypeQuantity(ctx context.Context, id booking.RoomTypeID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateRoomTypeQuantityIn(ctx, s.db, id, quantity)
}

func (s *Store) updateRoomTypeQuantityIn(ctx context.Context, db dbtx, id booking.RoomTypeID, quantity int) error {
	result, err := db.ExecContext(ctx,
		"UPDATE room_types SET total_quantity = ? WHERE id = ?",
		quantity, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update room type quantity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return booking.ErrRoomTypeNotFound
	}
	return nil
}

// =============================================================================
// AVAILABILITY LEDGER
// =============================================================================

// ensureEntryIn lazily creates the ledger row for one date at the room
// type's total quantity. A no-op if the row exists.
func (s *Store) ensureEntryIn(ctx context.Context, db dbtx, id booking.RoomTypeID, date booking.Date) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO availability (room_type_id, date, available_count)
		SELECT id, ?, total_quantity FROM room_types WHERE id = ?
		ON CONFLICT(room_type_id, date) DO NOTHING
	`, date.String(), id)
	if err != nil {
		return fmt.Errorf("failed to initialize availability: %w", err)
	}
	// Zero rows means either the entry already existed or the room type
	// does not exist. Disambiguate only in the second case.
	if affected, _ := result.RowsAffected(); affected == 0 {
		var exists int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM availability WHERE room_type_id = ? AND date = ?",
			id, date.String(),
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return booking.ErrRoomTypeNotFound
		}
	}
	return nil
}

// GetAvailability returns the remaining units for one date.
func (s *Store) GetAvailability(ctx context.Context, id booking.RoomTypeID, date booking.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAvailabilityIn(ctx, s.db, id, date)
}

func (s *Store) getAvailabilityIn(ctx context.Context, db dbtx, id booking.RoomTypeID, date booking.Date) (int, error) {
	if err := s.ensureEntryIn(ctx, db, id, date); err != nil {
		return 0, err
	}

	var count int
	err := db.QueryRowContext(ctx,
		"SELECT available_count FROM availability WHERE room_type_id = ? AND date = ?",
		id, date.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read availability: %w", err)
	}
	return count, nil
}

// GetAvailabilityRange returns one reading per date in the range, in order.
func (s *Store) GetAvailabilityRange(ctx context.Context, id booking.RoomTypeID, rng booking.DateRange) ([]booking.DayAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAvailabilityRangeIn(ctx, s.db, id, rng)
}

func (s *Store) getAvailabilityRangeIn(ctx context.Context, db dbtx, id booking.RoomTypeID, rng booking.DateRange) ([]booking.DayAvailability, error) {
	days := make([]booking.DayAvailability, 0, rng.Nights())
	for _, d := range rng.Dates() {
		count, err := s.getAvailabilityIn(ctx, db, id, d)
		if err != nil {
			return nil, err
		}
		days = append(days, booking.DayAvailability{Date: d, Available: count})
	}
	return days, nil
}

// TryDebit atomically decrements every date in the range by amount, or
// fails without touching any of them.
func (s *Store) TryDebit(ctx context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.tryDebitIn(ctx, sqlTx, id, rng, amount); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) tryDebitIn(ctx context.Context, db dbtx, id booking.RoomTypeID, rng booking.DateRange, amount int) error {
	// Check every date before decrementing any of them.
	for _, d := range rng.Dates() {
		count, err := s.getAvailabilityIn(ctx, db, id, d)
		if err != nil {
			return err
		}
		if count < amount {
			return &booking.InsufficientCapacityError{
				RoomTypeID: id,
				Date:       d,
				Requested:  amount,
				Available:  count,
			}
		}
	}

	for _, d := range rng.Dates() {
		result, err := db.ExecContext(ctx, `
			UPDATE availability SET available_count = available_count - ?
			WHERE room_type_id = ? AND date = ? AND available_count >= ?
		`, amount, id, d.String(), amount)
		if err != nil {
			return fmt.Errorf("failed to debit availability: %w", err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			// The check above guarantees this cannot happen inside one
			// transaction; surface it loudly rather than half-debit.
			return fmt.Errorf("availability changed mid-debit for %s on %s", id, d)
		}
	}
	return nil
}

// Credit increments every date in the range by amount, capped at the room
// type's total quantity. Returns the dates that were clamped.
func (s *Store) Credit(ctx context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) ([]booking.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	clamped, err := s.creditIn(ctx, sqlTx, id, rng, amount)
	if err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, err
	}
	return clamped, nil
}

func (s *Store) creditIn(ctx context.Context, db dbtx, id booking.RoomTypeID, rng booking.DateRange, amount int) ([]booking.Date, error) {
	rt, err := s.getRoomTypeIn(ctx, db, id)
	if err != nil {
		return nil, err
	}

	var clamped []booking.Date
	for _, d := range rng.Dates() {
		count, err := s.getAvailabilityIn(ctx, db, id, d)
		if err != nil {
			return nil, err
		}

		next := count + amount
		if next > rt.TotalQuantity {
			next = rt.TotalQuantity
			clamped = append(clamped, d)
		}

		if _, err := db.ExecContext(ctx,
			"UPDATE availability SET available_count = ? WHERE room_type_id = ? AND date = ?",
			next, id, d.String(),
		); err != nil {
			return nil, fmt.Errorf("failed to credit availability: %w", err)
		}
	}
	return clamped, nil
}

// ListOversold returns every ledger row whose count exceeds the room
// type's authoritative capacity.
func (s *Store) ListOversold(ctx context.Context) ([]booking.OversoldEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.room_type_id, a.date, a.available_count, rt.total_quantity
		FROM availability a
		JOIN room_types rt ON rt.id = a.room_type_id
		WHERE a.available_count > rt.total_quantity
		ORDER BY a.room_type_id, a.date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query oversold rows: %w", err)
	}
	defer rows.Close()

	var entries []booking.OversoldEntry
	for rows.Next() {
		var entry booking.OversoldEntry
		var date string
		if err := rows.Scan(&entry.RoomTypeID, &date, &entry.Available, &entry.TotalQuantity); err != nil {
			return nil, err
		}
		entry.Date, err = booking.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse availability date: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClampAvailability lowers one row to max if it currently exceeds max.
// The condition lives in the UPDATE itself, so a concurrent repair of the
// same row makes this a no-op rather than a double write.
func (s *Store) ClampAvailability(ctx context.Context, id booking.RoomTypeID, date booking.Date, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clampAvailabilityIn(ctx, s.db, id, date, max)
}

func (s *Store) clampAvailabilityIn(ctx context.Context, db dbtx, id booking.RoomTypeID, date booking.Date, max int) (bool, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE availability SET available_count = ?
		WHERE room_type_id = ? AND date = ? AND available_count > ?
	`, max, id, date.String(), max)
	if err != nil {
		return false, fmt.Errorf("failed to clamp availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// SaveReservation persists a new reservation row.
func (s *Store) SaveReservation(ctx context.Context, res booking.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveReservationIn(ctx, s.db, res)
}

func (s *Store) saveReservationIn(ctx context.Context, db dbtx, res booking.Reservation) error {
	query := `
		INSERT INTO reservations
		(id, user_id, room_type_id, property_id, start_date, end_date, status,
		 payment_amount, created_at, payment_deadline, confirmed_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		res.ID, res.UserID, res.RoomTypeID, res.PropertyID,
		res.Range.Start.String(), res.Range.End.String(),
		res.Status, res.PaymentAmount.String(),
		res.CreatedAt.Format(time.RFC3339),
		res.PaymentDeadline.Format(time.RFC3339),
		nullTime(res.ConfirmedAt), nullTime(res.CancelledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	return nil
}

const reservationColumns = `id, user_id, room_type_id, property_id, start_date, end_date, status,
	payment_amount, created_at, payment_deadline, confirmed_at, cancelled_at`

// GetReservation returns a reservation, or booking.ErrReservationNotFound.
func (s *Store) GetReservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getReservationIn(ctx, s.db, id)
}

func (s *Store) getReservationIn(ctx context.Context, db dbtx, id booking.ReservationID) (*booking.Reservation, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id)

	res, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, booking.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListReservationsByUser returns a user's reservations, newest first.
func (s *Store) ListReservationsByUser(ctx context.Context, userID booking.UserID) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listReservationsByUserIn(ctx, s.db, userID)
}

func (s *Store) listReservationsByUserIn(ctx context.Context, db dbtx, userID booking.UserID) ([]booking.Reservation, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE user_id = ? ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []booking.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *res)
	}
	return reservations, rows.Err()
}

// TransitionReservation moves a reservation to a new status if its current
// status is one of from. The UPDATE conditions on the status it just read,
// so the check and the write cannot interleave with another transition.
func (s *Store) TransitionReservation(ctx context.Context, id booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus, at time.Time) (*booking.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionIn(ctx, s.db, id, from, to, at)
}

func (s *Store) transitionIn(ctx context.Context, db dbtx, id booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus, at time.Time) (*booking.Reservation, error) {
	current, err := s.getReservationIn(ctx, db, id)
	if err != nil {
		return nil, err
	}

	matched := false
	for _, f := range from {
		if current.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, &booking.InvalidTransitionError{
			ReservationID: id,
			Current:       current.Status,
			Attempted:     to,
		}
	}

	stampColumn := ""
	switch to {
	case booking.StatusConfirmed:
		stampColumn = "confirmed_at"
	case booking.StatusRejected, booking.StatusExpired, booking.StatusCancelled:
		stampColumn = "cancelled_at"
	}

	query := "UPDATE reservations SET status = ?"
	args := []any{to}
	if stampColumn != "" {
		query += ", " + stampColumn + " = ?"
		args = append(args, at.Format(time.RFC3339))
	}
	query += " WHERE id = ? AND status = ?"
	args = append(args, id, current.Status)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to transition reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &booking.InvalidTransitionError{
			ReservationID: id,
			Current:       current.Status,
			Attempted:     to,
		}
	}

	return s.getReservationIn(ctx, db, id)
}

// FindOverdue returns reservations in one of the given statuses whose
// payment deadline is before now.
func (s *Store) FindOverdue(ctx context.Context, now time.Time, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findOverdueIn(ctx, s.db, now, statuses)
}

func (s *Store) findOverdueIn(ctx context.Context, db dbtx, now time.Time, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, st)
	}
	args = append(args, now.Format(time.RFC3339))

	query := "SELECT " + reservationColumns + ` FROM reservations
		WHERE status IN (` + strings.Join(placeholders, ", ") + `)
		  AND payment_deadline < ?
		ORDER BY payment_deadline ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue reservations: %w", err)
	}
	defer rows.Close()

	var reservations []booking.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *res)
	}
	return reservations, rows.Err()
}

// scannable covers both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanReservation(row scannable) (*booking.Reservation, error) {
	var (
		res             booking.Reservation
		startDate       string
		endDate         string
		paymentAmount   string
		createdAt       string
		paymentDeadline string
		confirmedAt     sql.NullString
		cancelledAt     sql.NullString
	)

	err := row.Scan(
		&res.ID, &res.UserID, &res.RoomTypeID, &res.PropertyID,
		&startDate, &endDate, &res.Status,
		&paymentAmount, &createdAt, &paymentDeadline,
		&confirmedAt, &cancelledAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}

	res.Range.Start, err = booking.ParseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start date: %w", err)
	}
	res.Range.End, err = booking.ParseDate(endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse end date: %w", err)
	}
	res.PaymentAmount, err = decimal.NewFromString(paymentAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment amount: %w", err)
	}
	res.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	res.PaymentDeadline, _ = time.Parse(time.RFC3339, paymentDeadline)
	res.ConfirmedAt = parseNullTime(confirmedAt)
	res.CancelledAt = parseNullTime(cancelledAt)

	return &res, nil
}

// =============================================================================
// PAYMENT PROOFS
// =============================================================================

// SavePaymentProof stores payment evidence for a reservation. A second
// upload replaces the first.
func (s *Store) SavePaymentProof(ctx context.Context, proof booking.PaymentProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savePaymentProofIn(ctx, s.db, proof)
}

func (s *Store) savePaymentProofIn(ctx context.Context, db dbtx, proof booking.PaymentProof) error {
	query := `
		INSERT INTO payment_proofs (id, reservation_id, file_ref, uploaded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(reservation_id) DO UPDATE SET
			id = excluded.id,
			file_ref = excluded.file_ref,
			uploaded_at = excluded.uploaded_at
	`

	_, err := db.ExecContext(ctx, query,
		proof.ID, proof.ReservationID, proof.FileRef,
		proof.UploadedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment proof: %w", err)
	}
	return nil
}

// GetPaymentProof returns the proof attached to a reservation.
func (s *Store) GetPaymentProof(ctx context.Context, id booking.ReservationID) (*booking.PaymentProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPaymentProofIn(ctx, s.db, id)
}

func (s *Store) getPaymentProofIn(ctx context.Context, db dbtx, id booking.ReservationID) (*booking.PaymentProof, error) {
	var (
		proof      booking.PaymentProof
		uploadedAt string
	)

	err := db.QueryRowContext(ctx,
		"SELECT id, reservation_id, file_ref, uploaded_at FROM payment_proofs WHERE reservation_id = ?",
		id,
	).Scan(&proof.ID, &proof.ReservationID, &proof.FileRef, &uploadedAt)

	if err == sql.ErrNoRows {
		return nil, booking.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment proof: %w", err)
	}

	proof.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
	return &proof, nil
}

// =============================================================================
// WEBHOOK EVENTS
// =============================================================================

// RecordWebhookEvent stores a processed payment event. A second record for
// the same external payment id returns (true, nil) and writes nothing.
func (s *Store) RecordWebhookEvent(ctx context.Context, ev booking.WebhookEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordWebhookEventIn(ctx, s.db, ev)
}

func (s *Store) recordWebhookEventIn(ctx context.Context, db dbtx, ev booking.WebhookEvent) (bool, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO webhook_events (external_payment_id, reservation_id, outcome, processed_at)
		VALUES (?, ?, ?, ?)
	`, ev.ExternalPaymentID, ev.ReservationID, ev.Outcome,
		ev.ProcessedAt.Format(time.RFC3339))

	if err != nil {
		if isUniqueConstraintError(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return false, nil
}

// =============================================================================
// RECONCILIATION AUDIT
// =============================================================================

// SaveCorrection persists one reconciliation audit record.
func (s *Store) SaveCorrection(ctx context.Context, c booking.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCorrectionIn(ctx, s.db, c)
}

func (s *Store) saveCorrectionIn(ctx context.Context, db dbtx, c booking.Correction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO corrections (id, room_type_id, date, from_count, to_count, corrected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.RoomTypeID, c.Date.String(), c.From, c.To,
		c.CorrectedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}
	return nil
}

// ListCorrections returns the full audit trail, oldest first.
func (s *Store) ListCorrections(ctx context.Context) ([]booking.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCorrectionsIn(ctx, s.db)
}

func (s *Store) listCorrectionsIn(ctx context.Context, db dbtx) ([]booking.Correction, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, room_type_id, date, from_count, to_count, corrected_at FROM corrections ORDER BY corrected_at ASC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var corrections []booking.Correction
	for rows.Next() {
		var c booking.Correction
		var date, correctedAt string
		if err := rows.Scan(&c.ID, &c.RoomTypeID, &date, &c.From, &c.To, &correctedAt); err != nil {
			return nil, err
		}
		c.Date, err = booking.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse correction date: %w", err)
		}
		c.CorrectedAt, _ = time.Parse(time.RFC3339, correctedAt)
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (booking.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store
// passed to fn is bound to that transaction and must not outlive it.
func (s *Store) WithTx(ctx context.Context, fn func(store booking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txStore{tx: sqlTx, parent: s}
	if err := fn(view); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open transaction. It runs under
// the parent mutex already held by WithTx and must not re-acquire it.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveRoomType(ctx context.Context, rt booking.RoomType) error {
	return ts.parent.saveRoomTypeIn(ctx, ts.tx, rt)
}

func (ts *txStore) GetRoomType(ctx context.Context, id booking.RoomTypeID) (*booking.RoomType, error) {
	return ts.parent.getRoomTypeIn(ctx, ts.tx, id)
}

func (ts *txStore) TotalQuantity(ctx context.Context, id booking.RoomTypeID) (int, error) {
	rt, err := ts.parent.getRoomTypeIn(ctx, ts.tx, id)
	if err != nil {
		return 0, err
	}
	return rt.TotalQuantity, nil
}

func (ts *txStore) UpdateRoomTypeQuantity(ctx context.Context, id booking.RoomTypeID, quantity int) error {
	return ts.parent.updateRoomTypeQuantityIn(ctx, ts.tx, id, quantity)
}

func (ts *txStore) GetAvailability(ctx context.Context, id booking.RoomTypeID, date booking.Date) (int, error) {
	return ts.parent.getAvailabilityIn(ctx, ts.tx, id, date)
}

func (ts *txStore) GetAvailabilityRange(ctx context.Context, id booking.RoomTypeID, rng booking.DateRange) ([]booking.DayAvailability, error) {
	return ts.parent.getAvailabilityRangeIn(ctx, ts.tx, id, rng)
}

func (ts *txStore) TryDebit(ctx context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) error {
	return ts.parent.tryDebitIn(ctx, ts.tx, id, rng, amount)
}

func (ts *txStore) Credit(ctx context.Context, id booking.RoomTypeID, rng booking.DateRange, amount int) ([]booking.Date, error) {
	return ts.parent.creditIn(ctx, ts.tx, id, rng, amount)
}

func (ts *txStore) ListOversold(ctx context.Context) ([]booking.OversoldEntry, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT a.room_type_id, a.date, a.available_count, rt.total_quantity
		FROM availability a
		JOIN room_types rt ON rt.id = a.room_type_id
		WHERE a.available_count > rt.total_quantity
		ORDER BY a.room_type_id, a.date
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query oversold rows: %w", err)
	}
	defer rows.Close()

	var entries []booking.OversoldEntry
	for rows.Next() {
		var entry booking.OversoldEntry
		var date string
		if err := rows.Scan(&entry.RoomTypeID, &date, &entry.Available, &entry.TotalQuantity); err != nil {
			return nil, err
		}
		entry.Date, err = booking.ParseDate(date)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (ts *txStore) ClampAvailability(ctx context.Context, id booking.RoomTypeID, date booking.Date, max int) (bool, error) {
	return ts.parent.clampAvailabilityIn(ctx, ts.tx, id, date, max)
}

func (ts *txStore) SaveReservation(ctx context.Context, res booking.Reservation) error {
	return ts.parent.saveReservationIn(ctx, ts.tx, res)
}

func (ts *txStore) GetReservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	return ts.parent.getReservationIn(ctx, ts.tx, id)
}

func (ts *txStore) ListReservationsByUser(ctx context.Context, userID booking.UserID) ([]booking.Reservation, error) {
	return ts.parent.listReservationsByUserIn(ctx, ts.tx, userID)
}

func (ts *txStore) TransitionReservation(ctx context.Context, id booking.ReservationID, from []booking.ReservationStatus, to booking.ReservationStatus, at time.Time) (*booking.Reservation, error) {
	return ts.parent.transitionIn(ctx, ts.tx, id, from, to, at)
}

func (ts *txStore) FindOverdue(ctx context.Context, now time.Time, statuses []booking.ReservationStatus) ([]booking.Reservation, error) {
	return ts.parent.findOverdueIn(ctx, ts.tx, now, statuses)
}

func (ts *txStore) SavePaymentProof(ctx context.Context, proof booking.PaymentProof) error {
	return ts.parent.savePaymentProofIn(ctx, ts.tx, proof)
}

func (ts *txStore) GetPaymentProof(ctx context.Context, id booking.ReservationID) (*booking.PaymentProof, error) {
	return ts.parent.getPaymentProofIn(ctx, ts.tx, id)
}

func (ts *txStore) RecordWebhookEvent(ctx context.Context, ev booking.WebhookEvent) (bool, error) {
	return ts.parent.recordWebhookEventIn(ctx, ts.tx, ev)
}

func (ts *txStore) SaveCorrection(ctx context.Context, c booking.Correction) error {
	return ts.parent.saveCorrectionIn(ctx, ts.tx, c)
}

func (ts *txStore) ListCorrections(ctx context.Context) ([]booking.Correction, error) {
	return ts.parent.listCorrectionsIn(ctx, ts.tx)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
