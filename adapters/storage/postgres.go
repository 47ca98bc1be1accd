package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"car-edition/core/types"
	"car-edition/internal/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS bookings (
    id                  TEXT PRIMARY KEY,
    customer_name       TEXT NOT NULL DEFAULT '',
    customer_email      TEXT NOT NULL DEFAULT '',
    customer_phone      TEXT NOT NULL,
    registration_number TEXT NOT NULL DEFAULT '',
    vehicle_make        TEXT NOT NULL DEFAULT '',
    vehicle_model       TEXT NOT NULL DEFAULT '',
    vehicle_year        INTEGER NOT NULL DEFAULT 0,
    service_ids         TEXT[] NOT NULL DEFAULT '{}',
    selected_services   TEXT NOT NULL DEFAULT '',
    other_service       TEXT NOT NULL DEFAULT '',
    line_items          JSONB NOT NULL DEFAULT '[]',
    total_price         NUMERIC(12,2) NOT NULL,
    currency            TEXT NOT NULL,
    status              TEXT NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS bookings_created_at_idx ON bookings (created_at DESC);
CREATE INDEX IF NOT EXISTS bookings_status_idx ON bookings (status);
`

const bookingColumns = `id, customer_name, customer_email, customer_phone,
       registration_number, vehicle_make, vehicle_model, vehicle_year,
       service_ids, selected_services, other_service, line_items,
       total_price, currency, status, created_at, updated_at`

// PostgresStore keeps bookings in PostgreSQL through lib/pq
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgresStore connects, verifies the connection and ensures the schema exists
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.Config("postgres storage requires a DSN", nil)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Config("failed to open postgres", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Config("failed to reach postgres", err)
	}

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an open pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the bookings table when missing
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return errors.Internal("failed to migrate bookings schema", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, booking *Booking) error {
	if err := prepare(booking, uuid.NewString, s.now().UTC()); err != nil {
		return err
	}

	lineItems, err := json.Marshal(booking.LineItems)
	if err != nil {
		return errors.Internal("failed to marshal line items", err)
	}

	const upsert = `
        INSERT INTO bookings (` + bookingColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
        ON CONFLICT (id) DO UPDATE SET
            customer_name = EXCLUDED.customer_name,
            customer_email = EXCLUDED.customer_email,
            customer_phone = EXCLUDED.customer_phone,
            registration_number = EXCLUDED.registration_number,
            vehicle_make = EXCLUDED.vehicle_make,
            vehicle_model = EXCLUDED.vehicle_model,
            vehicle_year = EXCLUDED.vehicle_year,
            service_ids = EXCLUDED.service_ids,
            selected_services = EXCLUDED.selected_services,
            other_service = EXCLUDED.other_service,
            line_items = EXCLUDED.line_items,
            total_price = EXCLUDED.total_price,
            currency = EXCLUDED.currency,
            updated_at = EXCLUDED.updated_at
        RETURNING status, created_at
    `
	var status string
	err = s.db.QueryRowContext(ctx, upsert,
		booking.ID,
		booking.Customer.Name,
		booking.Customer.Email,
		booking.Customer.Phone,
		booking.Vehicle.RegistrationNumber,
		booking.Vehicle.Make,
		booking.Vehicle.Model,
		booking.Vehicle.YearOfManufacture,
		pq.Array(booking.ServiceIDs),
		booking.SelectedServices,
		booking.OtherService,
		lineItems,
		booking.TotalPrice,
		string(booking.Currency),
		string(booking.Status),
		booking.CreatedAt,
		booking.UpdatedAt,
	).Scan(&status, &booking.CreatedAt)
	if err != nil {
		return errors.Internal("insert booking", err).WithContext("id", booking.ID)
	}
	booking.Status = Status(status)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	var (
		b         Booking
		lineItems []byte
		currency  string
		status    string
	)
	if err := row.Scan(
		&b.ID,
		&b.Customer.Name,
		&b.Customer.Email,
		&b.Customer.Phone,
		&b.Vehicle.RegistrationNumber,
		&b.Vehicle.Make,
		&b.Vehicle.Model,
		&b.Vehicle.YearOfManufacture,
		pq.Array(&b.ServiceIDs),
		&b.SelectedServices,
		&b.OtherService,
		&lineItems,
		&b.TotalPrice,
		&currency,
		&status,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lineItems, &b.LineItems); err != nil {
		return nil, err
	}
	b.Currency = types.Currency(currency)
	b.Status = Status(status)
	return &b, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	return s.get(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) get(ctx context.Context, q querier, id string) (*Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("booking", id)
		}
		return nil, errors.Internal("find booking", err).WithContext("id", id)
	}
	return b, nil
}

func (s *PostgresStore) List(ctx context.Context, filter *ListFilter) (*ListResult, error) {
	f := filter.normalized()

	where := `WHERE ($1 = '' OR status = $1)
          AND ($2 = '' OR customer_name ILIKE $2 OR customer_email ILIKE $2
               OR customer_phone ILIKE $2 OR registration_number ILIKE $2
               OR vehicle_make ILIKE $2 OR vehicle_model ILIKE $2)`
	pattern := ""
	if f.Search != "" {
		pattern = "%" + escapeLike(f.Search) + "%"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings `+where, string(f.Status), pattern).Scan(&total); err != nil {
		return nil, errors.Internal("count bookings", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings `+where+`
         ORDER BY created_at DESC, id DESC
         LIMIT $3 OFFSET $4`,
		string(f.Status), pattern, f.Limit, f.offset(),
	)
	if err != nil {
		return nil, errors.Internal("list bookings", err)
	}
	defer rows.Close()

	bookings := []*Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, errors.Internal("scan booking", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("bookings rows", err)
	}

	return &ListResult{Bookings: bookings, Pagination: newPagination(f, total)}, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) (*Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Internal("begin tx", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("booking", id)
		}
		return nil, errors.Internal("lock booking", err)
	}
	if err := checkTransition(id, Status(current), status); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), s.now().UTC(),
	); err != nil {
		return nil, errors.Internal("update booking status", err)
	}

	b, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Internal("commit booking status", err)
	}
	return b, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return errors.Internal("delete booking", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("booking", id)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE wildcards so search terms match literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
