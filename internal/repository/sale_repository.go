package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

// SaleRepository persists sales
type SaleRepository interface {
	// Create inserts a sale. Returns domain.ErrSaleAlreadyExists when the
	// (session, event) pair is taken.
	Create(ctx context.Context, sale *domain.Sale) error
	// Update writes the mutable fields of a sale that is still PENDING in
	// storage with prevAttempts attempts recorded. Returns
	// domain.ErrInvalidStatusTransition when the stored row is terminal or
	// another writer recorded an attempt first.
	Update(ctx context.Context, sale *domain.Sale, prevAttempts int) error
	GetByID(ctx context.Context, id string) (*domain.Sale, error)
	// FindLatest returns the most recently created sale for the pair
	FindLatest(ctx context.Context, sessionID, externalEventID string) (*domain.Sale, error)
	// ClaimDueForRetry returns PENDING sales whose deadline is before now,
	// oldest deadline first, pushing their deadline by lease so concurrent
	// workers skip them
	ClaimDueForRetry(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Sale, error)
	ListPending(ctx context.Context, limit int) ([]*domain.Sale, error)
	ListByEvent(ctx context.Context, externalEventID string, limit, offset int) ([]*domain.Sale, error)
	ListByBuyerEmail(ctx context.Context, email string, limit, offset int) ([]*domain.Sale, error)
}

const saleColumns = `
	id, session_id, external_event_id, seat_ids, buyer_email, occupant_names,
	quantity, total_cents, status, attempts, last_error, next_retry_at,
	created_at, updated_at`

// PostgresSaleRepository implements SaleRepository with pgxpool
type PostgresSaleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSaleRepository creates a new PostgresSaleRepository
func NewPostgresSaleRepository(pool *pgxpool.Pool) *PostgresSaleRepository {
	return &PostgresSaleRepository{pool: pool}
}

// Create inserts a new sale
func (r *PostgresSaleRepository) Create(ctx context.Context, sale *domain.Sale) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.create")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(
		attribute.String("sale_id", sale.ID),
		attribute.String("session_id", sale.SessionID),
		attribute.String("external_event_id", sale.ExternalEventID),
	)

	query := `
		INSERT INTO sales (` + saleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id, external_event_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		sale.ID,
		sale.SessionID,
		sale.ExternalEventID,
		sale.SeatIDs,
		nullString(sale.BuyerEmail),
		nonNil(sale.OccupantNames),
		sale.Quantity,
		sale.TotalCents,
		string(sale.Status),
		sale.Attempts,
		nullString(sale.LastError),
		sale.NextRetryAt,
		sale.CreatedAt,
		sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSaleAlreadyExists
	}
	return nil
}

// Update writes buyer info and notification state, guarded on the stored
// status and attempt count
func (r *PostgresSaleRepository) Update(ctx context.Context, sale *domain.Sale, prevAttempts int) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.update")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(
		attribute.String("sale_id", sale.ID),
		attribute.String("status", string(sale.Status)),
		attribute.Int("attempts", sale.Attempts),
	)

	query := `
		UPDATE sales SET
			buyer_email = $2,
			occupant_names = $3,
			status = $4,
			attempts = $5,
			last_error = $6,
			next_retry_at = $7,
			updated_at = $8
		WHERE id = $1 AND status = 'PENDING' AND attempts = $9
	`
	tag, err := r.pool.Exec(ctx, query,
		sale.ID,
		nullString(sale.BuyerEmail),
		nonNil(sale.OccupantNames),
		string(sale.Status),
		sale.Attempts,
		nullString(sale.LastError),
		sale.NextRetryAt,
		sale.UpdatedAt,
		prevAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sale %s: %w", sale.ID, domain.ErrInvalidStatusTransition)
	}
	return nil
}

// GetByID retrieves a sale by id
func (r *PostgresSaleRepository) GetByID(ctx context.Context, id string) (sale *domain.Sale, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.get_by_id")
	defer func() { telemetry.End(span, ignoreNotFound(err)) }()
	span.SetAttributes(attribute.String("sale_id", id))

	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	return scanSale(row)
}

// FindLatest returns the newest sale for a session and event
func (r *PostgresSaleRepository) FindLatest(ctx context.Context, sessionID, externalEventID string) (sale *domain.Sale, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.find_latest")
	defer func() { telemetry.End(span, ignoreNotFound(err)) }()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("external_event_id", externalEventID),
	)

	row := r.pool.QueryRow(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE session_id = $1 AND external_event_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID, externalEventID)
	return scanSale(row)
}

// ClaimDueForRetry selects due sales with SKIP LOCKED and leases them
func (r *PostgresSaleRepository) ClaimDueForRetry(ctx context.Context, now time.Time, limit int, lease time.Duration) (sales []*domain.Sale, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.claim_due")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(attribute.Int("limit", limit))

	query := `
		WITH due AS (
			SELECT id, next_retry_at AS due_at FROM sales
			WHERE status = 'PENDING' AND next_retry_at IS NOT NULL AND next_retry_at < $1
			ORDER BY next_retry_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		), claimed AS (
			UPDATE sales s SET next_retry_at = $3
			FROM due
			WHERE s.id = due.id
			RETURNING s.*, due.due_at
		)
		SELECT ` + saleColumns + ` FROM claimed
		ORDER BY due_at ASC
	`

	rows, err := r.pool.Query(ctx, query, now, limit, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due sales: %w", err)
	}
	sales, err = collectSales(rows)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("claimed", len(sales)))
	return sales, nil
}

// ListPending lists PENDING sales by deadline
func (r *PostgresSaleRepository) ListPending(ctx context.Context, limit int) ([]*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.list_pending")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE status = 'PENDING'
		ORDER BY next_retry_at ASC NULLS LAST, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sales: %w", err)
	}
	return collectSales(rows)
}

// ListByEvent lists sales of an event, newest first
func (r *PostgresSaleRepository) ListByEvent(ctx context.Context, externalEventID string, limit, offset int) ([]*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.list_by_event")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE external_event_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, externalEventID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales by event: %w", err)
	}
	return collectSales(rows)
}

// ListByBuyerEmail lists sales of a buyer, newest first
func (r *PostgresSaleRepository) ListByBuyerEmail(ctx context.Context, email string, limit, offset int) ([]*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.list_by_buyer")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE lower(buyer_email) = lower($1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, email, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales by buyer: %w", err)
	}
	return collectSales(rows)
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	s := &domain.Sale{}
	var (
		status     string
		buyerEmail *string
		lastError  *string
	)
	err := row.Scan(
		&s.ID,
		&s.SessionID,
		&s.ExternalEventID,
		&s.SeatIDs,
		&buyerEmail,
		&s.OccupantNames,
		&s.Quantity,
		&s.TotalCents,
		&status,
		&s.Attempts,
		&lastError,
		&s.NextRetryAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sale: %w", err)
	}

	s.Status = domain.SaleStatus(status)
	if buyerEmail != nil {
		s.BuyerEmail = *buyerEmail
	}
	if lastError != nil {
		s.LastError = *lastError
	}
	return s, nil
}

func collectSales(rows pgx.Rows) ([]*domain.Sale, error) {
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sales: %w", err)
	}
	return sales, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ignoreNotFound keeps expected misses out of span errors
func ignoreNotFound(err error) error {
	if domain.IsNotFoundError(err) {
		return nil
	}
	return err
}

var _ SaleRepository = (*PostgresSaleRepository)(nil)
