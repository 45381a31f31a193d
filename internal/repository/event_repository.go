package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

// EventRepository reads and registers catalog events
type EventRepository interface {
	GetByExternalID(ctx context.Context, externalID string) (*domain.Event, error)
	// Upsert inserts or updates an event keyed by external id
	Upsert(ctx context.Context, event *domain.Event) error
}

// PostgresEventRepository implements EventRepository with pgxpool
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// GetByExternalID retrieves an event by its authority id
func (r *PostgresEventRepository) GetByExternalID(ctx context.Context, externalID string) (event *domain.Event, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_external_id")
	defer func() { telemetry.End(span, ignoreNotFound(err)) }()
	span.SetAttributes(attribute.String("external_event_id", externalID))

	e := &domain.Event{}
	err = r.pool.QueryRow(ctx, `
		SELECT id, external_id, name, unit_price_cents, starts_at, created_at, updated_at
		FROM events WHERE external_id = $1
	`, externalID).Scan(&e.ID, &e.ExternalID, &e.Name, &e.UnitPriceCents, &e.StartsAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// Upsert inserts or updates an event, filling ID and timestamps
func (r *PostgresEventRepository) Upsert(ctx context.Context, event *domain.Event) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.upsert")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(attribute.String("external_event_id", event.ExternalID))

	err = r.pool.QueryRow(ctx, `
		INSERT INTO events (id, external_id, name, unit_price_cents, starts_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			unit_price_cents = EXCLUDED.unit_price_cents,
			starts_at = EXCLUDED.starts_at,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, event.ID, event.ExternalID, event.Name, event.UnitPriceCents, event.StartsAt).
		Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

var _ EventRepository = (*PostgresEventRepository)(nil)
