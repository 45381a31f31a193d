package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/dto"
	"github.com/prohmpiriya/ticket-broker/internal/metrics"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

const (
	defaultMaxAttempts    = 10
	defaultConfirmBackoff = 30 * time.Second
	defaultRetryBackoff   = 60 * time.Second
	defaultGuardTTL       = 30 * time.Second
	defaultGuardWait      = 2 * time.Second
	defaultSweepBatch     = 50
	defaultSweepLease     = 5 * time.Minute
	guardPollInterval     = 50 * time.Millisecond
	persistTimeout        = 5 * time.Second
)

// SaleService defines the interface for sale confirmation and retries
type SaleService interface {
	// ConfirmSale creates or resumes the session's sale and attempts to
	// notify the authority. Notification failures are recorded on the
	// returned sale, not returned as errors.
	ConfirmSale(ctx context.Context, sessionID string, req *dto.ConfirmSaleRequest) (*domain.Sale, error)

	// RunRetrySweep retries due PENDING sales through the secondary channel.
	// Sales whose confirmation guard is held are skipped.
	RunRetrySweep(ctx context.Context) (*SweepResult, error)

	// GetSale retrieves a sale by ID
	GetSale(ctx context.Context, id string) (*domain.Sale, error)

	// ListSales lists sales by event or buyer email
	ListSales(ctx context.Context, q *dto.ListSalesQuery) ([]*domain.Sale, error)

	// ListPending lists PENDING sales, soonest retry first
	ListPending(ctx context.Context, limit int) ([]*domain.Sale, error)
}

// SaleServiceConfig contains configuration for the sale service
type SaleServiceConfig struct {
	MaxAttempts           int
	ConfirmBackoff        time.Duration
	RetryBackoff          time.Duration
	RequireAuthorityLocks bool
	GuardTTL              time.Duration
	GuardWait             time.Duration
	SweepBatchSize        int
	SweepLease            time.Duration
}

// SweepResult summarizes one retry sweep
type SweepResult struct {
	Claimed     int
	Confirmed   int
	Rescheduled int
	Failed      int
	Skipped     int
}

// saleService implements SaleService
type saleService struct {
	sales    repository.SaleRepository
	events   repository.EventRepository
	sessions repository.SessionRepository
	guard    repository.LockStore
	locks    *SeatLockRegistry
	notifier *NotificationPipeline
	cfg      SaleServiceConfig
	now      func() time.Time
	log      *logger.Logger
}

// NewSaleService creates a new sale service
func NewSaleService(
	sales repository.SaleRepository,
	events repository.EventRepository,
	sessions repository.SessionRepository,
	guard repository.LockStore,
	locks *SeatLockRegistry,
	notifier *NotificationPipeline,
	cfg *SaleServiceConfig,
) SaleService {
	c := SaleServiceConfig{
		MaxAttempts:    defaultMaxAttempts,
		ConfirmBackoff: defaultConfirmBackoff,
		RetryBackoff:   defaultRetryBackoff,
		GuardTTL:       defaultGuardTTL,
		GuardWait:      defaultGuardWait,
		SweepBatchSize: defaultSweepBatch,
		SweepLease:     defaultSweepLease,
	}
	if cfg != nil {
		c.RequireAuthorityLocks = cfg.RequireAuthorityLocks
		if cfg.MaxAttempts > 0 {
			c.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.ConfirmBackoff > 0 {
			c.ConfirmBackoff = cfg.ConfirmBackoff
		}
		if cfg.RetryBackoff > 0 {
			c.RetryBackoff = cfg.RetryBackoff
		}
		if cfg.GuardTTL > 0 {
			c.GuardTTL = cfg.GuardTTL
		}
		if cfg.GuardWait > 0 {
			c.GuardWait = cfg.GuardWait
		}
		if cfg.SweepBatchSize > 0 {
			c.SweepBatchSize = cfg.SweepBatchSize
		}
		if cfg.SweepLease > 0 {
			c.SweepLease = cfg.SweepLease
		}
	}
	return &saleService{
		sales:    sales,
		events:   events,
		sessions: sessions,
		guard:    guard,
		locks:    locks,
		notifier: notifier,
		cfg:      c,
		now:      time.Now,
		log:      logger.Get().With(zap.String("component", "sale-service")),
	}
}

// ConfirmSaleGuardKey serializes confirmations and retries of one session
// and event
func ConfirmSaleGuardKey(externalEventID, sessionID string) string {
	return fmt.Sprintf("sale-confirm:%s:%s", externalEventID, sessionID)
}

// ConfirmSale creates or resumes the session's sale and notifies the authority
func (s *saleService) ConfirmSale(ctx context.Context, sessionID string, req *dto.ConfirmSaleRequest) (sale *domain.Sale, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.sale.confirm")
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidSessionID
	}
	if req == nil {
		req = &dto.ConfirmSaleRequest{}
	}
	if email := strings.TrimSpace(req.BuyerEmail); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, domain.ErrInvalidEmail
		}
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.ExternalEventID) == "" {
		return nil, domain.ErrInvalidEventID
	}
	if len(session.SelectedSeats) == 0 {
		return nil, domain.ErrEmptySeatSelection
	}
	if s.cfg.RequireAuthorityLocks && !session.HadAuthorityLocks {
		return nil, domain.ErrNoAuthorityLocks
	}
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("external_event_id", session.ExternalEventID),
	)

	release, err := s.acquireGuard(ctx, ConfirmSaleGuardKey(session.ExternalEventID, sessionID))
	if err != nil {
		return nil, err
	}
	defer release()

	sale, err = s.upsertSale(ctx, session, req)
	if err != nil {
		return nil, err
	}
	if sale.Status.IsTerminal() {
		return sale, nil
	}

	result := s.notifier.Notify(ctx, sale)
	if err := s.recordAttempt(ctx, sale, result, s.cfg.ConfirmBackoff, metrics.PathConfirm); err != nil {
		if !errors.Is(err, domain.ErrInvalidStatusTransition) {
			return nil, err
		}
		// another writer recorded an attempt first; report the stored sale
		sale, err = s.sales.FindLatest(ctx, session.ID, session.ExternalEventID)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(
		attribute.String("sale_id", sale.ID),
		attribute.String("status", string(sale.Status)),
		attribute.Int("attempts", sale.Attempts),
	)

	if sale.Status == domain.SaleStatusConfirmed {
		s.finishSession(ctx, session)
	}
	return sale, nil
}

// upsertSale returns the canonical sale for the session, creating it on
// first confirmation. Seats, quantity and total never change once set.
func (s *saleService) upsertSale(ctx context.Context, session *domain.Session, req *dto.ConfirmSaleRequest) (*domain.Sale, error) {
	existing, err := s.sales.FindLatest(ctx, session.ID, session.ExternalEventID)
	if err != nil && !errors.Is(err, domain.ErrSaleNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Status.IsTerminal() {
			return existing, nil
		}
		existing.ApplyBuyerInfo(req.BuyerEmail, req.OccupantNames)
		return existing, nil
	}

	sale, err := domain.NewSale(session.ID, session.ExternalEventID, session.SelectedSeats, s.unitPrice(ctx, session.ExternalEventID), s.now())
	if err != nil {
		return nil, err
	}
	sale.ApplyBuyerInfo(req.BuyerEmail, req.OccupantNames)

	err = s.sales.Create(ctx, sale)
	if errors.Is(err, domain.ErrSaleAlreadyExists) {
		// another instance won the insert; continue with its row
		return s.upsertSaleAfterRace(ctx, session, req)
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordSaleCreated(ctx, sale.ExternalEventID, sale.Quantity)
	s.log.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("session_id", sale.SessionID),
		zap.String("external_event_id", sale.ExternalEventID),
		zap.Int("quantity", sale.Quantity),
		zap.Int64("total_cents", sale.TotalCents),
	)
	return sale, nil
}

func (s *saleService) upsertSaleAfterRace(ctx context.Context, session *domain.Session, req *dto.ConfirmSaleRequest) (*domain.Sale, error) {
	existing, err := s.sales.FindLatest(ctx, session.ID, session.ExternalEventID)
	if err != nil {
		return nil, err
	}
	if !existing.Status.IsTerminal() {
		existing.ApplyBuyerInfo(req.BuyerEmail, req.OccupantNames)
	}
	return existing, nil
}

// unitPrice is zero when the event is not mirrored locally
func (s *saleService) unitPrice(ctx context.Context, externalEventID string) int64 {
	if s.events == nil {
		return 0
	}
	event, err := s.events.GetByExternalID(ctx, externalEventID)
	if err != nil {
		if !errors.Is(err, domain.ErrEventNotFound) {
			s.log.Warn("failed to load event price", zap.String("external_event_id", externalEventID), zap.Error(err))
		}
		return 0
	}
	return event.UnitPriceCents
}

// recordAttempt applies one notification outcome and persists the sale.
// The write only lands if nobody else recorded an attempt since sale was
// read; otherwise domain.ErrInvalidStatusTransition is returned.
func (s *saleService) recordAttempt(ctx context.Context, sale *domain.Sale, result NotificationResult, backoff time.Duration, path string) error {
	prev := sale.Attempts
	sale.BeginAttempt()
	now := s.now()

	var err error
	if result.Delivered {
		err = sale.MarkConfirmed(now)
	} else {
		err = sale.MarkFailed(result.Cause, now, backoff, s.cfg.MaxAttempts)
	}
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.sales.Update(pctx, sale, prev); err != nil {
		if errors.Is(err, domain.ErrInvalidStatusTransition) {
			metrics.RecordUpdateConflict(ctx, path)
			s.log.Warn("sale changed concurrently, attempt not recorded",
				zap.String("sale_id", sale.ID),
				zap.String("path", path),
				zap.Int("attempts", prev),
			)
		}
		return err
	}
	metrics.RecordAttempt(ctx, path, sale.ExternalEventID, sale.Status, result.Channel)

	fields := []zap.Field{
		zap.String("sale_id", sale.ID),
		zap.String("status", string(sale.Status)),
		zap.Int("attempts", sale.Attempts),
	}
	switch sale.Status {
	case domain.SaleStatusConfirmed:
		s.log.Info("sale confirmed", append(fields, zap.String("channel", result.Channel))...)
	case domain.SaleStatusError:
		s.log.Error("sale notification exhausted", append(fields, zap.String("last_error", sale.LastError))...)
	default:
		s.log.Warn("sale notification failed, retry scheduled",
			append(fields, zap.Timep("next_retry_at", sale.NextRetryAt), zap.String("last_error", sale.LastError))...)
	}
	return nil
}

// finishSession releases the seat locks once the authority owns the seats
func (s *saleService) finishSession(ctx context.Context, session *domain.Session) {
	if s.locks != nil {
		if _, err := s.locks.ReleaseAll(ctx, session.ExternalEventID, session.ID); err != nil {
			s.log.Warn("failed to release seats after confirmation", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	session.Step = domain.StepConfirmed
	session.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, session); err != nil {
		s.log.Warn("failed to mark session confirmed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

// acquireGuard polls for the confirmation mutex until GuardWait elapses
func (s *saleService) acquireGuard(ctx context.Context, key string) (func(), error) {
	deadline := s.now().Add(s.cfg.GuardWait)

	for {
		release, ok, err := s.tryGuard(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		if !s.now().Before(deadline) {
			return nil, domain.ErrConfirmationInProgress
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(guardPollInterval):
		}
	}
}

// tryGuard makes a single attempt at the confirmation mutex. Without a
// guard store every attempt is granted.
func (s *saleService) tryGuard(ctx context.Context, key string) (func(), bool, error) {
	if s.guard == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	status, err := s.guard.AcquireOrExtend(ctx, key, token, s.cfg.GuardTTL)
	if err != nil {
		return nil, false, err
	}
	if !status.Granted() {
		return nil, false, nil
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if _, err := s.guard.ReleaseIfOwner(rctx, key, token); err != nil {
			s.log.Warn("failed to release confirmation guard", zap.String("key", key), zap.Error(err))
		}
	}, true, nil
}

// RunRetrySweep retries due PENDING sales through the secondary channel
func (s *saleService) RunRetrySweep(ctx context.Context) (res *SweepResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "service.sale.retry_sweep")
	defer func() { telemetry.End(span, err) }()

	start := time.Now()
	due, err := s.sales.ClaimDueForRetry(ctx, s.now(), s.cfg.SweepBatchSize, s.cfg.SweepLease)
	if err != nil {
		return nil, err
	}

	res = &SweepResult{Claimed: len(due)}
	for _, claimed := range due {
		sale := s.retryOne(ctx, claimed)
		if sale == nil {
			res.Skipped++
			continue
		}

		switch sale.Status {
		case domain.SaleStatusConfirmed:
			res.Confirmed++
		case domain.SaleStatusError:
			res.Failed++
		default:
			res.Rescheduled++
		}
	}

	metrics.RecordSweep(ctx, time.Since(start).Seconds(), res.Confirmed, res.Rescheduled, res.Failed, res.Skipped)
	span.SetAttributes(
		attribute.Int("claimed", res.Claimed),
		attribute.Int("confirmed", res.Confirmed),
		attribute.Int("failed", res.Failed),
		attribute.Int("skipped", res.Skipped),
	)
	return res, nil
}

// retryOne notifies one claimed sale under its confirmation guard. It
// returns nil when the sale was skipped.
func (s *saleService) retryOne(ctx context.Context, claimed *domain.Sale) *domain.Sale {
	if claimed.Status != domain.SaleStatusPending {
		return nil
	}

	release, ok, err := s.tryGuard(ctx, ConfirmSaleGuardKey(claimed.ExternalEventID, claimed.SessionID))
	if err != nil {
		s.log.Warn("failed to take confirmation guard", zap.String("sale_id", claimed.ID), zap.Error(err))
		return nil
	}
	if !ok {
		s.log.Debug("confirmation in progress, retry skipped", zap.String("sale_id", claimed.ID))
		return nil
	}
	defer release()

	// a confirmation may have landed between the claim and the guard
	sale, err := s.sales.GetByID(ctx, claimed.ID)
	if err != nil {
		s.log.Error("failed to reload claimed sale", zap.String("sale_id", claimed.ID), zap.Error(err))
		return nil
	}
	if sale.Status != domain.SaleStatusPending || sale.Attempts != claimed.Attempts {
		return nil
	}

	result := s.notifier.NotifySecondary(ctx, sale)
	if err := s.recordAttempt(ctx, sale, result, s.cfg.RetryBackoff, metrics.PathRetry); err != nil {
		if !errors.Is(err, domain.ErrInvalidStatusTransition) {
			s.log.Error("failed to record retry attempt", zap.String("sale_id", sale.ID), zap.Error(err))
		}
		return nil
	}
	return sale
}

// GetSale retrieves a sale by ID
func (s *saleService) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrSaleNotFound
	}
	return s.sales.GetByID(ctx, id)
}

// ListSales lists sales by event or buyer email
func (s *saleService) ListSales(ctx context.Context, q *dto.ListSalesQuery) ([]*domain.Sale, error) {
	q.Normalize()
	switch {
	case strings.TrimSpace(q.EventID) != "":
		return s.sales.ListByEvent(ctx, strings.TrimSpace(q.EventID), q.PageSize, q.Offset())
	case strings.TrimSpace(q.BuyerEmail) != "":
		return s.sales.ListByBuyerEmail(ctx, strings.TrimSpace(q.BuyerEmail), q.PageSize, q.Offset())
	default:
		return nil, domain.ErrInvalidEventID
	}
}

// ListPending lists PENDING sales, soonest retry first
func (s *saleService) ListPending(ctx context.Context, limit int) ([]*domain.Sale, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	return s.sales.ListPending(ctx, limit)
}
