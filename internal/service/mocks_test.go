package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/prohmpiriya/ticket-broker/internal/authority"
	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/repository"
	pkgredis "github.com/prohmpiriya/ticket-broker/pkg/redis"
)

func newTestLockStore(t *testing.T) (*repository.RedisLockStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })
	return repository.NewRedisLockStore(pkgredis.Wrap(rc)), mr
}

// MockSeatBlocker is a mock implementation of SeatBlocker
type MockSeatBlocker struct {
	BlockSeatsFunc func(ctx context.Context, sessionID, externalEventID string, seats []domain.SeatPosition) (*authority.BlockSeatsResponse, error)

	mu    sync.Mutex
	calls [][]domain.SeatPosition
}

func (m *MockSeatBlocker) BlockSeats(ctx context.Context, sessionID, externalEventID string, seats []domain.SeatPosition) (*authority.BlockSeatsResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]domain.SeatPosition(nil), seats...))
	m.mu.Unlock()
	if m.BlockSeatsFunc != nil {
		return m.BlockSeatsFunc(ctx, sessionID, externalEventID, seats)
	}
	return blockAll("Bloqueado")(ctx, sessionID, externalEventID, seats)
}

func (m *MockSeatBlocker) Calls() [][]domain.SeatPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// blockAll answers every requested seat with the same authority state
func blockAll(state string) func(context.Context, string, string, []domain.SeatPosition) (*authority.BlockSeatsResponse, error) {
	return func(_ context.Context, _, _ string, seats []domain.SeatPosition) (*authority.BlockSeatsResponse, error) {
		resp := &authority.BlockSeatsResponse{Result: true}
		for _, s := range seats {
			resp.Seats = append(resp.Seats, authority.SeatState{Row: s.Row, Column: s.Column, State: state})
		}
		return resp, nil
	}
}

// MockSaleConfirmer is a mock implementation of SaleConfirmer
type MockSaleConfirmer struct {
	ConfirmSaleFunc func(ctx context.Context, req *authority.ConfirmSaleRequest) (*authority.ConfirmSaleResponse, error)
}

func (m *MockSaleConfirmer) ConfirmSale(ctx context.Context, req *authority.ConfirmSaleRequest) (*authority.ConfirmSaleResponse, error) {
	if m.ConfirmSaleFunc != nil {
		return m.ConfirmSaleFunc(ctx, req)
	}
	return &authority.ConfirmSaleResponse{Success: true}, nil
}

// MockSalePublisher is a testify mock of SalePublisher
type MockSalePublisher struct {
	mock.Mock
}

func (m *MockSalePublisher) PublishSale(ctx context.Context, sale *domain.Sale) error {
	args := m.Called(ctx, sale)
	return args.Error(0)
}

func (m *MockSalePublisher) Name() string { return "mock" }

// fakeSaleRepository is an in-memory SaleRepository that honours the
// PENDING-only optimistic update rule and the (session, event) uniqueness
type fakeSaleRepository struct {
	mu    sync.Mutex
	sales map[string]*domain.Sale

	CreateErr error
	UpdateErr error
}

func newFakeSaleRepository() *fakeSaleRepository {
	return &fakeSaleRepository{sales: make(map[string]*domain.Sale)}
}

func clone(s *domain.Sale) *domain.Sale {
	c := *s
	c.SeatIDs = append([]string(nil), s.SeatIDs...)
	c.OccupantNames = append([]string(nil), s.OccupantNames...)
	if s.NextRetryAt != nil {
		t := *s.NextRetryAt
		c.NextRetryAt = &t
	}
	return &c
}

func (r *fakeSaleRepository) put(s *domain.Sale) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales[s.ID] = clone(s)
}

func (r *fakeSaleRepository) get(id string) *domain.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sales[id]; ok {
		return clone(s)
	}
	return nil
}

func (r *fakeSaleRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sales)
}

func (r *fakeSaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sales {
		if s.SessionID == sale.SessionID && s.ExternalEventID == sale.ExternalEventID {
			return domain.ErrSaleAlreadyExists
		}
	}
	r.sales[sale.ID] = clone(sale)
	return nil
}

func (r *fakeSaleRepository) Update(ctx context.Context, sale *domain.Sale, prevAttempts int) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sales[sale.ID]
	if !ok || cur.Status != domain.SaleStatusPending || cur.Attempts != prevAttempts {
		return domain.ErrInvalidStatusTransition
	}
	r.sales[sale.ID] = clone(sale)
	return nil
}

func (r *fakeSaleRepository) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	if s := r.get(id); s != nil {
		return s, nil
	}
	return nil, domain.ErrSaleNotFound
}

func (r *fakeSaleRepository) FindLatest(ctx context.Context, sessionID, externalEventID string) (*domain.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Sale
	for _, s := range r.sales {
		if s.SessionID == sessionID && s.ExternalEventID == externalEventID {
			if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
				latest = s
			}
		}
	}
	if latest == nil {
		return nil, domain.ErrSaleNotFound
	}
	return clone(latest), nil
}

func (r *fakeSaleRepository) ClaimDueForRetry(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*domain.Sale
	for _, s := range r.sales {
		if s.IsDue(now) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(*due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*domain.Sale, 0, len(due))
	for _, s := range due {
		out = append(out, clone(s))
		leased := now.Add(lease)
		s.NextRetryAt = &leased
	}
	return out, nil
}

func (r *fakeSaleRepository) list(match func(*domain.Sale) bool) []*domain.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Sale
	for _, s := range r.sales {
		if match(s) {
			out = append(out, clone(s))
		}
	}
	return out
}

func (r *fakeSaleRepository) ListPending(ctx context.Context, limit int) ([]*domain.Sale, error) {
	return r.list(func(s *domain.Sale) bool { return s.Status == domain.SaleStatusPending }), nil
}

func (r *fakeSaleRepository) ListByEvent(ctx context.Context, externalEventID string, limit, offset int) ([]*domain.Sale, error) {
	return r.list(func(s *domain.Sale) bool { return s.ExternalEventID == externalEventID }), nil
}

func (r *fakeSaleRepository) ListByBuyerEmail(ctx context.Context, email string, limit, offset int) ([]*domain.Sale, error) {
	return r.list(func(s *domain.Sale) bool { return s.BuyerEmail == email }), nil
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	GetByExternalIDFunc func(ctx context.Context, externalID string) (*domain.Event, error)
	UpsertFunc          func(ctx context.Context, event *domain.Event) error
}

func (m *MockEventRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Event, error) {
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(ctx, externalID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockEventRepository) Upsert(ctx context.Context, event *domain.Event) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, event)
	}
	return nil
}

// fakeSessionRepository keeps sessions in memory
type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[string]domain.Session)}
}

func (r *fakeSessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.SelectedSeats = append([]string(nil), s.SelectedSeats...)
	return &s, nil
}

func (r *fakeSessionRepository) Save(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *session
	s.SelectedSeats = append([]string(nil), session.SelectedSeats...)
	r.sessions[session.ID] = s
	return nil
}

func (r *fakeSessionRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

var (
	_ repository.SaleRepository    = (*fakeSaleRepository)(nil)
	_ repository.SessionRepository = (*fakeSessionRepository)(nil)
	_ repository.EventRepository   = (*MockEventRepository)(nil)
)
