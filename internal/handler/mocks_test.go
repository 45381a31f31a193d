package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/internal/dto"
	"github.com/prohmpiriya/ticket-broker/internal/service"
)

// MockSessionService is a mock implementation of SessionService
type MockSessionService struct {
	StartFunc        func(ctx context.Context, userID, externalEventID string) (*domain.Session, error)
	GetFunc          func(ctx context.Context, sessionID string) (*domain.Session, error)
	ReserveSeatsFunc func(ctx context.Context, eventID, sessionID string, seatIDs []string) (*service.ReservationResult, error)
	ReleaseSeatsFunc func(ctx context.Context, eventID, sessionID string) (int, error)
}

func (m *MockSessionService) Start(ctx context.Context, userID, externalEventID string) (*domain.Session, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, userID, externalEventID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockSessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, sessionID)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionService) ReserveSeats(ctx context.Context, eventID, sessionID string, seatIDs []string) (*service.ReservationResult, error) {
	if m.ReserveSeatsFunc != nil {
		return m.ReserveSeatsFunc(ctx, eventID, sessionID, seatIDs)
	}
	return nil, errors.New("not implemented")
}

func (m *MockSessionService) ReleaseSeats(ctx context.Context, eventID, sessionID string) (int, error) {
	if m.ReleaseSeatsFunc != nil {
		return m.ReleaseSeatsFunc(ctx, eventID, sessionID)
	}
	return 0, nil
}

// MockSaleService is a mock implementation of SaleService
type MockSaleService struct {
	ConfirmSaleFunc   func(ctx context.Context, sessionID string, req *dto.ConfirmSaleRequest) (*domain.Sale, error)
	RunRetrySweepFunc func(ctx context.Context) (*service.SweepResult, error)
	GetSaleFunc       func(ctx context.Context, id string) (*domain.Sale, error)
	ListSalesFunc     func(ctx context.Context, q *dto.ListSalesQuery) ([]*domain.Sale, error)
	ListPendingFunc   func(ctx context.Context, limit int) ([]*domain.Sale, error)
}

func (m *MockSaleService) ConfirmSale(ctx context.Context, sessionID string, req *dto.ConfirmSaleRequest) (*domain.Sale, error) {
	if m.ConfirmSaleFunc != nil {
		return m.ConfirmSaleFunc(ctx, sessionID, req)
	}
	return nil, errors.New("not implemented")
}

func (m *MockSaleService) RunRetrySweep(ctx context.Context) (*service.SweepResult, error) {
	if m.RunRetrySweepFunc != nil {
		return m.RunRetrySweepFunc(ctx)
	}
	return &service.SweepResult{}, nil
}

func (m *MockSaleService) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if m.GetSaleFunc != nil {
		return m.GetSaleFunc(ctx, id)
	}
	return nil, domain.ErrSaleNotFound
}

func (m *MockSaleService) ListSales(ctx context.Context, q *dto.ListSalesQuery) ([]*domain.Sale, error) {
	if m.ListSalesFunc != nil {
		return m.ListSalesFunc(ctx, q)
	}
	return []*domain.Sale{}, nil
}

func (m *MockSaleService) ListPending(ctx context.Context, limit int) ([]*domain.Sale, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx, limit)
	}
	return []*domain.Sale{}, nil
}

// MockEventService is a mock implementation of EventService
type MockEventService struct {
	UpsertEventFunc func(ctx context.Context, externalID string, req *dto.UpsertEventRequest) (*domain.Event, error)
}

func (m *MockEventService) UpsertEvent(ctx context.Context, externalID string, req *dto.UpsertEventRequest) (*domain.Event, error) {
	if m.UpsertEventFunc != nil {
		return m.UpsertEventFunc(ctx, externalID, req)
	}
	return &domain.Event{ExternalID: externalID}, nil
}

func setupTestRouter(sessions *MockSessionService, sales *MockSaleService, events *MockEventService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	sh := NewSessionHandler(sessions)
	salesH := NewSaleHandler(sales)
	admin := NewAdminHandler(sales, events)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", sh.StartSession)
		v1.GET("/sessions/:id", sh.GetSession)
		v1.POST("/events/:eventId/reservations", sh.ReserveSeats)
		v1.DELETE("/events/:eventId/reservations", sh.ReleaseSeats)
		v1.POST("/sales/confirm", salesH.ConfirmSale)
		v1.GET("/sales", salesH.ListSales)
		v1.GET("/sales/:id", salesH.GetSale)
		v1.GET("/admin/sales/pending", admin.ListPendingSales)
		v1.POST("/admin/sales/retry-sweep", admin.RunRetrySweep)
		v1.PUT("/admin/events/:externalId", admin.UpsertEvent)
	}
	return router
}
