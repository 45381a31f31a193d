package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
	"github.com/prohmpiriya/ticket-broker/pkg/telemetry"
)

const sessionHeader = "X-Session-Id"

// Config holds the authority HTTP client settings
type Config struct {
	BaseURL         string
	BlockSeatsPath  string
	ConfirmSalePath string
	Timeout         time.Duration
}

// SeatState is one seat in a block-seats answer
type SeatState struct {
	Row    int    `json:"fila"`
	Column int    `json:"columna"`
	State  string `json:"estado"`
}

// BlockSeatsResponse is the authority's answer to a block request
type BlockSeatsResponse struct {
	Result      bool        `json:"resultado"`
	Description string      `json:"descripcion"`
	Seats       []SeatState `json:"asientos"`
}

type blockSeatsRequest struct {
	EventID int                   `json:"eventoId"`
	Seats   []domain.SeatPosition `json:"asientos"`
}

// ConfirmSaleRequest notifies the authority of a completed sale
type ConfirmSaleRequest struct {
	SaleID          string   `json:"ventaId"`
	ExternalEventID string   `json:"externalEventoId"`
	SessionID       string   `json:"sessionId"`
	BuyerEmail      string   `json:"compradorEmail"`
	SeatIDs         []string `json:"asientosIds"`
}

// ConfirmSaleResponse is the authority's answer to a sale notification
type ConfirmSaleResponse struct {
	Success     bool   `json:"resultado"`
	Description string `json:"descripcion"`
}

// Client talks to the authority's HTTP API
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenSource
	log    *logger.Logger
}

// NewClient creates a new authority Client
func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
		log:    logger.Get().With(zap.String("component", "authority-client")),
	}
}

// BlockSeats asks the authority to block seats for a session
func (c *Client) BlockSeats(ctx context.Context, sessionID, externalEventID string, seats []domain.SeatPosition) (resp *BlockSeatsResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "authority.block_seats")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("external_event_id", externalEventID),
		attribute.Int("seats", len(seats)),
	)

	eventID, err := strconv.Atoi(strings.TrimSpace(externalEventID))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNonNumericEvent, externalEventID)
	}

	resp = &BlockSeatsResponse{}
	err = c.postJSON(ctx, c.cfg.BlockSeatsPath, sessionID, blockSeatsRequest{EventID: eventID, Seats: seats}, resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ConfirmSale notifies the authority of a sale
func (c *Client) ConfirmSale(ctx context.Context, req *ConfirmSaleRequest) (resp *ConfirmSaleResponse, err error) {
	ctx, span := telemetry.StartSpan(ctx, "authority.confirm_sale")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(
		attribute.String("sale_id", req.SaleID),
		attribute.String("external_event_id", req.ExternalEventID),
	)

	resp = &ConfirmSaleResponse{}
	if err := c.postJSON(ctx, c.cfg.ConfirmSalePath, req.SessionID, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// postJSON sends body and decodes the answer into out. A 401 refreshes
// the credential once and repeats the call once.
func (c *Client) postJSON(ctx context.Context, path, sessionID string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("authority: encode request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil && !errors.Is(err, ErrNoCredentials) {
		return fmt.Errorf("authority: obtain token: %w", err)
	}

	err = c.send(ctx, path, sessionID, token, payload, out)
	if !IsUnauthorized(err) {
		return err
	}

	c.log.Info("authority rejected credential, refreshing", zap.String("path", path))
	fresh, rerr := c.tokens.Refresh(ctx)
	if rerr != nil {
		return fmt.Errorf("%w (refresh failed: %v)", err, rerr)
	}
	return c.send(ctx, path, sessionID, fresh, payload, out)
}

func (c *Client) send(ctx context.Context, path, sessionID, token string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("authority: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authority: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("authority: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 300)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("authority: decode response: %w", err)
	}
	return nil
}
