package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-broker/internal/authority"
	"github.com/prohmpiriya/ticket-broker/internal/domain"
	"github.com/prohmpiriya/ticket-broker/pkg/logger"
)

// SaleConfirmer is the primary channel: a synchronous call to the authority
type SaleConfirmer interface {
	ConfirmSale(ctx context.Context, req *authority.ConfirmSaleRequest) (*authority.ConfirmSaleResponse, error)
}

// Channel names reported in NotificationResult
const (
	ChannelPrimary   = "primary"
	ChannelSecondary = "secondary"
)

// NotificationResult is the tagged outcome of one notification attempt
type NotificationResult struct {
	Delivered bool
	// Channel that delivered the sale, empty on failure
	Channel string
	// Cause describes every failed step as "<Kind>: message"
	Cause string
}

// PipelineConfig bounds each step of the pipeline
type PipelineConfig struct {
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
}

// NotificationPipeline tries the authority first and falls back to the
// broker. Each step has its own timeout and nothing is thrown.
type NotificationPipeline struct {
	primary   SaleConfirmer
	secondary SalePublisher
	cfg       PipelineConfig
	log       *logger.Logger
}

// NewNotificationPipeline creates a new NotificationPipeline
func NewNotificationPipeline(primary SaleConfirmer, secondary SalePublisher, cfg *PipelineConfig) *NotificationPipeline {
	c := PipelineConfig{PrimaryTimeout: 10 * time.Second, SecondaryTimeout: 5 * time.Second}
	if cfg != nil {
		if cfg.PrimaryTimeout > 0 {
			c.PrimaryTimeout = cfg.PrimaryTimeout
		}
		if cfg.SecondaryTimeout > 0 {
			c.SecondaryTimeout = cfg.SecondaryTimeout
		}
	}
	if secondary == nil {
		secondary = NewNoOpSalePublisher()
	}
	return &NotificationPipeline{
		primary:   primary,
		secondary: secondary,
		cfg:       c,
		log:       logger.Get().With(zap.String("component", "notification-pipeline")),
	}
}

// Notify runs the primary step and, unless it affirmatively succeeds, the
// secondary step
func (p *NotificationPipeline) Notify(ctx context.Context, sale *domain.Sale) NotificationResult {
	primaryErr := p.notifyPrimary(ctx, sale)
	if primaryErr == nil {
		return NotificationResult{Delivered: true, Channel: ChannelPrimary}
	}

	p.log.Warn("primary sale notification failed, falling back",
		zap.String("sale_id", sale.ID),
		zap.String("secondary", p.secondary.Name()),
		zap.Error(primaryErr),
	)

	secondaryErr := p.notifySecondary(ctx, sale)
	if secondaryErr == nil {
		return NotificationResult{Delivered: true, Channel: ChannelSecondary}
	}
	return NotificationResult{
		Cause: fmt.Sprintf("%s; %s", describeError(primaryErr), describeError(secondaryErr)),
	}
}

// NotifySecondary runs only the broker step. Used by retries, which have no
// live session to present to the authority.
func (p *NotificationPipeline) NotifySecondary(ctx context.Context, sale *domain.Sale) NotificationResult {
	if err := p.notifySecondary(ctx, sale); err != nil {
		return NotificationResult{Cause: describeError(err)}
	}
	return NotificationResult{Delivered: true, Channel: ChannelSecondary}
}

func (p *NotificationPipeline) notifyPrimary(ctx context.Context, sale *domain.Sale) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PrimaryTimeout)
	defer cancel()

	resp, err := p.primary.ConfirmSale(ctx, &authority.ConfirmSaleRequest{
		SaleID:          sale.ID,
		ExternalEventID: sale.ExternalEventID,
		SessionID:       sale.SessionID,
		BuyerEmail:      sale.BuyerEmail,
		SeatIDs:         sale.SeatIDs,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		if resp.Description != "" {
			return fmt.Errorf("%w: %s", ErrAuthorityRejected, resp.Description)
		}
		return ErrAuthorityRejected
	}
	return nil
}

func (p *NotificationPipeline) notifySecondary(ctx context.Context, sale *domain.Sale) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SecondaryTimeout)
	defer cancel()
	return p.secondary.PublishSale(ctx, sale)
}
