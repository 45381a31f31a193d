package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/authority"
	"github.com/prohmpiriya/ticket-broker/internal/domain"
)

// DefaultSaleTopic is the topic, or routing key, for confirmed sales
const DefaultSaleTopic = "ventas-confirmadas"

// SalePublisher is the secondary notification channel. Publish returns
// once the broker has acknowledged the message.
type SalePublisher interface {
	PublishSale(ctx context.Context, sale *domain.Sale) error
	// Name identifies the channel in logs
	Name() string
}

// SaleMessage is the payload the authority consumes from the broker
type SaleMessage struct {
	SaleID  string                `json:"ventaId"`
	EventID int                   `json:"eventoId"`
	Seats   []domain.SeatPosition `json:"asientos"`
}

// NewSaleMessage builds the broker payload for a sale
func NewSaleMessage(sale *domain.Sale) (*SaleMessage, error) {
	eventID, err := strconv.Atoi(strings.TrimSpace(sale.ExternalEventID))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", authority.ErrNonNumericEvent, sale.ExternalEventID)
	}

	seats := make([]domain.SeatPosition, 0, len(sale.SeatIDs))
	for _, id := range sale.SeatIDs {
		pos, err := domain.ParseSeatID(id)
		if err != nil {
			return nil, err
		}
		seats = append(seats, pos)
	}
	return &SaleMessage{SaleID: sale.ID, EventID: eventID, Seats: seats}, nil
}

// jsonProducer is the part of kafka.Producer the publisher needs
type jsonProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v interface{}, headers map[string]string) error
}

// KafkaSalePublisher publishes sales to a Kafka topic keyed by sale id
type KafkaSalePublisher struct {
	producer    jsonProducer
	topic       string
	serviceName string
}

// NewKafkaSalePublisher creates a new KafkaSalePublisher
func NewKafkaSalePublisher(producer jsonProducer, topic, serviceName string) *KafkaSalePublisher {
	if topic == "" {
		topic = DefaultSaleTopic
	}
	if serviceName == "" {
		serviceName = "ticket-broker"
	}
	return &KafkaSalePublisher{producer: producer, topic: topic, serviceName: serviceName}
}

// PublishSale produces the sale and waits for the broker ack
func (p *KafkaSalePublisher) PublishSale(ctx context.Context, sale *domain.Sale) error {
	msg, err := NewSaleMessage(sale)
	if err != nil {
		return err
	}
	headers := map[string]string{
		"event_type": "sale.confirmed",
		"source":     p.serviceName,
		"sale_id":    sale.ID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.producer.ProduceJSON(ctx, p.topic, sale.ID, msg, headers); err != nil {
		return fmt.Errorf("kafka publish sale %s: %w", sale.ID, err)
	}
	return nil
}

// Name implements SalePublisher
func (p *KafkaSalePublisher) Name() string { return "kafka" }

// amqpPublisher is the part of rabbitmq.Publisher the publisher needs
type amqpPublisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
}

// RabbitSalePublisher publishes sales to RabbitMQ with publisher confirms
type RabbitSalePublisher struct {
	publisher  amqpPublisher
	routingKey string
}

// NewRabbitSalePublisher creates a new RabbitSalePublisher
func NewRabbitSalePublisher(publisher amqpPublisher, routingKey string) *RabbitSalePublisher {
	if routingKey == "" {
		routingKey = DefaultSaleTopic
	}
	return &RabbitSalePublisher{publisher: publisher, routingKey: routingKey}
}

// PublishSale publishes the sale and waits for the broker confirm
func (p *RabbitSalePublisher) PublishSale(ctx context.Context, sale *domain.Sale) error {
	msg, err := NewSaleMessage(sale)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := p.publisher.Publish(ctx, p.routingKey, sale.ID, body); err != nil {
		return fmt.Errorf("rabbitmq publish sale %s: %w", sale.ID, err)
	}
	return nil
}

// Name implements SalePublisher
func (p *RabbitSalePublisher) Name() string { return "rabbitmq" }

// NoOpSalePublisher is used when no secondary channel is configured. Every
// publish fails so the sale stays PENDING.
type NoOpSalePublisher struct{}

// NewNoOpSalePublisher creates a new NoOpSalePublisher
func NewNoOpSalePublisher() *NoOpSalePublisher {
	return &NoOpSalePublisher{}
}

// PublishSale implements SalePublisher
func (p *NoOpSalePublisher) PublishSale(ctx context.Context, sale *domain.Sale) error {
	return ErrSecondaryDisabled
}

// Name implements SalePublisher
func (p *NoOpSalePublisher) Name() string { return "none" }

var (
	_ SalePublisher = (*KafkaSalePublisher)(nil)
	_ SalePublisher = (*RabbitSalePublisher)(nil)
	_ SalePublisher = (*NoOpSalePublisher)(nil)
)
