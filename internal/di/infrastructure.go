package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/ticket-broker/internal/authority"
	"github.com/prohmpiriya/ticket-broker/internal/handler"
	"github.com/prohmpiriya/ticket-broker/internal/service"
	"github.com/prohmpiriya/ticket-broker/pkg/config"
	"github.com/prohmpiriya/ticket-broker/pkg/database"
	"github.com/prohmpiriya/ticket-broker/pkg/kafka"
	"github.com/prohmpiriya/ticket-broker/pkg/rabbitmq"
	pkgredis "github.com/prohmpiriya/ticket-broker/pkg/redis"
)

// Secondary is the broker channel chosen by SALE_SECONDARY_CHANNEL
type Secondary struct {
	Publisher service.SalePublisher
	// Check is nil when the channel has nothing to probe
	Check handler.HealthChecker
	Close func()
}

// NewSecondary connects the configured broker channel. A broker that cannot
// be reached falls back to the no-op publisher so the primary channel keeps
// working; sales then stay PENDING until the broker returns.
func NewSecondary(ctx context.Context, cfg *config.Config) (*Secondary, error) {
	noop := &Secondary{Publisher: service.NewNoOpSalePublisher(), Close: func() {}}

	switch cfg.Sale.SecondaryChannel {
	case "kafka":
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:        cfg.Kafka.Brokers,
			ClientID:       cfg.Kafka.ClientID,
			MaxRetries:     3,
			RetryInterval:  time.Second,
			RequireAllAcks: true,
		})
		if err != nil {
			return noop, fmt.Errorf("kafka: %w", err)
		}
		return &Secondary{
			Publisher: service.NewKafkaSalePublisher(producer, cfg.Sale.Topic, cfg.App.Name),
			Check:     producer,
			Close:     producer.Close,
		}, nil

	case "rabbitmq":
		publisher, err := rabbitmq.NewPublisher(&rabbitmq.PublisherConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Queues:   []string{cfg.Sale.Topic},
		})
		if err != nil {
			return noop, fmt.Errorf("rabbitmq: %w", err)
		}
		return &Secondary{
			Publisher: service.NewRabbitSalePublisher(publisher, cfg.Sale.Topic),
			Close:     func() { _ = publisher.Close() },
		}, nil

	default:
		return noop, nil
	}
}

// NewAuthorityClient builds the authority HTTP client and its token source
func NewAuthorityClient(cfg *config.Config) *authority.Client {
	tokens := authority.NewCredentialProvider(authority.CredentialConfig{
		StaticToken:  cfg.Authority.StaticToken,
		TokenFile:    cfg.Authority.TokenFile,
		LoginURL:     cfg.Authority.BaseURL + cfg.Authority.LoginPath,
		Username:     cfg.Authority.Username,
		Password:     cfg.Authority.Password,
		LoginTimeout: cfg.Authority.LoginTimeout,
	})
	return authority.NewClient(authority.Config{
		BaseURL:         cfg.Authority.BaseURL,
		BlockSeatsPath:  cfg.Authority.BlockSeatsPath,
		ConfirmSalePath: cfg.Authority.ConfirmSalePath,
		Timeout:         cfg.Authority.Timeout,
	}, tokens)
}

// PostgresConfig maps application config onto the pool settings
func PostgresConfig(cfg *config.Config) *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	}
}

// RedisConfig maps application config onto the client settings
func RedisConfig(cfg *config.Config) *pkgredis.Config {
	return &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// SaleServiceConfig maps application config onto the sale service
func SaleServiceConfig(cfg *config.Config) *service.SaleServiceConfig {
	return &service.SaleServiceConfig{
		MaxAttempts:           cfg.Sale.MaxAttempts,
		ConfirmBackoff:        cfg.Sale.ConfirmBackoff,
		RetryBackoff:          cfg.Sale.RetryBackoff,
		RequireAuthorityLocks: cfg.Sale.RequireAuthorityLocks,
		GuardTTL:              cfg.Sale.ConfirmGuardTTL,
		GuardWait:             cfg.Sale.ConfirmGuardWait,
		SweepBatchSize:        cfg.RetryWorker.BatchSize,
	}
}
