// Package pipeline собирает платёжный конвейер из конфига: хранилище, кэш,
// шлюз Точки, каталог цен, машину прав и движок сверки.
// Используется API и отдельным планировщиком.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/docgen-billing/internal/cache"
	"github.com/magabrotheeeer/docgen-billing/internal/config"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/docgen-billing/internal/lib/sl"
	"github.com/magabrotheeeer/docgen-billing/internal/metrics"
	"github.com/magabrotheeeer/docgen-billing/internal/paymentprovider"
	"github.com/magabrotheeeer/docgen-billing/internal/plans"
	"github.com/magabrotheeeer/docgen-billing/internal/services/entitlement"
	"github.com/magabrotheeeer/docgen-billing/internal/services/payment"
	"github.com/magabrotheeeer/docgen-billing/internal/services/reconcile"
	"github.com/magabrotheeeer/docgen-billing/internal/services/scheduler"
	"github.com/magabrotheeeer/docgen-billing/internal/storage/repository"
)

// Pipeline готовые к работе компоненты.
type Pipeline struct {
	Storage  *repository.Storage
	Cache    *cache.Cache // nil, если Redis не настроен
	Gateway  *paymentprovider.Client
	Metrics  *metrics.Metrics
	Payments *payment.Service
	Engine   *reconcile.Engine
	Sweeper  *scheduler.SchedulerService

	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// Build подключается к внешним системам и связывает сервисы.
// Без адреса Redis права не кэшируются, без URL RabbitMQ события не публикуются.
// Таблицы должны существовать: миграции применяет вызывающий через migrate.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, migrate func(*repository.Storage) error) (*Pipeline, error) {
	p := &Pipeline{logger: logger}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	p.Storage = db

	if migrate != nil {
		if err := migrate(db); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}
	if err := waitForDB(db); err != nil {
		p.Close()
		return nil, err
	}

	var invalidator reconcile.CacheInvalidator
	if cfg.AddressRedis != "" {
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
		p.Cache = c
		invalidator = c
	} else {
		logger.Warn("redis address is empty, entitlement cache disabled")
	}

	var events reconcile.EventPublisher
	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
		}
		p.conn = conn
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.Exchange, rabbitmq.GetBillingQueues())
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
		}
		p.ch = ch
		events = rabbitmq.NewPublisher(ch, rabbitmq.Exchange)
	} else {
		logger.Warn("rabbitmq url is empty, payment events disabled")
	}

	p.Metrics = metrics.New(reg)
	p.Gateway = paymentprovider.NewClient(cfg.Tochka.BaseURL, cfg.APIToken, cfg.WebhookSecret, cfg.Tochka.Timeout)
	catalog := plans.New(cfg.Pricing)
	machine := entitlement.New(catalog)

	p.Payments = payment.New(logger, db, p.Gateway, catalog, payment.Options{
		CustomerCode:    cfg.CustomerCode,
		PaymentModes:    cfg.PaymentModes,
		RedirectURL:     cfg.RedirectURL,
		FailRedirectURL: cfg.FailRedirectURL,
		LinkTTL:         cfg.LinkTTL,
	}, p.Metrics)
	p.Engine = reconcile.New(logger, db, p.Gateway, machine, invalidator, events, p.Metrics)
	p.Sweeper = scheduler.NewSchedulerService(db, p.Engine, scheduler.Options{
		Debounce:  cfg.Debounce,
		Lookback:  cfg.Lookback,
		BatchSize: cfg.BatchSize,
	}, p.Metrics, logger)

	return p, nil
}

// Close освобождает соединения в обратном порядке.
func (p *Pipeline) Close() {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if p.Cache != nil {
		if err := p.Cache.Close(); err != nil {
			p.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if p.Storage != nil {
		if err := p.Storage.Close(); err != nil {
			p.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
