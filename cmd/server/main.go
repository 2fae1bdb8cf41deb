package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/customer"
	"storefront/internal/database"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	"storefront/internal/order"
	"storefront/internal/queue"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/shipping"
	"storefront/internal/stock"
	"storefront/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	rd "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 连接数据库，自动建表
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN, cfg.DBLogLevel)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}

	// 2. Redis：确认接口限流、通知 outbox、投递状态
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis ping: %v (rate limit fails open)", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 通知：log 直接写日志；stream 经 Redis Stream → Kafka → mailer；sqs 直接投递队列
	var wg sync.WaitGroup
	var notifier notify.Notifier
	switch cfg.NotifySink {
	case config.SinkStream:
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		relay := queue.NewRelay(rdb, producer, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)
		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, cfg.OrderEventConsumer,
			rdb, notify.MailHandler(notify.LogMailer{}))
		defer consumer.Close()

		wg.Add(2)
		go func() { defer wg.Done(); relay.Run(ctx) }()
		go func() { defer wg.Done(); consumer.Run(ctx) }()

		notifier = notify.NewStreamNotifier(queue.NewStreamWriter(rdb, cfg.OrderEventStream))
	case config.SinkSQS:
		client, err := notify.NewSQSClient(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatalf("sqs client: %v", err)
		}
		notifier = notify.NewSQSNotifier(client, cfg.SQSQueueURL)
	default:
		notifier = notify.NewLogNotifier(notify.LogMailer{})
	}

	// 4. 仓储与服务
	txr := repository.NewTxRunner(db)
	orders := repository.NewOrderRepository(db)
	variants := repository.NewVariantRepository(db)
	products := repository.NewProductRepository(db)
	validator := stock.NewValidator(variants)
	m := metrics.New(prometheus.NewRegistry())

	orderSvc := order.NewService(order.Deps{
		Tx:        txr,
		Orders:    orders,
		Variants:  variants,
		Customers: customer.NewService(repository.NewCustomerRepository(db)),
		Validator: validator,
		Notifier:  notifier,
		Rates: shipping.Rates{
			FreeThreshold: cfg.FreeShippingThreshold,
			HubCode:       cfg.ShippingHubCode,
			HubRate:       cfg.ShippingHubRate,
			NationalRate:  cfg.ShippingNationalRate,
		},
		Refs:    order.NewReferenceGenerator(cfg.PaymentReferencePrefix),
		Metrics: m,
	})

	r := gin.Default()
	r.Use(m.Middleware())
	router.Setup(r, router.Deps{
		Orders:    orderSvc,
		Catalog:   catalog.NewService(txr, products, variants),
		Stock:     validator,
		Metrics:   m,
		Redis:     rdb,
		Validator: validation.New(),
		Config:    cfg,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Printf("http listening on %s (db=%s notify=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.NotifySink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	wg.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
