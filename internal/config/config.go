package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Notification sinks.
const (
	SinkLog    = "log"
	SinkStream = "stream"
	SinkSQS    = "sqs"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string

	// DBDriver 为 sqlite 或 postgres；两者都必须提供悲观锁语义。
	DBDriver   string
	DBDSN      string
	DBLogLevel string

	RedisAddr string
	RedisDB   int

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（确认提交后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	NotifySink  string
	SQSQueueURL string
	AWSRegion   string

	// 确认付款接口限流（防双击，不承担正确性）
	ConfirmRateLimit  int
	ConfirmRateWindow time.Duration

	FreeShippingThreshold int64
	ShippingHubCode       string
	ShippingHubRate       int64
	ShippingNationalRate  int64

	PaymentReferencePrefix string
	AdminToken             string
}

// Load 读取并校验配置，缺失时使用默认值。存在 .env 时先加载。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DBDriver:               strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:                  getEnv("DB_DSN", "storefront.db?_txlock=immediate&_busy_timeout=5000"),
		DBLogLevel:             strings.ToLower(getEnv("DB_LOG_LEVEL", "warn")),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:                0,
		KafkaBrokers:           splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", "storefront-order-events"),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "storefront-mailer"),
		OrderEventStream:       getEnv("ORDER_EVENT_STREAM", "storefront:order_events"),
		OrderEventGroup:        getEnv("ORDER_EVENT_GROUP", "storefront-relay-group"),
		OrderEventConsumer:     getEnv("ORDER_EVENT_CONSUMER", "storefront-relay-1"),
		NotifySink:             strings.ToLower(getEnv("NOTIFY_SINK", SinkLog)),
		SQSQueueURL:            getEnv("SQS_QUEUE_URL", ""),
		AWSRegion:              getEnv("AWS_REGION", "us-east-1"),
		ConfirmRateLimit:       5,
		ConfirmRateWindow:      time.Second,
		FreeShippingThreshold:  150000,
		ShippingHubCode:        getEnv("SHIPPING_HUB_CODE", "BOG"),
		ShippingHubRate:        10000,
		ShippingNationalRate:   18000,
		PaymentReferencePrefix: getEnv("PAYMENT_REFERENCE_PREFIX", "KME"),
		AdminToken:             getEnv("ADMIN_TOKEN", "dev-admin-token"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("CONFIRM_RATE_LIMIT", cfg.ConfirmRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CONFIRM_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CONFIRM_RATE_LIMIT must be > 0")
	}
	cfg.ConfirmRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("CONFIRM_RATE_WINDOW_SEC", int(cfg.ConfirmRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CONFIRM_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("CONFIRM_RATE_WINDOW_SEC must be > 0")
	}
	cfg.ConfirmRateWindow = time.Duration(rateWindowSec) * time.Second

	if cfg.FreeShippingThreshold, err = getEnvInt64("FREE_SHIPPING_THRESHOLD", cfg.FreeShippingThreshold); err != nil {
		return AppConfig{}, fmt.Errorf("invalid FREE_SHIPPING_THRESHOLD: %w", err)
	}
	if cfg.ShippingHubRate, err = getEnvInt64("SHIPPING_HUB_RATE", cfg.ShippingHubRate); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHIPPING_HUB_RATE: %w", err)
	}
	if cfg.ShippingNationalRate, err = getEnvInt64("SHIPPING_NATIONAL_RATE", cfg.ShippingNationalRate); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHIPPING_NATIONAL_RATE: %w", err)
	}
	if cfg.FreeShippingThreshold < 0 || cfg.ShippingHubRate < 0 || cfg.ShippingNationalRate < 0 {
		return AppConfig{}, fmt.Errorf("shipping amounts must be >= 0")
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return AppConfig{}, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		return AppConfig{}, fmt.Errorf("DB_DSN must not be empty")
	}

	switch cfg.NotifySink {
	case SinkLog:
	case SinkStream:
		if len(cfg.KafkaBrokers) == 0 {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
		if cfg.OrderEventStream == "" || cfg.OrderEventGroup == "" || cfg.OrderEventConsumer == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM/GROUP/CONSUMER must not be empty")
		}
	case SinkSQS:
		if cfg.SQSQueueURL == "" {
			return AppConfig{}, fmt.Errorf("SQS_QUEUE_URL must not be empty when NOTIFY_SINK=sqs")
		}
	default:
		return AppConfig{}, fmt.Errorf("NOTIFY_SINK must be one of log, stream, sqs; got %q", cfg.NotifySink)
	}

	if cfg.PaymentReferencePrefix == "" {
		return AppConfig{}, fmt.Errorf("PAYMENT_REFERENCE_PREFIX must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
