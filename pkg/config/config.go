// Package config loads service settings from the environment, an optional
// .env file and an optional YAML file named by CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names.
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
	StoragePostgres = "postgres"

	BrokerLocal = "local"
	BrokerRedis = "redis"
	BrokerKafka = "kafka"

	SchedulerLocal = "local"
	SchedulerSQS   = "sqs"
)

// DynamoDB names the record store tables.
type DynamoDB struct {
	TransactionsTable string
	WalletsTable      string
	LedgerTable       string
}

// Config is the full service configuration.
type Config struct {
	HTTPPort string
	LogLevel string

	StorageBackend string
	DynamoDB       DynamoDB
	PostgresDSN    string

	BrokerBackend string
	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string

	SchedulerBackend string
	SQSQueueURL      string

	TransactionTimeout         time.Duration
	PriceCheckEnabled          bool
	PriceToleranceCents        int64
	DeclineOnInsufficientFunds bool
	HistoryLimit               int32

	SubscriptionMaxRetries int
	SubscriptionBackoff    time.Duration
}

var defaults = map[string]any{
	"HTTP_PORT":                        "8080",
	"LOG_LEVEL":                        "info",
	"STORAGE_BACKEND":                  StorageMemory,
	"DYNAMODB_TRANSACTIONS_TABLE_NAME": "",
	"DYNAMODB_WALLETS_TABLE_NAME":      "",
	"DYNAMODB_LEDGER_TABLE_NAME":       "",
	"POSTGRES_DSN":                     "",
	"BROKER_BACKEND":                   BrokerLocal,
	"REDIS_ADDR":                       "",
	"REDIS_PASSWORD":                   "",
	"REDIS_CHANNEL":                    "fuelpay:transactions",
	"KAFKA_BROKERS":                    "",
	"KAFKA_TOPIC":                      "fuelpay.transactions",
	"KAFKA_GROUP_ID":                   "",
	"SCHEDULER_BACKEND":                SchedulerLocal,
	"SQS_QUEUE_URL":                    "",
	"TRANSACTION_TIMEOUT":              "60s",
	"PRICE_CHECK_ENABLED":              false,
	"PRICE_TOLERANCE_CENTS":            1,
	"DECLINE_ON_INSUFFICIENT_FUNDS":    false,
	"SUBSCRIPTION_MAX_RETRIES":         5,
	"SUBSCRIPTION_BACKOFF":             "500ms",
	"HISTORY_LIMIT":                    10,
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment, which wins over both.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromViper(viper.New())
}

// FromViper fills a Config from v, installing defaults and env bindings.
func FromViper(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	cfg := Config{
		HTTPPort:       v.GetString("HTTP_PORT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		StorageBackend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
		DynamoDB: DynamoDB{
			TransactionsTable: v.GetString("DYNAMODB_TRANSACTIONS_TABLE_NAME"),
			WalletsTable:      v.GetString("DYNAMODB_WALLETS_TABLE_NAME"),
			LedgerTable:       v.GetString("DYNAMODB_LEDGER_TABLE_NAME"),
		},
		PostgresDSN:                v.GetString("POSTGRES_DSN"),
		BrokerBackend:              strings.ToLower(v.GetString("BROKER_BACKEND")),
		RedisAddr:                  v.GetString("REDIS_ADDR"),
		RedisPassword:              v.GetString("REDIS_PASSWORD"),
		RedisChannel:               v.GetString("REDIS_CHANNEL"),
		KafkaBrokers:               splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:                 v.GetString("KAFKA_TOPIC"),
		KafkaGroupID:               v.GetString("KAFKA_GROUP_ID"),
		SchedulerBackend:           strings.ToLower(v.GetString("SCHEDULER_BACKEND")),
		SQSQueueURL:                v.GetString("SQS_QUEUE_URL"),
		TransactionTimeout:         v.GetDuration("TRANSACTION_TIMEOUT"),
		PriceCheckEnabled:          v.GetBool("PRICE_CHECK_ENABLED"),
		PriceToleranceCents:        v.GetInt64("PRICE_TOLERANCE_CENTS"),
		DeclineOnInsufficientFunds: v.GetBool("DECLINE_ON_INSUFFICIENT_FUNDS"),
		HistoryLimit:               v.GetInt32("HISTORY_LIMIT"),
		SubscriptionMaxRetries:     v.GetInt("SUBSCRIPTION_MAX_RETRIES"),
		SubscriptionBackoff:        v.GetDuration("SUBSCRIPTION_BACKOFF"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every key the selected backends need is present.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case StorageMemory:
	case StorageDynamoDB:
		if c.DynamoDB.TransactionsTable == "" || c.DynamoDB.WalletsTable == "" || c.DynamoDB.LedgerTable == "" {
			errs = append(errs, errors.New("one or more DynamoDB table name variables are not set"))
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	switch c.BrokerBackend {
	case BrokerLocal:
	case BrokerRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis broker"))
		}
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka broker"))
		}
		if c.KafkaTopic == "" {
			errs = append(errs, errors.New("KAFKA_TOPIC must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BROKER_BACKEND %q", c.BrokerBackend))
	}

	switch c.SchedulerBackend {
	case SchedulerLocal:
	case SchedulerSQS:
		if c.SQSQueueURL == "" {
			errs = append(errs, errors.New("SQS_QUEUE_URL is required for the sqs scheduler"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SCHEDULER_BACKEND %q", c.SchedulerBackend))
	}

	if c.TransactionTimeout <= 0 {
		errs = append(errs, errors.New("TRANSACTION_TIMEOUT must be positive"))
	}
	if c.PriceToleranceCents < 0 {
		errs = append(errs, errors.New("PRICE_TOLERANCE_CENTS must not be negative"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must be positive"))
	}
	if c.SubscriptionMaxRetries < 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_MAX_RETRIES must not be negative"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
