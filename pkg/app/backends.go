package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/changefeed"
	"github.com/chris/fuelpay/pkg/config"
	"github.com/chris/fuelpay/pkg/scheduler"
	"github.com/chris/fuelpay/pkg/storage"
	dydbstore "github.com/chris/fuelpay/pkg/storage/dynamodb"
	"github.com/chris/fuelpay/pkg/storage/memory"
	"github.com/chris/fuelpay/pkg/storage/postgres"
)

// awsConfig loads the SDK configuration once, on first use.
type awsConfig struct {
	cfg    aws.Config
	loaded bool
}

func (a *awsConfig) get(ctx context.Context) (aws.Config, error) {
	if a.loaded {
		return a.cfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	a.cfg, a.loaded = cfg, true
	return cfg, nil
}

func (a *App) buildStore(ctx context.Context, awsCfg *awsConfig) (storage.Storage, error) {
	switch a.Config.StorageBackend {
	case config.StorageDynamoDB:
		cfg, err := awsCfg.get(ctx)
		if err != nil {
			return nil, err
		}
		t := a.Config.DynamoDB
		return dydbstore.New(dynamodb.NewFromConfig(cfg), t.TransactionsTable, t.WalletsTable, t.LedgerTable), nil

	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres pool: %w", err)
		}
		a.onClose(func() error {
			pool.Close()
			return nil
		})
		store := postgres.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		return memory.New(), nil
	}
}

func (a *App) buildBroker() (changefeed.Broker, error) {
	switch a.Config.BrokerBackend {
	case config.BrokerRedis:
		client, err := changefeed.NewRedisClient(a.Config.RedisAddr, a.Config.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.onClose(client.Close)
		return changefeed.NewRedis(client, a.Config.RedisChannel, changefeed.DefaultBuffer, a.Log), nil

	case config.BrokerKafka:
		group := a.Config.KafkaGroupID
		if group == "" {
			group = "fuelpay-" + uuid.NewString()
		}
		k := changefeed.NewKafka(changefeed.KafkaConfig{
			Brokers: a.Config.KafkaBrokers,
			Topic:   a.Config.KafkaTopic,
			GroupID: group,
			Buffer:  changefeed.DefaultBuffer,
		}, a.Log)
		a.onClose(k.Close)
		a.background = append(a.background, k.Run)
		a.Log.Info("kafka change feed configured", zap.String("topic", a.Config.KafkaTopic), zap.String("group_id", group))
		return k, nil

	default:
		return changefeed.NewLocal(changefeed.DefaultBuffer), nil
	}
}

func (a *App) buildScheduler(ctx context.Context, awsCfg *awsConfig) (scheduler.Scheduler, error) {
	switch a.Config.SchedulerBackend {
	case config.SchedulerSQS:
		cfg, err := awsCfg.get(ctx)
		if err != nil {
			return nil, err
		}
		return scheduler.NewSQSScheduler(sqs.NewFromConfig(cfg), a.Config.SQSQueueURL), nil

	default:
		local := scheduler.NewLocal(a.Log)
		a.onClose(func() error {
			local.Stop()
			return nil
		})
		return local, nil
	}
}
