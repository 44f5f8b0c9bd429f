package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/chris/fuelpay/pkg/app"
	"github.com/chris/fuelpay/pkg/config"
	"github.com/chris/fuelpay/pkg/logging"
)

var (
	application *app.App
	logger      *zap.Logger
)

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if logger, err = logging.NewLogger(cfg.LogLevel); err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	if application, err = app.New(context.Background(), cfg, logger); err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
}

// HandleRequest is triggered by an EventBridge Schedule. It expires every
// pending transaction whose deadline passed without its delayed message
// being processed.
func HandleRequest(ctx context.Context) error {
	logger.Info("starting reconciliation of overdue transactions")

	expired, err := application.Coordinator.ExpireOverdue(ctx)
	if err != nil {
		// Partial failures are retried on the next schedule.
		logger.Error("reconciliation incomplete", zap.Int("expired", expired), zap.Error(err))
		return err
	}

	logger.Info("reconciliation finished", zap.Int("expired", expired))
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
