package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

// InsertTransaction writes a new transaction record, refusing to overwrite an existing id.
func (s *Store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	txAV, err := marshalMap(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.TransactionsTableName),
		Item:                txAV,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}

	if _, err := s.Client.PutItem(ctx, input); err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return fmt.Errorf("transaction with ID %s: %w", tx.Id, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to put transaction in DynamoDB: %w", err)
	}
	return nil
}
