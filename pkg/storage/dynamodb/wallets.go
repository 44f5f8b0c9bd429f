package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

// CreateWallet creates a new wallet record in DynamoDB.
func (s *Store) CreateWallet(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	walletAV, err := marshalMap(wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wallet: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.WalletsTableName),
		Item:                walletAV,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"), // Prevent overwriting existing wallets.
	}

	_, err = s.Client.PutItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, fmt.Errorf("wallet for user ID %s: %w", wallet.UserId, storage.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create wallet in DynamoDB: %w", err)
	}

	return wallet, nil
}

// DeleteWallet deletes a wallet record from DynamoDB.
func (s *Store) DeleteWallet(ctx context.Context, userID string) error {
	key, err := marshalMap(map[string]string{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to marshal wallet user ID for deletion: %w", err)
	}

	input := &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.WalletsTableName),
		Key:                 key,
		ConditionExpression: aws.String("attribute_exists(user_id)"), // Ensure the wallet exists before deleting.
	}

	_, err = s.Client.DeleteItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
		}
		return fmt.Errorf("failed to delete wallet from DynamoDB: %w", err)
	}

	return nil
}

// GetWallet retrieves a user's wallet from DynamoDB by their user ID.
func (s *Store) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	key, err := marshalMap(map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wallet user ID: %w", err)
	}

	input := &dynamodb.GetItemInput{
		TableName:      aws.String(s.WalletsTableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
	}

	var wallet models.Wallet
	if err := attributevalue.UnmarshalMap(result.Item, &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}

	return &wallet, nil
}

// ListWallets retrieves all wallets from DynamoDB.
func (s *Store) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.WalletsTableName),
	}

	var wallets []models.Wallet
	for {
		result, err := s.Client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallets table: %w", err)
		}

		var page []models.Wallet
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wallets: %w", err)
		}
		wallets = append(wallets, page...)

		if len(result.LastEvaluatedKey) == 0 {
			return wallets, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// TopUpWallet adds amount to the balance with an ADD update, which commutes
// with concurrent top-ups, and records a credit ledger entry.
func (s *Store) TopUpWallet(ctx context.Context, userID string, amount int64, at time.Time) (*models.Wallet, error) {
	amountAV, err := marshal(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal top-up amount: %w", err)
	}
	creditAV, err := marshalMap(storage.TopUpEntry(userID, amount, at))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credit entry: %w", err)
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName:           aws.String(s.WalletsTableName),
					Key:                 map[string]types.AttributeValue{"user_id": &types.AttributeValueMemberS{Value: userID}},
					UpdateExpression:    aws.String("ADD balance :amount, version :inc"),
					ConditionExpression: aws.String("attribute_exists(user_id)"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":amount": amountAV,
						":inc":    &types.AttributeValueMemberN{Value: "1"},
					},
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.LedgerTableName),
					Item:                creditAV,
					ConditionExpression: aws.String("attribute_not_exists(entry_id)"),
				},
			},
		},
	}

	if _, err := s.Client.TransactWriteItems(ctx, input); err != nil {
		if _, failed := cancellationReason(err, 0); failed {
			return nil, fmt.Errorf("wallet for user ID %s: %w", userID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to execute top-up transaction: %w", err)
	}

	return s.GetWallet(ctx, userID)
}
