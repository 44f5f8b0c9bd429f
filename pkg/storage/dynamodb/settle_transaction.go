package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chris/fuelpay/pkg/models"
	"github.com/chris/fuelpay/pkg/storage"
)

// Positions of the items in the settlement TransactWriteItems call.
const (
	settleWalletItem = iota
	settleTransactionItem
	settleLedgerItem
)

// SettleTransaction confirms a pending transaction and debits the customer's
// wallet in a single TransactWriteItems call. The status condition on the
// transaction item is what makes a second settlement of the same id fail.
func (s *Store) SettleTransaction(ctx context.Context, tx *models.Transaction, at time.Time) (*models.Transaction, error) {
	amountAV, err := marshal(tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal amount for settlement: %w", err)
	}
	nowAV, err := marshal(at)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp for settlement: %w", err)
	}
	debitAV, err := marshalMap(storage.SettlementEntry(tx, at))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal debit entry: %w", err)
	}

	items := make([]types.TransactWriteItem, 3)
	items[settleWalletItem] = types.TransactWriteItem{
		Update: &types.Update{
			TableName:           aws.String(s.WalletsTableName),
			Key:                 map[string]types.AttributeValue{"user_id": &types.AttributeValueMemberS{Value: tx.UserId}},
			UpdateExpression:    aws.String("SET balance = balance - :amount, version = version + :inc"),
			ConditionExpression: aws.String("attribute_exists(user_id) AND balance >= :amount"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":amount": amountAV,
				":inc":    &types.AttributeValueMemberN{Value: "1"},
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}
	items[settleTransactionItem] = types.TransactWriteItem{
		Update: &types.Update{
			TableName:           aws.String(s.TransactionsTableName),
			Key:                 map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: tx.Id}},
			UpdateExpression:    aws.String("SET #status = :confirmed, updated_by = :actor, updated_at = :now"),
			ConditionExpression: aws.String("attribute_exists(id) AND #status = :pending"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":confirmed": &types.AttributeValueMemberS{Value: string(models.CONFIRMED)},
				":pending":   &types.AttributeValueMemberS{Value: string(models.PENDING)},
				":actor":     &types.AttributeValueMemberS{Value: string(models.CUSTOMER)},
				":now":       nowAV,
			},
		},
	}
	items[settleLedgerItem] = types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.LedgerTableName),
			Item:                debitAV,
			ConditionExpression: aws.String("attribute_not_exists(entry_id)"),
		},
	}

	_, err = s.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		// The status check wins over the balance check: a transaction that is
		// no longer pending must read as already resolved.
		if _, failed := cancellationReason(err, settleTransactionItem); failed {
			return nil, storage.ErrPreconditionFailed
		}
		if reason, failed := cancellationReason(err, settleWalletItem); failed {
			if reason.Item == nil {
				return nil, fmt.Errorf("wallet for user ID %s: %w", tx.UserId, storage.ErrNotFound)
			}
			return nil, storage.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to execute settlement transaction: %w", err)
	}

	settled := tx.Clone()
	settled.Status = models.CONFIRMED
	settled.UpdatedBy = models.CUSTOMER
	settled.UpdatedAt = at
	return settled, nil
}
