package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/caldermoor/maestro"
)

// DynamoDBStore implements maestro.InstanceStore using AWS DynamoDB with a
// single-table design
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string

	// Tie-breaker for history entries written within the same nanosecond
	seq atomic.Uint64
}

// NewDynamoDBStore creates a new DynamoDB-backed instance store
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

var _ maestro.InstanceStore = (*DynamoDBStore)(nil)

// Instance operations

func (s *DynamoDBStore) CreateInstance(ctx context.Context, instance *maestro.WorkflowInstance) error {
	item, err := attributevalue.MarshalMap(instance)
	if err != nil {
		return maestro.NewStoreError(maestro.StoreErrCodeInternal, "create_instance",
			fmt.Errorf("failed to marshal workflow instance: %w", err))
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: instancePK(instance.InstanceID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: instanceSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeInstance}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return maestro.NewStoreError(maestro.StoreErrCodeQuery, "create_instance",
				fmt.Errorf("workflow instance %s already exists", instance.InstanceID))
		}
		return maestro.NewStoreError(maestro.StoreErrCodeConnection, "create_instance",
			fmt.Errorf("failed to create workflow instance: %w", err))
	}

	return nil
}

func (s *DynamoDBStore) GetInstance(ctx context.Context, instanceID string) (*maestro.WorkflowInstance, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: instancePK(instanceID)},
			AttrSK: &types.AttributeValueMemberS{Value: instanceSK()},
		},
	})
	if err != nil {
		return nil, maestro.NewStoreError(maestro.StoreErrCodeConnection, "get_instance",
			fmt.Errorf("failed to get workflow instance: %w", err))
	}

	if result.Item == nil {
		return nil, maestro.NewStoreError(maestro.StoreErrCodeNotFound, "get_instance",
			fmt.Errorf("%w: %s", maestro.ErrInstanceNotFound, instanceID))
	}

	var instance maestro.WorkflowInstance
	if err := attributevalue.UnmarshalMap(result.Item, &instance); err != nil {
		return nil, maestro.NewStoreError(maestro.StoreErrCodeInternal, "get_instance",
			fmt.Errorf("failed to unmarshal workflow instance: %w", err))
	}

	return &instance, nil
}

func (s *DynamoDBStore) UpdateInstance(ctx context.Context, instance *maestro.WorkflowInstance) error {
	item, err := attributevalue.MarshalMap(instance)
	if err != nil {
		return maestro.NewStoreError(maestro.StoreErrCodeInternal, "update_instance",
			fmt.Errorf("failed to marshal workflow instance: %w", err))
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: instancePK(instance.InstanceID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: instanceSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeInstance}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return maestro.NewStoreError(maestro.StoreErrCodeNotFound, "update_instance",
				fmt.Errorf("%w: %s", maestro.ErrInstanceNotFound, instance.InstanceID))
		}
		return maestro.NewStoreError(maestro.StoreErrCodeConnection, "update_instance",
			fmt.Errorf("failed to update workflow instance: %w", err))
	}

	return nil
}

// History operations

func (s *DynamoDBStore) CreateHistoryEntry(ctx context.Context, entry *maestro.HistoryEntry) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return maestro.NewStoreError(maestro.StoreErrCodeInternal, "create_history_entry",
			fmt.Errorf("failed to marshal history entry: %w", err))
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: historyPK(entry.InstanceID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: historySK(entry.Timestamp, s.seq.Add(1))}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeHistory}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return maestro.NewStoreError(maestro.StoreErrCodeConnection, "create_history_entry",
			fmt.Errorf("failed to create history entry: %w", err))
	}

	return nil
}

// GetHistory returns history entries oldest first. A positive limit returns
// the most recent entries, still in oldest-first order.
func (s *DynamoDBStore) GetHistory(ctx context.Context, instanceID string, limit int) ([]*maestro.HistoryEntry, error) {
	var entries []*maestro.HistoryEntry
	var lastEvaluatedKey map[string]types.AttributeValue

	// A limited read queries newest first so the most recent entries win
	forward := limit <= 0

	for {
		queryInput := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: historyPK(instanceID)},
				":sk": &types.AttributeValueMemberS{Value: historyPrefix()},
			},
			ScanIndexForward: aws.Bool(forward),
		}
		if limit > 0 {
			queryInput.Limit = aws.Int32(int32(limit - len(entries)))
		}
		if lastEvaluatedKey != nil {
			queryInput.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := s.client.Query(ctx, queryInput)
		if err != nil {
			return nil, maestro.NewStoreError(maestro.StoreErrCodeConnection, "get_history",
				fmt.Errorf("failed to get history: %w", err))
		}

		for _, item := range result.Items {
			var entry maestro.HistoryEntry
			if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
				return nil, maestro.NewStoreError(maestro.StoreErrCodeInternal, "get_history",
					fmt.Errorf("failed to unmarshal history entry: %w", err))
			}
			entries = append(entries, &entry)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		if limit > 0 && len(entries) >= limit {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	// Restore oldest-first order after a newest-first limited read
	if !forward {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	return entries, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
