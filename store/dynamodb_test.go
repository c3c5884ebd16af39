package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/caldermoor/maestro"
)

// mockDynamoDBClient implements DynamoDBClient interface for testing
type mockDynamoDBClient struct {
	putItemFunc func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	getItemFunc func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	queryFunc   func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

func (m *mockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFunc != nil {
		return m.putItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFunc != nil {
		return m.getItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, params, optFns...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func TestDynamoDBStore_CreateInstance(t *testing.T) {
	var capturedInput *dynamodb.PutItemInput

	client := &mockDynamoDBClient{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			capturedInput = params
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	if err := s.CreateInstance(context.Background(), testInstance("i-1")); err != nil {
		t.Fatalf("CreateInstance() failed: %v", err)
	}

	if capturedInput == nil {
		t.Fatal("PutItem was not called")
	}
	if *capturedInput.TableName != "test-table" {
		t.Errorf("TableName = %s, want test-table", *capturedInput.TableName)
	}
	if *capturedInput.ConditionExpression != "attribute_not_exists(PK)" {
		t.Errorf("ConditionExpression = %s, want attribute_not_exists(PK)", *capturedInput.ConditionExpression)
	}

	pk := capturedInput.Item[AttrPK].(*types.AttributeValueMemberS).Value
	if pk != "INSTANCE#i-1" {
		t.Errorf("PK = %s, want INSTANCE#i-1", pk)
	}
	sk := capturedInput.Item[AttrSK].(*types.AttributeValueMemberS).Value
	if sk != "META" {
		t.Errorf("SK = %s, want META", sk)
	}
	entityType := capturedInput.Item[AttrEntityType].(*types.AttributeValueMemberS).Value
	if entityType != EntityTypeInstance {
		t.Errorf("entity_type = %s, want %s", entityType, EntityTypeInstance)
	}
}

func TestDynamoDBStore_CreateInstance_AlreadyExists(t *testing.T) {
	client := &mockDynamoDBClient{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	err := s.CreateInstance(context.Background(), testInstance("i-1"))
	if err == nil {
		t.Fatal("expected error on duplicate create")
	}
	if !maestro.IsStoreError(err) {
		t.Errorf("error is not a store error: %v", err)
	}
}

func TestDynamoDBStore_GetInstance(t *testing.T) {
	instance := testInstance("i-1")
	item, err := attributevalue.MarshalMap(instance)
	if err != nil {
		t.Fatalf("MarshalMap() failed: %v", err)
	}

	var capturedKey map[string]types.AttributeValue
	client := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			capturedKey = params.Key
			return &dynamodb.GetItemOutput{Item: item}, nil
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	got, err := s.GetInstance(context.Background(), "i-1")
	if err != nil {
		t.Fatalf("GetInstance() failed: %v", err)
	}
	if got.InstanceID != "i-1" {
		t.Errorf("InstanceID = %s, want i-1", got.InstanceID)
	}
	if got.Status != maestro.StatusRunning {
		t.Errorf("Status = %s, want RUNNING", got.Status)
	}
	if got.Context["key"] != "value" {
		t.Errorf("Context[key] = %v, want value", got.Context["key"])
	}

	pk := capturedKey[AttrPK].(*types.AttributeValueMemberS).Value
	if pk != "INSTANCE#i-1" {
		t.Errorf("PK = %s, want INSTANCE#i-1", pk)
	}
}

func TestDynamoDBStore_GetInstance_NotFound(t *testing.T) {
	client := &mockDynamoDBClient{
		getItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: nil}, nil
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	_, err := s.GetInstance(context.Background(), "ghost")
	if !errors.Is(err, maestro.ErrInstanceNotFound) {
		t.Errorf("error does not wrap ErrInstanceNotFound: %v", err)
	}
}

func TestDynamoDBStore_UpdateInstance_NotFound(t *testing.T) {
	client := &mockDynamoDBClient{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			if *params.ConditionExpression != "attribute_exists(PK)" {
				t.Errorf("ConditionExpression = %s, want attribute_exists(PK)", *params.ConditionExpression)
			}
			return nil, &types.ConditionalCheckFailedException{}
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	err := s.UpdateInstance(context.Background(), testInstance("ghost"))
	if !errors.Is(err, maestro.ErrInstanceNotFound) {
		t.Errorf("error does not wrap ErrInstanceNotFound: %v", err)
	}
}

func TestDynamoDBStore_CreateHistoryEntry(t *testing.T) {
	var capturedInput *dynamodb.PutItemInput
	client := &mockDynamoDBClient{
		putItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			capturedInput = params
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	entry := &maestro.HistoryEntry{
		InstanceID:    "i-1",
		Timestamp:     time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		StepName:      "gather",
		OutcomeStatus: "success",
	}
	if err := s.CreateHistoryEntry(context.Background(), entry); err != nil {
		t.Fatalf("CreateHistoryEntry() failed: %v", err)
	}

	pk := capturedInput.Item[AttrPK].(*types.AttributeValueMemberS).Value
	if pk != "INSTANCE#i-1" {
		t.Errorf("PK = %s, want INSTANCE#i-1", pk)
	}
	sk := capturedInput.Item[AttrSK].(*types.AttributeValueMemberS).Value
	want := "HIST#2026-03-14T09:26:53.589793238Z#00000001"
	if sk != want {
		t.Errorf("SK = %s, want %s", sk, want)
	}
}

func TestDynamoDBStore_HistorySKOrdering(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	// Fixed-width nanoseconds keep lexicographic and chronological order aligned
	earlier := historySK(base.Add(90*time.Nanosecond), 1)
	later := historySK(base.Add(100*time.Nanosecond), 2)
	if !(earlier < later) {
		t.Errorf("SK ordering broken: %s should sort before %s", earlier, later)
	}
}

func TestDynamoDBStore_GetHistory(t *testing.T) {
	entries := []*maestro.HistoryEntry{
		{InstanceID: "i-1", StepName: "gather", OutcomeStatus: "success"},
		{InstanceID: "i-1", StepName: "process", OutcomeStatus: "success"},
	}

	var items []map[string]types.AttributeValue
	for _, entry := range entries {
		item, err := attributevalue.MarshalMap(entry)
		if err != nil {
			t.Fatalf("MarshalMap() failed: %v", err)
		}
		items = append(items, item)
	}

	var capturedInput *dynamodb.QueryInput
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			capturedInput = params
			return &dynamodb.QueryOutput{Items: items}, nil
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	got, err := s.GetHistory(context.Background(), "i-1", 0)
	if err != nil {
		t.Fatalf("GetHistory() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(got))
	}
	if got[0].StepName != "gather" || got[1].StepName != "process" {
		t.Errorf("history = %s, %s, want gather, process", got[0].StepName, got[1].StepName)
	}

	if *capturedInput.ScanIndexForward != true {
		t.Error("unlimited read should scan forward")
	}
}

func TestDynamoDBStore_GetHistory_Limited(t *testing.T) {
	// The store queries newest first and reverses, so the most recent
	// entries come back oldest first
	newestFirst := []*maestro.HistoryEntry{
		{InstanceID: "i-1", StepName: "verify"},
		{InstanceID: "i-1", StepName: "process"},
	}

	var items []map[string]types.AttributeValue
	for _, entry := range newestFirst {
		item, err := attributevalue.MarshalMap(entry)
		if err != nil {
			t.Fatalf("MarshalMap() failed: %v", err)
		}
		items = append(items, item)
	}

	var capturedInput *dynamodb.QueryInput
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			capturedInput = params
			return &dynamodb.QueryOutput{Items: items}, nil
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	got, err := s.GetHistory(context.Background(), "i-1", 2)
	if err != nil {
		t.Fatalf("GetHistory() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(got))
	}
	if got[0].StepName != "process" || got[1].StepName != "verify" {
		t.Errorf("history = %s, %s, want process, verify", got[0].StepName, got[1].StepName)
	}

	if *capturedInput.ScanIndexForward != false {
		t.Error("limited read should scan backward")
	}
	if *capturedInput.Limit != 2 {
		t.Errorf("Limit = %d, want 2", *capturedInput.Limit)
	}
}

func TestDynamoDBStore_GetHistory_QueryError(t *testing.T) {
	client := &mockDynamoDBClient{
		queryFunc: func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return nil, errors.New("throughput exceeded")
		},
	}

	s := NewDynamoDBStore(client, "test-table")

	_, err := s.GetHistory(context.Background(), "i-1", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !maestro.IsStoreError(err) {
		t.Errorf("error is not a store error: %v", err)
	}
}
