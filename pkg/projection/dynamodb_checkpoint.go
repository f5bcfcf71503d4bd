package projection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/haloiam/core/pkg/eventstore"
)

// DynamoDBCheckpointStore is the alternate checkpoint backend for
// deployments that keep their read models in DynamoDB rather than a
// relational database. It implements the same lease/advance contract as
// GormCheckpointStore via conditional UpdateItem calls, but — because its
// read-model writes live in separate table items a projector manages
// itself — it cannot offer GormCheckpointStore's RunInTransaction
// combination. Worker therefore falls back to a non-transactional
// acquire/apply/advance sequence for it; a projector using this store must
// keep its own writes idempotent so a crash between apply and advance only
// ever causes harmless re-application, never data loss.
type DynamoDBCheckpointStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoDBCheckpointStore wraps an already-configured client.
func NewDynamoDBCheckpointStore(client *dynamodb.Client, table string) *DynamoDBCheckpointStore {
	return &DynamoDBCheckpointStore{client: client, table: table}
}

type checkpointItem struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	Pos            int64  `dynamodbav:"pos"`
	InTxOrder      int    `dynamodbav:"in_tx_order"`
	Owner          string `dynamodbav:"owner"`
	LeaseExpiresAt string `dynamodbav:"lease_expires_at"`
	RetryCount     int    `dynamodbav:"retry_count"`
	LastError      string `dynamodbav:"last_error"`
	Failed         bool   `dynamodbav:"failed"`
}

func checkpointKey(instanceID, name string) (string, string) {
	return "CHECKPOINT#" + instanceID, "NAME#" + name
}

// Acquire implements CheckpointStore via a conditional PutItem: the item
// may be written if it does not yet exist, if this owner already holds it,
// or if its recorded lease has expired.
func (s *DynamoDBCheckpointStore) Acquire(ctx context.Context, instanceID, name, owner string, lease time.Duration) (Checkpoint, bool, error) {
	pk, sk := checkpointKey(instanceID, name)
	now := time.Now().UTC()

	existing, err := s.Get(ctx, instanceID, name)
	if err != nil {
		return Checkpoint{}, false, err
	}
	if existing.Failed {
		return existing, false, nil
	}
	if existing.Owner != "" && existing.Owner != owner && existing.LeaseExpiresAt.After(now) {
		return existing, false, nil
	}

	item := checkpointItem{
		PK: pk, SK: sk,
		Pos: existing.Position.Pos, InTxOrder: existing.Position.InTxOrder,
		Owner: owner, LeaseExpiresAt: now.Add(lease).Format(time.RFC3339Nano),
		RetryCount: existing.RetryCount, LastError: existing.LastError,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("marshaling checkpoint item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.table,
		Item:                av,
		ConditionExpression: strPtr("attribute_not_exists(pk) OR #owner = :owner OR #lease < :now"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
			"#lease": "lease_expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
			":now":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return existing, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("acquiring lease for %s: %w", name, err)
	}

	cp := item.toCheckpoint(instanceID, name)
	return cp, true, nil
}

func (i checkpointItem) toCheckpoint(instanceID, name string) Checkpoint {
	lease, _ := time.Parse(time.RFC3339Nano, i.LeaseExpiresAt)
	return Checkpoint{
		InstanceID:     instanceID,
		Name:           name,
		Position:       eventstore.Position{Pos: i.Pos, InTxOrder: i.InTxOrder},
		Owner:          i.Owner,
		LeaseExpiresAt: lease,
		RetryCount:     i.RetryCount,
		LastError:      i.LastError,
		Failed:         i.Failed,
	}
}

// Advance implements CheckpointStore with a conditional UpdateItem keyed on
// still being the lease owner.
func (s *DynamoDBCheckpointStore) Advance(ctx context.Context, instanceID, name, owner string, pos eventstore.Position) error {
	pk, sk := checkpointKey(instanceID, name)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression:    strPtr("SET pos = :pos, in_tx_order = :order, retry_count = :zero, last_error = :empty, failed = :false"),
		ConditionExpression: strPtr("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pos":   &types.AttributeValueMemberN{Value: strconv.FormatInt(pos.Pos, 10)},
			":order": &types.AttributeValueMemberN{Value: strconv.Itoa(pos.InTxOrder)},
			":zero":  &types.AttributeValueMemberN{Value: "0"},
			":empty": &types.AttributeValueMemberS{Value: ""},
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return fmt.Errorf("advancing checkpoint %s: lease not held by %s", name, owner)
	}
	if err != nil {
		return fmt.Errorf("advancing checkpoint %s: %w", name, err)
	}
	return nil
}

// RecordFailure implements CheckpointStore.
func (s *DynamoDBCheckpointStore) RecordFailure(ctx context.Context, instanceID, name, owner string, failure error) error {
	pk, sk := checkpointKey(instanceID, name)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression: strPtr("SET last_error = :err ADD retry_count :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":err": &types.AttributeValueMemberS{Value: failure.Error()},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("recording failure for %s: %w", name, err)
	}
	return nil
}

// MarkFailed implements CheckpointStore.
func (s *DynamoDBCheckpointStore) MarkFailed(ctx context.Context, instanceID, name, owner string, failure error) error {
	pk, sk := checkpointKey(instanceID, name)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression: strPtr("SET failed = :true, last_error = :err"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":err":  &types.AttributeValueMemberS{Value: failure.Error()},
		},
	})
	if err != nil {
		return fmt.Errorf("marking checkpoint %s failed: %w", name, err)
	}
	return nil
}

// Release implements CheckpointStore.
func (s *DynamoDBCheckpointStore) Release(ctx context.Context, instanceID, name, owner string) error {
	pk, sk := checkpointKey(instanceID, name)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression:    strPtr("SET #owner = :empty"),
		ConditionExpression: strPtr("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberS{Value: ""},
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return nil
	}
	return err
}

// Get implements CheckpointStore.
func (s *DynamoDBCheckpointStore) Get(ctx context.Context, instanceID, name string) (Checkpoint, error) {
	pk, sk := checkpointKey(instanceID, name)
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.table,
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: pk},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("reading checkpoint %s: %w", name, err)
	}
	if out.Item == nil {
		return Checkpoint{InstanceID: instanceID, Name: name}, nil
	}
	var item checkpointItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Checkpoint{}, fmt.Errorf("unmarshaling checkpoint %s: %w", name, err)
	}
	return item.toCheckpoint(instanceID, name), nil
}

func strPtr(s string) *string { return &s }
