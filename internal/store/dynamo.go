package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"kaiwabot/internal/logger"
)

// dynamoItem is the stored record shape. ExpiresAt doubles as the table's
// DynamoDB TTL attribute; since DynamoDB expires items lazily, reads check
// it explicitly as well.
type dynamoItem struct {
	Key       string `dynamodbav:"k"`
	Value     []byte `dynamodbav:"v"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// DynamoStore is a KeyValueStore backed by a single DynamoDB table with a
// string partition key named "k".
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore loads the default AWS configuration and creates a store
// over tableName.
func NewDynamoStore(ctx context.Context, tableName string) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Debug("DynamoDB store initialized", "table", tableName)
	return &DynamoStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

// NewDynamoStoreFromClient wraps an existing DynamoDB client.
func NewDynamoStoreFromClient(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// Get implements KeyValueStore.
func (d *DynamoStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.itemKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dynamodb get %q: %v", ErrStoreUnavailable, key, err)
	}
	if result.Item == nil {
		return nil, ErrKeyNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: dynamodb unmarshal %q: %v", ErrStoreUnavailable, key, err)
	}

	if item.ExpiresAt > 0 && item.ExpiresAt <= time.Now().Unix() {
		// DynamoDB TTL deletion lags; treat the record as gone.
		return nil, ErrKeyNotFound
	}
	return item.Value, nil
}

// Set implements KeyValueStore.
func (d *DynamoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(d.newItem(key, value, ttl))
	if err != nil {
		return fmt.Errorf("%w: dynamodb marshal %q: %v", ErrStoreUnavailable, key, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: dynamodb put %q: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// SetNX implements KeyValueStore. Atomicity comes from a conditional put:
// the write succeeds only when no live record exists for the key.
func (d *DynamoStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	item, err := attributevalue.MarshalMap(d.newItem(key, value, ttl))
	if err != nil {
		return false, fmt.Errorf("%w: dynamodb marshal %q: %v", ErrStoreUnavailable, key, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(k) OR expires_at <= :now"),
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":now": &dynamodbtypes.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
	})
	if err != nil {
		var conditionFailed *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("%w: dynamodb conditional put %q: %v", ErrStoreUnavailable, key, err)
	}
	return true, nil
}

// Delete implements KeyValueStore.
func (d *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("%w: dynamodb delete %q: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

func (d *DynamoStore) itemKey(key string) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		"k": &dynamodbtypes.AttributeValueMemberS{Value: key},
	}
}

func (d *DynamoStore) newItem(key string, value []byte, ttl time.Duration) dynamoItem {
	item := dynamoItem{Key: key, Value: value}
	if ttl > 0 {
		item.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	return item
}
