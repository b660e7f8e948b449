package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrConditionFailed is returned when a conditional write (or a condition
// inside a transaction) is rejected by the store. Callers translate it into
// a domain error such as ErrAlreadyMember.
var ErrConditionFailed = errors.New("conditional write failed")

// TransactPut is a single conditional put inside a transactional write
type TransactPut struct {
	Table     string
	Item      interface{}
	Condition string // optional ConditionExpression
}

// TransactUpdate is a single conditional update inside a transactional write
type TransactUpdate struct {
	Table            string
	Key              map[string]types.AttributeValue
	UpdateExpression string
	Values           map[string]types.AttributeValue
	Names            map[string]string
	Condition        string // optional ConditionExpression
}

// DynamoAPI is the store surface the adapters depend on. *DynamoService is
// the production implementation; tests substitute an in-memory fake.
type DynamoAPI interface {
	PutItem(ctx context.Context, tableName string, item interface{}) error
	PutItemWithCondition(ctx context.Context, tableName string, item interface{}, condition string) error
	GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error)
	QueryItems(ctx context.Context, tableName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error)
	QueryItemsWithIndex(ctx context.Context, tableName, indexName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error)
	QueryItemsWithOptions(ctx context.Context, tableName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32, latestFirst bool) ([]map[string]types.AttributeValue, error)
	UpdateItemWithCondition(ctx context.Context, tableName, updateExpression string, key map[string]types.AttributeValue, values map[string]types.AttributeValue, names map[string]string, condition string) (map[string]types.AttributeValue, error)
	DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) error
	BatchGetItems(ctx context.Context, tableName string, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error)
	BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error
	TransactWrite(ctx context.Context, puts []TransactPut, updates []TransactUpdate) error
}

// DynamoService wraps the DynamoDB client with the generic operations the
// store adapters are built on
type DynamoService struct {
	Client *dynamodb.Client
}

// InitializeDynamoDBClient initializes the DynamoDB client
func InitializeDynamoDBClient() *dynamodb.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	return dynamodb.NewFromConfig(cfg)
}

// PutItem inserts an item unconditionally
func (ds *DynamoService) PutItem(ctx context.Context, tableName string, item interface{}) error {
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &tableName,
		Item:      marshaledItem,
	})
	if err != nil {
		return fmt.Errorf("failed to put item in table '%s': %w", tableName, err)
	}
	return nil
}

// PutItemWithCondition inserts an item guarded by a ConditionExpression.
// A rejected condition surfaces as ErrConditionFailed.
func (ds *DynamoService) PutItemWithCondition(ctx context.Context, tableName string, item interface{}, condition string) error {
	marshaledItem, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &tableName,
		Item:                marshaledItem,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("failed to put item in table '%s': %w", tableName, err)
	}
	return nil
}

// GetItem retrieves an item from DynamoDB. A missing item returns (nil, nil).
func (ds *DynamoService) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from table '%s': %w", tableName, err)
	}
	return output.Item, nil
}

// queryAPI is the slice of the DynamoDB client the paging loop needs
type queryAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// queryPages follows LastEvaluatedKey until the result set is complete or
// the limit is reached. A single Query page caps out at 1MB, so an unpaged
// query silently truncates large groups.
func queryPages(ctx context.Context, client queryAPI, input *dynamodb.QueryInput, limit int32) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		output, err := client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, output.Items...)
		if limit > 0 && int32(len(items)) >= limit {
			return items[:limit], nil
		}
		if len(output.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

// QueryItems queries items using a KeyConditionExpression
func (ds *DynamoService) QueryItems(ctx context.Context, tableName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 &tableName,
		KeyConditionExpression:    &keyCondition,
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	if limit > 0 {
		input.Limit = &limit
	}

	items, err := queryPages(ctx, ds.Client, input, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query items from table '%s': %w", tableName, err)
	}
	return items, nil
}

// QueryItemsWithIndex queries items through a Global Secondary Index (GSI)
func (ds *DynamoService) QueryItemsWithIndex(ctx context.Context, tableName, indexName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:                 &tableName,
		IndexName:                 &indexName,
		KeyConditionExpression:    &keyCondition,
		ExpressionAttributeValues: values,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	if limit > 0 {
		input.Limit = &limit
	}

	items, err := queryPages(ctx, ds.Client, input, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query GSI '%s': %w", indexName, err)
	}
	return items, nil
}

// QueryItemsWithOptions queries DynamoDB with sorting and limit options.
// latestFirst = true returns items in descending sort-key order.
func (ds *DynamoService) QueryItemsWithOptions(ctx context.Context, tableName, keyCondition string, values map[string]types.AttributeValue, names map[string]string, limit int32, latestFirst bool) ([]map[string]types.AttributeValue, error) {
	scanIndexForward := !latestFirst

	input := &dynamodb.QueryInput{
		TableName:                 &tableName,
		KeyConditionExpression:    &keyCondition,
		ExpressionAttributeValues: values,
		ScanIndexForward:          &scanIndexForward,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	if limit > 0 {
		input.Limit = &limit
	}

	items, err := queryPages(ctx, ds.Client, input, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query table '%s': %w", tableName, err)
	}
	return items, nil
}

// UpdateItemWithCondition updates an item guarded by an optional
// ConditionExpression and returns the new attribute values
func (ds *DynamoService) UpdateItemWithCondition(ctx context.Context, tableName, updateExpression string, key map[string]types.AttributeValue, values map[string]types.AttributeValue, names map[string]string, condition string) (map[string]types.AttributeValue, error) {
	if len(key) == 0 {
		return nil, errors.New("update failed: key cannot be empty")
	}
	if updateExpression == "" {
		return nil, errors.New("update failed: updateExpression cannot be empty")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 &tableName,
		Key:                       key,
		UpdateExpression:          &updateExpression,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}
	if condition != "" {
		input.ConditionExpression = &condition
	}

	output, err := ds.Client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrConditionFailed
		}
		return nil, fmt.Errorf("failed to update item in table '%s': %w", tableName, err)
	}
	return output.Attributes, nil
}

// DeleteItem removes an item from DynamoDB
func (ds *DynamoService) DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) error {
	_, err := ds.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &tableName,
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete item from table '%s': %w", tableName, err)
	}
	return nil
}

// BatchGetItems fetches multiple items by key in batches of 100
func (ds *DynamoService) BatchGetItems(ctx context.Context, tableName string, keys []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	const maxBatchSize = 100

	var results []map[string]types.AttributeValue
	for i := 0; i < len(keys); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		pending := keys[i:end]
		for len(pending) > 0 {
			output, err := ds.Client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					tableName: {Keys: pending},
				},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to batch get items from table '%s': %w", tableName, err)
			}
			results = append(results, output.Responses[tableName]...)
			pending = output.UnprocessedKeys[tableName].Keys
		}
	}
	return results, nil
}

// BatchWriteItems writes multiple items to DynamoDB in batches of 25
func (ds *DynamoService) BatchWriteItems(ctx context.Context, tableName string, writeRequests []types.WriteRequest) error {
	const maxBatchSize = 25

	for i := 0; i < len(writeRequests); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		batchInput := &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				tableName: writeRequests[i:end],
			},
		}

		_, err := ds.Client.BatchWriteItem(ctx, batchInput)
		if err != nil {
			return fmt.Errorf("failed to batch write items to table '%s': %w", tableName, err)
		}
	}
	return nil
}

// TransactWrite executes the given puts and updates as one atomic
// transaction. Any rejected condition cancels the whole transaction and
// surfaces as ErrConditionFailed.
func (ds *DynamoService) TransactWrite(ctx context.Context, puts []TransactPut, updates []TransactUpdate) error {
	var items []types.TransactWriteItem

	for _, p := range puts {
		marshaledItem, err := attributevalue.MarshalMap(p.Item)
		if err != nil {
			return fmt.Errorf("failed to marshal transact put item: %w", err)
		}
		put := &types.Put{
			TableName: aws.String(p.Table),
			Item:      marshaledItem,
		}
		if p.Condition != "" {
			put.ConditionExpression = aws.String(p.Condition)
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	for _, u := range updates {
		update := &types.Update{
			TableName:                 aws.String(u.Table),
			Key:                       u.Key,
			UpdateExpression:          aws.String(u.UpdateExpression),
			ExpressionAttributeValues: u.Values,
		}
		if len(u.Names) > 0 {
			update.ExpressionAttributeNames = u.Names
		}
		if u.Condition != "" {
			update.ConditionExpression = aws.String(u.Condition)
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}

	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return ErrConditionFailed
				}
			}
		}
		return fmt.Errorf("transactional write failed: %w", err)
	}
	return nil
}
