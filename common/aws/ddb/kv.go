package ddb

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/trustmesh/go-signals"
	"github.com/trustmesh/go-signals/models"
)

var _ models.KeyValueRepository = &KvDatabase{}

type kvItem struct {
	Key       string    `dynamodbav:"key"`
	Value     string    `dynamodbav:"value"`
	UpdatedAt time.Time `dynamodbav:"ts,unixtime"`
}

type KvDatabase struct {
	client  *dynamodb.Client
	logger  models.Logger
	kvTable string
}

func NewKvDb(ctx context.Context, logger models.Logger, client *dynamodb.Client) (*KvDatabase, error) {
	env := os.Getenv(signals.Env_Env)
	if len(env) == 0 {
		env = signals.EnvTag_Dev
	}
	kdb := KvDatabase{
		client,
		logger,
		"signals-" + env + "-kv",
	}
	if err := kdb.createKvTable(ctx); err != nil {
		return nil, fmt.Errorf("ddb: kv table creation failed: %w", err)
	}
	return &kdb, nil
}

func (kdb *KvDatabase) createKvTable(ctx context.Context) error {
	createTableInput := dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("key"),
				AttributeType: "S",
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("key"),
				KeyType:       "HASH",
			},
		},
		TableName: aws.String(kdb.kvTable),
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(1),
			WriteCapacityUnits: aws.Int64(1),
		},
	}
	return createTable(ctx, kdb.logger, kdb.client, &createTableInput)
}

func (kdb *KvDatabase) Get(ctx context.Context, key string) (string, bool, error) {
	getItemIn := dynamodb.GetItemInput{
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
		TableName:      aws.String(kdb.kvTable),
		ConsistentRead: aws.Bool(true),
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer httpCancel()

	getItemOut, err := kdb.client.GetItem(httpCtx, &getItemIn)
	if err != nil {
		return "", false, fmt.Errorf("ddb: get %s: %w", key, err)
	}
	if getItemOut.Item == nil {
		return "", false, nil
	}
	item := kvItem{}
	if err = attributevalue.UnmarshalMapWithOptions(getItemOut.Item, &item); err != nil {
		return "", false, fmt.Errorf("ddb: unmarshal %s: %w", key, err)
	}
	return item.Value, true, nil
}

// Set overwrites unconditionally. Ordering of values is the caller's concern.
func (kdb *KvDatabase) Set(ctx context.Context, key, value string) error {
	attributeValues, err := attributevalue.MarshalMapWithOptions(kvItem{key, value, time.Now()})
	if err != nil {
		return fmt.Errorf("ddb: marshal %s: %w", key, err)
	}
	putItemIn := dynamodb.PutItemInput{
		TableName: aws.String(kdb.kvTable),
		Item:      attributeValues,
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer httpCancel()

	if _, err = kdb.client.PutItem(httpCtx, &putItemIn); err != nil {
		kdb.logger.Errorf("ddb: error writing %s: %v", key, err)
		return fmt.Errorf("ddb: set %s: %w", key, err)
	}
	return nil
}

func (kdb *KvDatabase) Delete(ctx context.Context, key string) error {
	deleteItemIn := dynamodb.DeleteItemInput{
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
		TableName: aws.String(kdb.kvTable),
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer httpCancel()

	if _, err := kdb.client.DeleteItem(httpCtx, &deleteItemIn); err != nil {
		return fmt.Errorf("ddb: delete %s: %w", key, err)
	}
	return nil
}

// Keys scans the table. The table only holds a handful of cursor rows so a filtered scan is acceptable.
func (kdb *KvDatabase) Keys(ctx context.Context, prefix string) ([]string, error) {
	scanIn := dynamodb.ScanInput{
		TableName:                aws.String(kdb.kvTable),
		FilterExpression:         aws.String("begins_with(#key, :prefix)"),
		ProjectionExpression:     aws.String("#key"),
		ExpressionAttributeNames: map[string]string{"#key": "key"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}
	keys := make([]string, 0)
	paginator := dynamodb.NewScanPaginator(kdb.client, &scanIn)
	for paginator.HasMorePages() {
		httpCtx, httpCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
		scanOut, err := paginator.NextPage(httpCtx)
		httpCancel()
		if err != nil {
			return nil, fmt.Errorf("ddb: scan %s: %w", prefix, err)
		}
		for _, item := range scanOut.Items {
			if keyAttr, ok := item["key"].(*types.AttributeValueMemberS); ok {
				keys = append(keys, keyAttr.Value)
			}
		}
	}
	return keys, nil
}
