package ddb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

const tableCreationWait = 2 * time.Minute

// createTable creates the table if needed and blocks until it is active. Several processes may race to
// create the same table, so an in-use error just means someone else won.
func createTable(ctx context.Context, logger models.Logger, client *dynamodb.Client, createTableIn *dynamodb.CreateTableInput) error {
	tableName := *createTableIn.TableName
	if exists, err := tableExists(ctx, logger, client, tableName); err != nil {
		return err
	} else if exists {
		return nil
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	if _, err := client.CreateTable(httpCtx, createTableIn); err != nil {
		var inUseErr *types.ResourceInUseException
		if !errors.As(err, &inUseErr) {
			return err
		}
		logger.Infof("ddb: table %s is already being created", tableName)
	}
	return dynamodb.NewTableExistsWaiter(client).Wait(
		ctx,
		&dynamodb.DescribeTableInput{TableName: aws.String(tableName)},
		tableCreationWait,
	)
}

func tableExists(ctx context.Context, logger models.Logger, client *dynamodb.Client, table string) (bool, error) {
	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	output, err := client.DescribeTable(httpCtx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		var notFoundErr *types.ResourceNotFoundException
		if errors.As(err, &notFoundErr) {
			logger.Infof("ddb: table does not exist: %v", table)
			return false, nil
		}
		return false, err
	}
	return output.Table.TableStatus == types.TableStatusActive, nil
}
