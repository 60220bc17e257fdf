package config

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/trustmesh/go-signals"
	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

// AwsConfigWithOverride points every AWS client at a custom endpoint, e.g. a local DynamoDB or
// LocalStack for SQS.
func AwsConfigWithOverride(ctx context.Context, customEndpoint string) (aws.Config, error) {
	endpointResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			PartitionID:       "aws",
			URL:               customEndpoint,
			SigningRegion:     os.Getenv(signals.Env_AwsRegion),
			HostnameImmutable: true,
		}, nil
	})

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	return config.LoadDefaultConfig(
		httpCtx,
		config.WithRegion(os.Getenv(signals.Env_AwsRegion)),
		config.WithEndpointResolverWithOptions(endpointResolver),
	)
}

func AwsConfig(ctx context.Context, logger models.Logger) (aws.Config, error) {
	if awsEndpoint := os.Getenv(signals.Env_AwsEndpoint); len(awsEndpoint) > 0 {
		logger.Infof("config: using custom aws endpoint: %s", awsEndpoint)
		return AwsConfigWithOverride(ctx, awsEndpoint)
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	return config.LoadDefaultConfig(httpCtx, config.WithRegion(os.Getenv(signals.Env_AwsRegion)))
}
