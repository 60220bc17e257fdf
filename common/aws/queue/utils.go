package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/trustmesh/go-signals"
	"github.com/trustmesh/go-signals/common"
)

type Type string

const (
	Type_Signal Type = "signal"
	Type_DLQ    Type = "dlq"
)

const defaultVisibilityTimeout = 5 * time.Minute
const defaultRetention = 4 * 24 * time.Hour
const DefaultMaxReceiveCount = 3

type RedriveOpts struct {
	DlqArn          string
	MaxReceiveCount int
}

type Opts struct {
	QueueType         Type
	VisibilityTimeout *time.Duration
	RedriveOpts       *RedriveOpts
}

type redrivePolicy struct {
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	MaxReceiveCount     int    `json:"maxReceiveCount"`
}

// CreateQueue is idempotent: SQS returns the existing queue when the attributes match.
func CreateQueue(ctx context.Context, sqsClient *sqs.Client, opts Opts) (string, string, string, error) {
	visibilityTimeout := defaultVisibilityTimeout
	if opts.VisibilityTimeout != nil {
		visibilityTimeout = *opts.VisibilityTimeout
	}
	name := QueueName(opts.QueueType)
	createQueueIn := sqs.CreateQueueInput{
		QueueName: aws.String(name),
		Attributes: map[string]string{
			string(types.QueueAttributeNameVisibilityTimeout):      strconv.Itoa(int(visibilityTimeout.Seconds())),
			string(types.QueueAttributeNameMessageRetentionPeriod): strconv.Itoa(int(defaultRetention.Seconds())),
		},
	}
	if opts.RedriveOpts != nil && len(opts.RedriveOpts.DlqArn) > 0 && opts.RedriveOpts.MaxReceiveCount > 0 {
		marshaledRedrivePolicy, _ := json.Marshal(redrivePolicy{
			DeadLetterTargetArn: opts.RedriveOpts.DlqArn,
			MaxReceiveCount:     opts.RedriveOpts.MaxReceiveCount,
		})
		createQueueIn.Attributes[string(types.QueueAttributeNameRedrivePolicy)] = string(marshaledRedrivePolicy)
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	createQueueOut, err := sqsClient.CreateQueue(httpCtx, &createQueueIn)
	if err != nil {
		return "", "", "", fmt.Errorf("queue: create %s: %w", name, err)
	}
	queueAttr, err := getQueueAttributes(ctx, *createQueueOut.QueueUrl, sqsClient)
	if err != nil {
		return "", "", "", err
	}
	return *createQueueOut.QueueUrl, queueAttr[string(types.QueueAttributeNameQueueArn)], name, nil
}

func GetQueueUtilization(ctx context.Context, queueUrl string, sqsClient *sqs.Client) (int, int, error) {
	queueAttr, err := getQueueAttributes(ctx, queueUrl, sqsClient)
	if err != nil {
		return 0, 0, err
	}
	unprocessed, err := intAttribute(queueAttr, types.QueueAttributeNameApproximateNumberOfMessages)
	if err != nil {
		return 0, 0, err
	}
	inFlight, err := intAttribute(queueAttr, types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)
	if err != nil {
		return 0, 0, err
	}
	return unprocessed, inFlight, nil
}

func QueueName(queueType Type) string {
	env := os.Getenv(signals.Env_Env)
	if len(env) == 0 {
		env = signals.EnvTag_Dev
	}
	return fmt.Sprintf("signals-%s-%s", env, string(queueType))
}

func intAttribute(queueAttr map[string]string, name types.QueueAttributeName) (int, error) {
	if valueStr, found := queueAttr[string(name)]; found {
		return strconv.Atoi(valueStr)
	}
	return 0, nil
}

func getQueueAttributes(ctx context.Context, queueUrl string, sqsClient *sqs.Client) (map[string]string, error) {
	getQueueAttrIn := sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueUrl),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameAll},
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer httpCancel()

	getQueueAttrOut, err := sqsClient.GetQueueAttributes(httpCtx, &getQueueAttrIn)
	if err != nil {
		return nil, fmt.Errorf("queue: attributes %s: %w", queueUrl, err)
	}
	return getQueueAttrOut.Attributes, nil
}
