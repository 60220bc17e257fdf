package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/abevier/go-sqs/gosqs"

	"github.com/trustmesh/go-signals/models"
)

var _ models.QueuePublisher = &Publisher{}

const maxLinger = 250 * time.Millisecond

// Publisher batches outgoing signal events into SQS SendMessageBatch calls.
type Publisher struct {
	queueType Type
	url       string
	publisher *gosqs.SQSPublisher
}

func NewPublisher(ctx context.Context, sqsClient *sqs.Client, opts Opts) (*Publisher, error) {
	url, _, _, err := CreateQueue(ctx, sqsClient, opts)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		opts.QueueType,
		url,
		gosqs.NewPublisher(sqsClient, url, maxLinger),
	}, nil
}

func (p Publisher) GetUrl() string {
	return p.url
}

func (p Publisher) SendMessage(ctx context.Context, event any) (string, error) {
	eventBody, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return p.publisher.SendMessage(ctx, string(eventBody))
}
