package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/trustmesh/go-signals/models"
)

var _ models.ResourceMonitor = &Monitor{}

// Monitor reports the queue backlog, i.e. messages not yet received plus those in flight.
type Monitor struct {
	queueUrl string
	client   *sqs.Client
}

func NewMonitor(queueUrl string, sqsClient *sqs.Client) *Monitor {
	return &Monitor{queueUrl, sqsClient}
}

func (m Monitor) GetValue(ctx context.Context) (int, error) {
	unprocessed, inFlight, err := GetQueueUtilization(ctx, m.queueUrl, m.client)
	if err != nil {
		return 0, err
	}
	return unprocessed + inFlight, nil
}
