package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/model"
	"storefront/internal/queue"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the notifier uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// LoadAWSConfig loads the default credential chain for region.
func LoadAWSConfig(ctx context.Context, region string) (sdkaws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return cfg, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// NewSQSClient builds a client from the default AWS config.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg), nil
}

// SQSNotifier publishes order events as JSON messages to one queue.
type SQSNotifier struct {
	SQS      SQSAPI
	QueueURL string
}

func NewSQSNotifier(client SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{SQS: client, QueueURL: queueURL}
}

func (n *SQSNotifier) OrderCreated(ctx context.Context, o model.Order) error {
	return n.send(ctx, queue.NewOrderEvent(queue.EventOrderCreated, o))
}

func (n *SQSNotifier) OrderPaid(ctx context.Context, o model.Order) error {
	return n.send(ctx, queue.NewOrderEvent(queue.EventOrderPaid, o))
}

func (n *SQSNotifier) send(ctx context.Context, evt queue.OrderEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(n.QueueURL),
		MessageBody: sdkaws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: sdkaws.String("String"), StringValue: sdkaws.String(evt.Type)},
			"event_id":   {DataType: sdkaws.String("String"), StringValue: sdkaws.String(evt.EventID)},
		},
	}
	if _, err := n.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
