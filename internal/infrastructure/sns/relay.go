package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-notify-hub/internal/config"
	"github.com/go-notify-hub/internal/domain"
)

type publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// OfflineRelay publishes notifications for recipients with no live
// connection to an SNS topic, where push or email fan-out subscribes.
type OfflineRelay struct {
	client   publisher
	topicARN string
}

func NewOfflineRelay(cfg *config.Config) (*OfflineRelay, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.SNSRegion)}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return newOfflineRelay(client, cfg.SNSOfflineTopicARN), nil
}

func newOfflineRelay(client publisher, topicARN string) *OfflineRelay {
	return &OfflineRelay{client: client, topicARN: topicARN}
}

// PublishNotification sends the notification JSON with recipient and
// priority as message attributes so subscribers can filter.
func (r *OfflineRelay) PublishNotification(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(r.topicARN),
		Subject:  aws.String(truncate(n.Title, 100)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipient": {DataType: aws.String("String"), StringValue: aws.String(n.RecipientID)},
			"priority":  {DataType: aws.String("String"), StringValue: aws.String(string(n.Priority))},
			"type":      {DataType: aws.String("String"), StringValue: aws.String(string(n.Category))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
