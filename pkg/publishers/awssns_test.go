package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/samvad-hq/channel-relay/internal/logger"
)

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

func TestSNSPublisherPublishesEvent(t *testing.T) {
	client := &fakeSNSClient{}
	pub := &snsPublisher{
		id:       "topic",
		topicARN: "arn:aws:sns:eu-west-1:123:relay",
		client:   client,
		log:      logger.NopLogger{},
	}

	if err := pub.Publish(context.Background(), Event{ID: "evt-2", SourceChannelID: "-1002", MediaCount: 3}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(client.input.TopicArn); got != "arn:aws:sns:eu-west-1:123:relay" {
		t.Fatalf("TopicArn = %s", got)
	}
	if attr := client.input.MessageAttributes["source_channel_id"]; aws.ToString(attr.StringValue) != "-1002" {
		t.Fatalf("source_channel_id attribute = %#v", attr)
	}
	if msg := aws.ToString(client.input.Message); !strings.Contains(msg, `"media_count":3`) {
		t.Fatalf("Message missing media_count: %s", msg)
	}
}

func TestSNSPublisherReturnsClientError(t *testing.T) {
	pub := &snsPublisher{
		id:       "topic",
		topicARN: "arn",
		client:   &fakeSNSClient{err: errors.New("throttled")},
		log:      logger.NopLogger{},
	}
	if err := pub.Publish(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error")
	}
}
