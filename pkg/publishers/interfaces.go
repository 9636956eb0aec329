package publishers

import "context"

// Publisher sends relay events to a downstream sink (SQS, SNS, Pub/Sub, Kafka, HTTP).
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// closer is implemented by sinks holding connections.
type closer interface {
	Close() error
}
