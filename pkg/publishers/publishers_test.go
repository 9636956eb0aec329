package publishers

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRegistryEnabledFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.yaml")
	raw := `
publishers:
  - id: http1
    type: http
    enabled: false
    http:
      url: https://example.com
  - id: http2
    type: http
    enabled: true
    http:
      url: https://example.com/2
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "http2" {
		t.Fatalf("expected only http2 enabled, got %#v", enabled)
	}
}

func TestValidatePublisherConfigRejectsMissingHTTP(t *testing.T) {
	err := validatePublisherConfig(PublisherConfig{
		ID:   "h1",
		Type: TypeHTTP,
	})
	if err == nil {
		t.Fatalf("expected validation error for missing http block")
	}
}

func TestLoadRegistryParsesAllSinkTypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.json")
	raw := `{"publishers": [
  {"id": " q ", "type": "SQS", "sqs": {"uri": "https://sqs/queue", "region": "eu-west-1"}},
  {"id": "t", "type": "sns", "sns": {"topic_arn": "arn:aws:sns:x", "region": "eu-west-1"}},
  {"id": "p", "type": "gcp_pubsub", "gcp_pubsub": {"project_id": "proj", "topic": "relay"}},
  {"id": "k", "type": "kafka", "kafka": {"brokers": [" localhost:9092 ", ""], "topic": "relay"}}
]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(reg.All()) != 4 {
		t.Fatalf("expected 4 publishers, got %d", len(reg.All()))
	}
	q, ok := reg.ByID("q")
	if !ok || q.Type != TypeSQS {
		t.Fatalf("ByID(q) = %#v, %v", q, ok)
	}
	k, _ := reg.ByID("k")
	if len(k.Kafka.Brokers) != 1 || k.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("kafka brokers not sanitized: %#v", k.Kafka.Brokers)
	}
}

func TestValidatePublisherConfigRejectsUnknownType(t *testing.T) {
	if err := validatePublisherConfig(PublisherConfig{ID: "x", Type: "carrier_pigeon"}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}

func TestValidatePublisherConfigRequiresSinkFields(t *testing.T) {
	cases := []PublisherConfig{
		{ID: "s", Type: TypeSNS, SNS: &SNSPublisherConfig{Region: "eu-west-1"}},
		{ID: "p", Type: TypeGCPPubSub, GCPPubSub: &GCPPubSubPublisherConfig{ProjectID: "proj"}},
		{ID: "k", Type: TypeKafka, Kafka: &KafkaPublisherConfig{Topic: "relay"}},
	}
	for _, cfg := range cases {
		if err := validatePublisherConfig(cfg); err == nil {
			t.Fatalf("expected validation error for %s", cfg.ID)
		}
	}
}
