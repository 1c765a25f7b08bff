package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wonny/aegis-risk/pkg/httputil"
	"github.com/wonny/aegis-risk/pkg/logger"

	"github.com/wonny/aegis-risk/internal/contracts"
)

// payload is the wire form shared by the webhook and Kafka sinks
type payload struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

func toPayload(n contracts.Notification) payload {
	return payload{Recipient: n.Recipient, Subject: n.Subject, Body: n.Body, SentAt: time.Now().UTC()}
}

// =============================================================================
// Log
// =============================================================================

// LogSink writes notifications to the structured log
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log sink
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.Component("notify_log")}
}

// Name implements contracts.Notifier
func (s *LogSink) Name() string { return "log" }

// Send implements contracts.Notifier
func (s *LogSink) Send(_ context.Context, n contracts.Notification) error {
	s.log.WithFields(map[string]interface{}{
		"recipient": n.Recipient,
		"subject":   n.Subject,
	}).Info(n.Body)
	return nil
}

// =============================================================================
// Webhook
// =============================================================================

// WebhookSink posts notifications as JSON
type WebhookSink struct {
	url    string
	client *httputil.Client
}

// NewWebhookSink creates a webhook sink using the retrying HTTP client
func NewWebhookSink(url string, log *logger.Logger) *WebhookSink {
	return &WebhookSink{url: url, client: httputil.New(log)}
}

// NewWebhookSinkWithClient creates a webhook sink with a caller-supplied client
func NewWebhookSinkWithClient(url string, client *httputil.Client) *WebhookSink {
	return &WebhookSink{url: url, client: client}
}

// Name implements contracts.Notifier
func (s *WebhookSink) Name() string { return "webhook" }

// Send implements contracts.Notifier
func (s *WebhookSink) Send(ctx context.Context, n contracts.Notification) error {
	resp, err := s.client.PostJSON(ctx, s.url, toPayload(n))
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// Kafka
// =============================================================================

// messageWriter is the subset of *kafka.Writer the sink needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes notifications to a topic keyed by recipient
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// NewKafkaSink creates a synchronous producer for topic
func NewKafkaSink(brokers []string, topic string, log *logger.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    false,
	}
	return &KafkaSink{writer: w, topic: topic, log: log.Component("notify_kafka")}
}

// Name implements contracts.Notifier
func (s *KafkaSink) Name() string { return "kafka" }

// Send implements contracts.Notifier
func (s *KafkaSink) Send(ctx context.Context, n contracts.Notification) error {
	data, err := json.Marshal(toPayload(n))
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(n.Recipient), Value: data}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}
	s.log.Debugf("Published to %s: %s", s.topic, n.Recipient)
	return nil
}

// Close flushes and closes the producer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
