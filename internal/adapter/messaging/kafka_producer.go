// Package messaging provides the optional ports.EventPublisher
// implementation backed by Kafka, publishing pipeline-stage-completion
// events for downstream consumers (e.g. a packaging service). Entirely
// optional: the orchestrator runs identically with messaging disabled.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

// KafkaProducer implements ports.EventPublisher using per-topic writers
// cached lazily, the way the teacher's producer does for forensic-domain
// events, here re-pointed at pipeline-stage events.
type KafkaProducer struct {
	mu          sync.Mutex
	writers     map[string]*kafka.Writer
	brokers     []string
	topicPrefix string
	logger      ports.Logger
}

func NewKafkaProducer(brokers []string, topicPrefix string, logger ports.Logger) *KafkaProducer {
	return &KafkaProducer{
		brokers:     brokers,
		topicPrefix: topicPrefix,
		logger:      logger,
		writers:     make(map[string]*kafka.Writer),
	}
}

func (p *KafkaProducer) topicName(topic string) string {
	if p.topicPrefix != "" {
		return fmt.Sprintf("%s.%s", p.topicPrefix, topic)
	}
	return topic
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	full := p.topicName(topic)
	if w, ok := p.writers[full]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        full,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	p.writers[full] = w
	return w
}

func (p *KafkaProducer) publish(ctx context.Context, topic string, key string, payload map[string]interface{}) error {
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for topic %s: %w", topic, err)
	}
	err = p.writer(topic).WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: body})
	if err != nil {
		p.logger.Warn("kafka publish failed", "topic", topic, "error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaProducer) PublishEvidenceIngested(ctx context.Context, sha256, caseID string) error {
	return p.publish(ctx, "evidence.ingested", sha256, map[string]interface{}{
		"sha256": sha256, "case_id": caseID,
	})
}

func (p *KafkaProducer) PublishEvidenceAnalyzed(ctx context.Context, sha256 string, evType domain.EvidenceType) error {
	return p.publish(ctx, "evidence.analyzed", sha256, map[string]interface{}{
		"sha256": sha256, "evidence_type": string(evType),
	})
}

func (p *KafkaProducer) PublishCaseCorrelated(ctx context.Context, caseID string) error {
	return p.publish(ctx, "case.correlated", caseID, map[string]interface{}{"case_id": caseID})
}

func (p *KafkaProducer) PublishCaseSummarized(ctx context.Context, caseID string) error {
	return p.publish(ctx, "case.summarized", caseID, map[string]interface{}{"case_id": caseID})
}

func (p *KafkaProducer) PublishCustodyAppended(ctx context.Context, sha256 string, action domain.CustodyAction) error {
	return p.publish(ctx, "custody.appended", sha256, map[string]interface{}{
		"sha256": sha256, "action": string(action),
	})
}

func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoopPublisher is used when messaging is disabled in config; every method
// is a cheap no-op so the orchestrator never needs a nil check.
type NoopPublisher struct{}

func (NoopPublisher) PublishEvidenceIngested(context.Context, string, string) error { return nil }
func (NoopPublisher) PublishEvidenceAnalyzed(context.Context, string, domain.EvidenceType) error {
	return nil
}
func (NoopPublisher) PublishCaseCorrelated(context.Context, string) error  { return nil }
func (NoopPublisher) PublishCaseSummarized(context.Context, string) error  { return nil }
func (NoopPublisher) PublishCustodyAppended(context.Context, string, domain.CustodyAction) error {
	return nil
}
func (NoopPublisher) Close() error { return nil }

var _ ports.EventPublisher = (*KafkaProducer)(nil)
var _ ports.EventPublisher = NoopPublisher{}
