// Package events announces durably stored articles to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pevans/harvest/store"
)

// Publisher announces articles after they have been persisted.
type Publisher interface {
	Publish(ctx context.Context, runID string, articles []store.Article) error
	Close() error
}

// ArticleEvent is the message value written for each article.
type ArticleEvent struct {
	RunID      string    `json:"run_id"`
	AcceptedAt time.Time `json:"accepted_at"`
	store.Article
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per article, keyed by article URL so
// repeats of a URL land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	})
}

// NewKafkaPublisherWithWriter builds a publisher using a custom writer (tests).
func NewKafkaPublisherWithWriter(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, now: time.Now}
}

// Close shuts down the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Publish writes all articles in a single batch.
func (p *KafkaPublisher) Publish(ctx context.Context, runID string, articles []store.Article) error {
	if len(articles) == 0 {
		return nil
	}

	acceptedAt := p.now().UTC()
	msgs := make([]kafka.Message, 0, len(articles))
	for _, article := range articles {
		payload, err := json.Marshal(ArticleEvent{
			RunID:      runID,
			AcceptedAt: acceptedAt,
			Article:    article,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event for %s: %w", article.URL, err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(article.URL),
			Value: payload,
			Time:  acceptedAt,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d articles: %w", len(msgs), err)
	}
	return nil
}
