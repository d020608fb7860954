package repository

import (
	"context"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	pkgkafka "PatternScope/pkg/kafka"
)

// KafkaResultPublisher implements ResultPublisher for Kafka. Reports are keyed by
// reference source so one source stays ordered within a partition.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.ResultPublisher = (*KafkaResultPublisher)(nil)

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) PublishReport(ctx context.Context, r *models.AnalysisReport) error {
	var key []byte
	if r.Scan != nil {
		key = []byte(r.Scan.Reference.Source)
	}
	return p.producer.Publish(ctx, p.topic, key, r)
}

func (p *KafkaResultPublisher) Close() error {
	return p.producer.Close()
}
