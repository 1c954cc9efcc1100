package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"immo-scraper/models"
	"immo-scraper/utils"
)

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher publishes every change event as one message keyed by the
// canonical listing id, so all events of a listing land on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *utils.Logger
}

// NewKafkaPublisher connects a synchronous producer.
func NewKafkaPublisher(cfg KafkaConfig, logger *utils.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka: new producer: %w", err)
	}
	return newKafkaPublisher(producer, cfg.Topic, logger), nil
}

// ProducerConfig is the sarama configuration used by the publisher.
func ProducerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V3_6_0_0
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = 3
	c.Producer.Return.Successes = true
	c.Producer.Partitioner = sarama.NewHashPartitioner
	return c
}

func newKafkaPublisher(producer sarama.SyncProducer, topic string, logger *utils.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (k *KafkaPublisher) Notify(_ context.Context, events []models.ChangeEvent, stats models.RunStats) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("kafka: encode event %s: %w", e.CanonicalID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: k.topic,
			Key:   sarama.StringEncoder(e.CanonicalID),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("run-id"), Value: []byte(stats.RunID)},
				{Key: []byte("change-type"), Value: []byte(e.Type)},
			},
		})
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafka: publish %d events: %w", len(msgs), err)
	}
	k.logger.Info("[kafka] Published %d events to %s", len(msgs), k.topic)
	return nil
}

// Close shuts down the producer.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
