package stream

import (
	"time"

	"github.com/jhoicas/eca-purchase-flow/pkg/config"
	"github.com/segmentio/kafka-go"
)

// NewReader lector del tópico de eventos con grupo de consumo (commit manual).
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// NewWriter escritor del tópico de resultados; nil si no está configurado.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	if cfg.ResultsTopic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.ResultsTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}
