// Package stream transporte de eventos del flujo de compras sobre Kafka.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jhoicas/eca-purchase-flow/internal/application/dto"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// MessageReader lectura con commit explícito (kafka.Reader con GroupID).
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter publicación de resultados (kafka.Writer).
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventProcessor procesa un evento entrante (purchaseflow.Processor).
type EventProcessor interface {
	Process(ctx context.Context, ev dto.InboundEvent) (dto.OutboundResult, error)
}

// Consumer lee eventos del tópico, los procesa en orden y confirma el offset después de procesar.
// Los errores de infraestructura se reintentan con backoff antes de confirmar; los de dominio no.
type Consumer struct {
	reader      MessageReader
	writer      MessageWriter // nil = no publicar resultados
	processor   EventProcessor
	log         *logger.Logger
	maxAttempts int
	backoff     time.Duration
}

// ConsumerOption configura el Consumer.
type ConsumerOption func(*Consumer)

// WithRetry intentos por mensaje ante error de infraestructura y espera base entre intentos.
func WithRetry(maxAttempts int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// NewConsumer construye el consumidor. writer puede ser nil.
func NewConsumer(reader MessageReader, writer MessageWriter, processor EventProcessor, log *logger.Logger, opts ...ConsumerOption) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	c := &Consumer{
		reader:      reader,
		writer:      writer,
		processor:   processor,
		log:         log,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consume hasta que ctx se cancele. Devuelve nil en cancelación.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Msg("consumidor Kafka iniciado")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info().Msg("consumidor Kafka detenido")
				return nil
			}
			c.log.Error().Err(err).Msg("leer mensaje de Kafka")
			if !c.sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit de offset")
		}
	}
}

// handle procesa un mensaje y publica el resultado. No devuelve error: todo mensaje termina confirmado.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var ev dto.InboundEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Warn().Err(err).
			Str("topic", msg.Topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("mensaje descartado: JSON inválido")
		return
	}

	var (
		out dto.OutboundResult
		err error
	)
	for attempt := 1; ; attempt++ {
		out, err = c.processor.Process(ctx, ev)
		if err == nil || domain.IsDomainError(err) || attempt >= c.maxAttempts || ctx.Err() != nil {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Str("event_uuid", out.Metadata.EventUUID).
			Msg("error de infraestructura, reintentando evento")
		if !c.sleep(ctx, c.backoff*time.Duration(attempt)) {
			break
		}
		// Mismo event_uuid en todos los intentos.
		if ev.Metadata == nil {
			ev.Metadata = &dto.EventMetadata{}
		}
		ev.Metadata.EventUUID = out.Metadata.EventUUID
	}

	c.publish(ctx, out)
}

func (c *Consumer) publish(ctx context.Context, out dto.OutboundResult) {
	if c.writer == nil {
		return
	}
	b, err := json.Marshal(out)
	if err != nil {
		c.log.Error().Err(err).Str("event_uuid", out.Metadata.EventUUID).Msg("serializar resultado")
		return
	}
	if err := c.writer.WriteMessages(ctx, kafka.Message{Key: []byte(out.Metadata.EventUUID), Value: b}); err != nil {
		c.log.Error().Err(err).Str("event_uuid", out.Metadata.EventUUID).Msg("publicar resultado")
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close cierra lector y escritor.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.writer != nil {
		err = errors.Join(err, c.writer.Close())
	}
	return err
}
