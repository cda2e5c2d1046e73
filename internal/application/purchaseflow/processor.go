package purchaseflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/eca-purchase-flow/internal/application/dto"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/pkg/logger"
)

// Processor punto de entrada común de HTTP y Kafka: decodifica el evento, lo ejecuta en el
// orquestador y arma la respuesta con metadatos de trazabilidad, también cuando falla.
type Processor struct {
	decoder      *Decoder
	orchestrator *Orchestrator
	log          *logger.Logger
	now          func() time.Time
}

// NewProcessor construye el procesador.
func NewProcessor(orchestrator *Orchestrator, decoder *Decoder, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	if decoder == nil {
		decoder = NewDecoder()
	}
	return &Processor{decoder: decoder, orchestrator: orchestrator, log: log, now: time.Now}
}

// Process procesa el evento. El OutboundResult siempre trae event_uuid y processing_time_ms;
// el error devuelto permite al transporte elegir el código de estado.
func (p *Processor) Process(ctx context.Context, ev dto.InboundEvent) (dto.OutboundResult, error) {
	start := p.now()
	eventUUID := ""
	if ev.Metadata != nil {
		eventUUID = ev.Metadata.EventUUID
	}
	if _, err := uuid.Parse(eventUUID); err != nil {
		eventUUID = uuid.New().String()
	}

	var (
		res *Result
		err error
	)
	if ev.OrganizationID == "" {
		err = &domain.ValidationError{Action: ev.Action, Field: "organization_id"}
	} else {
		var action Action
		action, err = p.decoder.Decode(ev.Action, ev.Attributes)
		if scan, ok := action.(ScanItems); ok {
			scan.EventUUID = eventUUID
			action = scan
		}
		if err == nil {
			res, err = p.orchestrator.Handle(ctx, ev.OrganizationID, action)
		}
	}

	elapsed := p.now().Sub(start)
	out := toOutbound(ev, res, err)
	out.Metadata = dto.ResultMetadata{
		ProcessedAt:      p.now().UTC(),
		ProcessingTimeMs: elapsed.Milliseconds(),
		OrganizationID:   ev.OrganizationID,
		Action:           ev.Action,
		EventUUID:        eventUUID,
	}

	entry := p.log.Info()
	if err != nil {
		entry = p.log.Warn().Err(err).Str("outcome", Outcome(err))
		if !domain.IsDomainError(err) {
			entry = p.log.Error().Err(err).Str("outcome", Outcome(err))
		}
	}
	entry.Str("action", ev.Action).
		Str("organization_id", ev.OrganizationID).
		Str("event_uuid", eventUUID).
		Str("external_id", out.Attributes.ExternalID).
		Str("status", out.Attributes.Status).
		Int64("processing_time_ms", elapsed.Milliseconds()).
		Msg("evento de flujo de compras procesado")

	return out, err
}

func toOutbound(ev dto.InboundEvent, res *Result, err error) dto.OutboundResult {
	out := dto.OutboundResult{Success: err == nil, Action: ev.Action}
	if err != nil {
		code, isDomain := ErrorCode(err)
		msg := err.Error()
		if !isDomain {
			// El detalle queda en el log; el resultado publicado no expone infraestructura.
			msg = "error interno"
		}
		out.Error = &dto.ErrorResponse{Code: code, Message: msg}
		out.Attributes = dto.ResultAttributes{
			Success: false,
			Summary: dto.SummaryDTO{Message: msg, RecordsFailed: 1},
		}
		return out
	}

	out.TransactionID = res.TransactionID
	out.EntityIDs = res.EntityIDs
	out.RelationshipIDs = res.RelationshipIDs
	if res.StateTransition != nil {
		out.StateTransition = &dto.StateTransitionDTO{From: res.StateTransition.From, To: res.StateTransition.To}
	}
	out.Attributes = dto.ResultAttributes{
		Success:    true,
		EntityType: res.TransactionType,
		EntityID:   res.TransactionID,
		ExternalID: res.ExternalID,
		Status:     res.Status,
		Replayed:   res.Replayed,
		Summary: dto.SummaryDTO{
			Message:           res.Summary.Message,
			RecordsProcessed:  res.Summary.RecordsProcessed,
			RecordsSuccessful: res.Summary.RecordsSuccessful,
			RecordsFailed:     res.Summary.RecordsFailed,
		},
	}
	for _, d := range res.Discrepancies {
		out.Attributes.Divergencias = append(out.Attributes.Divergencias, dto.DiscrepancyDTO{
			SKU:         d.SKU,
			QtyExpected: d.QtyExpected,
			QtyScanned:  d.QtyScanned,
			QtyDiff:     d.QtyDiff,
			ScannedAt:   d.ScannedAt,
		})
	}
	for _, f := range res.ItemFailures {
		out.Attributes.ItemFailures = append(out.Attributes.ItemFailures, dto.ItemFailureDTO{
			ProductExternalID: f.ProductExternalID,
			Reason:            f.Reason,
		})
	}
	return out
}
