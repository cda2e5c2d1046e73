package purchaseflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"
)

// scanItems procesa el lote con semántica best-effort: cada ítem registra su evento, actualiza la
// lista de divergencias y ejecuta su movimiento de inventario en una transacción propia. Un fallo
// de un ítem se cuenta en el resumen y no revierte los demás. Al final el estado se deriva de la
// lista de divergencias acumulada y se escribe con guarda (el lock del documento se mantiene
// durante todo el lote).
func (o *Orchestrator) scanItems(ctx context.Context, org string, in ScanItems) (*Result, error) {
	const action = purchaseflow.ActionScanItems
	if err := required(action, "external_id", in.InvoiceExternalID); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, &domain.ValidationError{Action: action, Field: "items", Reason: "no puede estar vacío"}
	}
	for i, item := range in.Items {
		if item.ProductExternalID == "" {
			return nil, &domain.ValidationError{Action: action, Field: fmt.Sprintf("items[%d].product_external_id", i)}
		}
	}

	docType := entity.TransactionTypeDocumentSupplierIn
	unlock, err := o.lock(ctx, org, docType, in.InvoiceExternalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var doc *entity.BusinessTransaction
	err = o.txRunner.Run(ctx, func(repos Repositories) error {
		t, err := repos.Transactions.GetByExternalID(ctx, org, docType, in.InvoiceExternalID)
		if err != nil {
			return fmt.Errorf("leer documento %q: %w", in.InvoiceExternalID, err)
		}
		if t == nil {
			return &domain.NotFoundError{Kind: docType, ExternalID: in.InvoiceExternalID}
		}
		if err := purchaseflow.Guard(action, in.InvoiceExternalID, t.Status); err != nil {
			return err
		}
		doc = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	docLocation, _ := doc.Attributes[purchaseflow.AttrLocationExternalID].(string)
	res := &Result{Action: action, TransactionType: docType, TransactionID: doc.ID, ExternalID: in.InvoiceExternalID}
	var scanned []purchaseflow.Discrepancy

	for i, item := range in.Items {
		res.Summary.RecordsProcessed++
		now := o.now().UTC()
		diff := item.Diff()

		o.events.Record(ctx, docType, doc.ID, EventReceiptItemScannedOK, map[string]any{
			"external_id":         in.InvoiceExternalID,
			"product_external_id": item.ProductExternalID,
			"qty_expected":        item.QtyExpected.String(),
			"qty_scanned":         item.QtyScanned.String(),
			"qty_diff":            diff.String(),
			"event_uuid":          in.EventUUID,
		})

		if !diff.IsZero() {
			scanned = purchaseflow.UpsertDiscrepancy(scanned, purchaseflow.Discrepancy{
				SKU:         item.ProductExternalID,
				QtyExpected: item.QtyExpected,
				QtyScanned:  item.QtyScanned,
				QtyDiff:     diff,
				ScannedAt:   now,
			})
		}

		// El movimiento se registra siempre, también cuando qty_diff == 0.
		mov, err := o.recordMovement(ctx, org, doc, item, docLocation, in.EventUUID, i)
		if err != nil {
			res.Summary.RecordsFailed++
			res.ItemFailures = append(res.ItemFailures, ItemFailure{ProductExternalID: item.ProductExternalID, Reason: err.Error()})
			o.observer.ItemScanned(false)
			o.log.Warn().Err(err).
				Str("external_id", in.InvoiceExternalID).
				Str("product_external_id", item.ProductExternalID).
				Msg("movimiento de inventario del ítem falló")
			continue
		}
		if mov.replayed {
			o.log.Debug().
				Str("external_id", in.InvoiceExternalID).
				Str("event_uuid", in.EventUUID).
				Int("item", i).
				Msg("movimiento ya registrado para este evento, se omite")
		}
		res.Summary.RecordsSuccessful++
		res.EntityIDs = append(res.EntityIDs, mov.entityIDs...)
		res.RelationshipIDs = append(res.RelationshipIDs, mov.relationshipIDs...)
		o.observer.ItemScanned(true)
	}

	var merged []purchaseflow.Discrepancy
	t, from, err := o.transitionLocked(ctx, org, docType, in.InvoiceExternalID, action,
		func(t *entity.BusinessTransaction, now time.Time) (string, error) {
			current, err := purchaseflow.DiscrepanciesFromAttributes(t.Attributes)
			if err != nil {
				return "", err
			}
			for _, d := range scanned {
				current = purchaseflow.UpsertDiscrepancy(current, d)
			}
			merged = current
			t.Attributes[purchaseflow.AttrDiscrepancies] = current
			t.Attributes[purchaseflow.AttrLastConferenceAt] = stamp(now)
			return purchaseflow.DeriveConferenceStatus(current), nil
		})
	if err != nil {
		return nil, err
	}

	res.Status = t.Status
	res.StateTransition = &StateChange{From: from, To: t.Status}
	res.Discrepancies = merged
	res.Summary.Message = fmt.Sprintf("%d ítems conferidos, %d con falla, %d divergencias",
		res.Summary.RecordsProcessed, res.Summary.RecordsFailed, len(merged))
	return res, nil
}

type movementResult struct {
	movement        *entity.BusinessTransaction
	snapshot        *entity.InventorySnapshot
	entityIDs       []string
	relationshipIDs []string
	replayed        bool
}

// movementExternalID external id del movimiento del ítem index dentro de la entrega eventUUID.
func movementExternalID(eventUUID string, index int) string {
	if eventUUID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", eventUUID, index)
}

// recordMovement efecto de inventario de un ítem escaneado, atómico por ítem: resuelve producto,
// variante y ubicación, crea el INVENTORY_MOVEMENT, sus tres relaciones y aplica el delta al snapshot.
// Si la entrega eventUUID ya registró el movimiento del ítem index (reintento) no se escribe nada.
func (o *Orchestrator) recordMovement(ctx context.Context, org string, doc *entity.BusinessTransaction, item ScannedItem, docLocation, eventUUID string, index int) (*movementResult, error) {
	movementID := movementExternalID(eventUUID, index)
	location := item.LocationExternalID
	if location == "" {
		location = docLocation
	}
	if location == "" {
		return nil, &domain.ValidationError{Action: purchaseflow.ActionScanItems, Field: "location_external_id"}
	}
	variant := item.VariantExternalID
	if variant == "" {
		variant = item.ProductExternalID
	}

	out := &movementResult{}
	err := o.txRunner.Run(ctx, func(repos Repositories) error {
		resolver := NewEntityResolver(repos.Entities)
		resolver.now = o.now
		linker := NewRelationshipLinker(repos.Relationships)
		linker.now = o.now

		product, err := resolver.ResolveOrCreate(ctx, org, entity.EntityTypeProduct, item.ProductExternalID, EntitySeed{})
		if err != nil {
			return err
		}
		out.entityIDs = append(out.entityIDs, product.ID)
		if item.VariantExternalID != "" {
			v, err := resolver.ResolveOrCreate(ctx, org, entity.EntityTypeVariant, item.VariantExternalID, EntitySeed{
				Attributes: map[string]any{"product_external_id": item.ProductExternalID},
			})
			if err != nil {
				return err
			}
			out.entityIDs = append(out.entityIDs, v.ID)
		}
		loc, err := resolver.ResolveOrCreate(ctx, org, entity.EntityTypeLocation, location, EntitySeed{})
		if err != nil {
			return err
		}
		out.entityIDs = append(out.entityIDs, loc.ID)

		if movementID != "" {
			prev, err := repos.Transactions.GetByExternalID(ctx, org, entity.TransactionTypeInventoryMovement, movementID)
			if err != nil {
				return fmt.Errorf("leer movimiento %q: %w", movementID, err)
			}
			if prev != nil {
				rels, err := repos.Relationships.ListBySource(ctx, prev.ID)
				if err != nil {
					return fmt.Errorf("relaciones del movimiento %q: %w", movementID, err)
				}
				for _, rel := range rels {
					out.relationshipIDs = append(out.relationshipIDs, rel.ID)
				}
				out.movement = prev
				out.replayed = true
				return nil
			}
		}

		now := o.now().UTC()
		attrs := map[string]any{
			"qty_change":                     item.QtyScanned.String(),
			"movement_type":                  entity.MovementTypeCDReceipt,
			"reference_document_id":          doc.ID,
			"reference_document_external_id": doc.ExternalIDValue(),
			"product_external_id":            item.ProductExternalID,
			"variant_external_id":            variant,
			"location_external_id":           location,
			"qty_expected":                   item.QtyExpected.String(),
			"qty_scanned":                    item.QtyScanned.String(),
			"qty_diff":                       item.Diff().String(),
		}
		if eventUUID != "" {
			attrs["event_uuid"] = eventUUID
		}
		mov := &entity.BusinessTransaction{
			ID:              uuid.New().String(),
			OrganizationID:  org,
			TransactionType: entity.TransactionTypeInventoryMovement,
			Status:          purchaseflow.InitialStatus(entity.TransactionTypeInventoryMovement),
			Attributes:      mergeExtra(attrs, item.Extra),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if movementID != "" {
			mov.ExternalID = &movementID
		}
		if err := createTransaction(ctx, repos.Transactions, mov); err != nil {
			return err
		}
		out.movement = mov

		for _, edge := range []struct{ relType, target string }{
			{entity.RelationshipAffectsProduct, product.ID},
			{entity.RelationshipAtLocation, loc.ID},
			{entity.RelationshipCausedByDocument, doc.ID},
		} {
			rel, err := linker.Link(ctx, edge.relType, mov.ID, edge.target, nil)
			if err != nil {
				return err
			}
			out.relationshipIDs = append(out.relationshipIDs, rel.ID)
		}

		snap, err := o.snapshots.ApplyDeltaInTx(ctx, repos.Snapshots, DeltaInput{
			OrganizationID:     org,
			VariantExternalID:  variant,
			LocationExternalID: location,
			QtyChange:          item.QtyScanned,
			MovementType:       entity.MovementTypeCDReceipt,
			ReferenceID:        mov.ID,
		})
		if err != nil {
			return err
		}
		out.snapshot = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
