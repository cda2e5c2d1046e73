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

func (o *Orchestrator) registerInvoice(ctx context.Context, org string, in RegisterInvoice) (*Result, error) {
	const action = purchaseflow.ActionRegisterInvoice
	if err := required(action, "external_id", in.ExternalID); err != nil {
		return nil, err
	}
	if err := required(action, "purchase_order_external_id", in.PurchaseOrderExternalID); err != nil {
		return nil, err
	}

	unlock, err := o.lock(ctx, org, entity.TransactionTypeDocumentSupplierIn, in.ExternalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &Result{Action: action, TransactionType: entity.TransactionTypeDocumentSupplierIn, ExternalID: in.ExternalID}
	err = o.txRunner.Run(ctx, func(repos Repositories) error {
		existing, err := repos.Transactions.GetByExternalID(ctx, org, entity.TransactionTypeDocumentSupplierIn, in.ExternalID)
		if err != nil {
			return fmt.Errorf("leer documento %q: %w", in.ExternalID, err)
		}
		if existing != nil {
			replay(res, existing)
			return nil
		}

		// El pedido referenciado debe existir: no se crea automáticamente.
		order, err := repos.Transactions.GetByExternalID(ctx, org, entity.TransactionTypeOrderPurchase, in.PurchaseOrderExternalID)
		if err != nil {
			return fmt.Errorf("leer pedido %q: %w", in.PurchaseOrderExternalID, err)
		}
		if order == nil {
			return &domain.NotFoundError{Kind: entity.TransactionTypeOrderPurchase, ExternalID: in.PurchaseOrderExternalID}
		}

		attrs := map[string]any{
			"purchase_order_external_id": in.PurchaseOrderExternalID,
			"purchase_order_id":          order.ID,
			"total_value":                in.TotalValue.String(),
		}
		supplierExternalID := in.SupplierExternalID
		if supplierExternalID == "" {
			supplierExternalID, _ = order.Attributes["supplier_external_id"].(string)
		}
		if supplierExternalID != "" {
			attrs["supplier_external_id"] = supplierExternalID
		}
		if in.LocationExternalID != "" {
			attrs[purchaseflow.AttrLocationExternalID] = in.LocationExternalID
		}
		if in.IssueDate != "" {
			attrs["issue_date"] = in.IssueDate
		}

		now := o.now().UTC()
		doc := &entity.BusinessTransaction{
			ID:              uuid.New().String(),
			OrganizationID:  org,
			TransactionType: entity.TransactionTypeDocumentSupplierIn,
			ExternalID:      &in.ExternalID,
			Status:          purchaseflow.InitialStatus(entity.TransactionTypeDocumentSupplierIn),
			Attributes:      mergeExtra(attrs, in.Extra),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := createTransaction(ctx, repos.Transactions, doc); err != nil {
			return err
		}

		linker := NewRelationshipLinker(repos.Relationships)
		linker.now = o.now
		rel, err := linker.Link(ctx, entity.RelationshipBasedOnOrder, doc.ID, order.ID, nil)
		if err != nil {
			return err
		}

		res.TransactionID = doc.ID
		res.Status = doc.Status
		res.RelationshipIDs = []string{rel.ID}
		res.Summary = Summary{
			Message:           fmt.Sprintf("documento %s registrado sobre pedido %s", in.ExternalID, in.PurchaseOrderExternalID),
			RecordsProcessed:  1,
			RecordsSuccessful: 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}

	o.events.Record(ctx, entity.TransactionTypeDocumentSupplierIn, res.TransactionID, EventInvoiceRegistered, map[string]any{
		"external_id":                in.ExternalID,
		"purchase_order_external_id": in.PurchaseOrderExternalID,
	})
	return res, nil
}

func (o *Orchestrator) arriveAtCD(ctx context.Context, org string, in ArriveAtCD) (*Result, error) {
	const action = purchaseflow.ActionArriveAtCD
	if err := required(action, "external_id", in.InvoiceExternalID); err != nil {
		return nil, err
	}
	t, from, err := o.transition(ctx, org, entity.TransactionTypeDocumentSupplierIn, in.InvoiceExternalID, action,
		func(t *entity.BusinessTransaction, now time.Time) (string, error) {
			t.Attributes[purchaseflow.AttrArrivedAt] = stamp(now)
			if in.LocationExternalID != "" {
				t.Attributes[purchaseflow.AttrLocationExternalID] = in.LocationExternalID
			}
			to, _ := purchaseflow.TargetStatus(action)
			return to, nil
		})
	if err != nil {
		return nil, err
	}
	o.events.Record(ctx, t.TransactionType, t.ID, EventArrivedAtCD, map[string]any{
		"external_id": in.InvoiceExternalID,
		"from":        from,
	})
	return transitionResult(action, t, from), nil
}

func (o *Orchestrator) startConference(ctx context.Context, org string, in StartConference) (*Result, error) {
	const action = purchaseflow.ActionStartConference
	if err := required(action, "external_id", in.InvoiceExternalID); err != nil {
		return nil, err
	}
	t, from, err := o.transition(ctx, org, entity.TransactionTypeDocumentSupplierIn, in.InvoiceExternalID, action,
		func(t *entity.BusinessTransaction, now time.Time) (string, error) {
			t.Attributes[purchaseflow.AttrConferenceStartedAt] = stamp(now)
			to, _ := purchaseflow.TargetStatus(action)
			return to, nil
		})
	if err != nil {
		return nil, err
	}
	o.events.Record(ctx, t.TransactionType, t.ID, EventConferenceStarted, map[string]any{
		"external_id": in.InvoiceExternalID,
		"from":        from,
	})
	return transitionResult(action, t, from), nil
}

func (o *Orchestrator) effectuateCD(ctx context.Context, org string, in EffectuateCD) (*Result, error) {
	const action = purchaseflow.ActionEffectuateCD
	if err := required(action, "external_id", in.InvoiceExternalID); err != nil {
		return nil, err
	}
	t, from, err := o.transition(ctx, org, entity.TransactionTypeDocumentSupplierIn, in.InvoiceExternalID, action,
		func(t *entity.BusinessTransaction, now time.Time) (string, error) {
			t.Attributes[purchaseflow.AttrEffectuatedAt] = stamp(now)
			to, _ := purchaseflow.TargetStatus(action)
			return to, nil
		})
	if err != nil {
		return nil, err
	}
	o.events.Record(ctx, t.TransactionType, t.ID, EventCDEffectuated, map[string]any{
		"external_id": in.InvoiceExternalID,
		"from":        from,
	})
	return transitionResult(action, t, from), nil
}
