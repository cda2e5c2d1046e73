package purchaseflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/repository"
)

func (o *Orchestrator) createOrder(ctx context.Context, org string, in CreateOrder) (*Result, error) {
	const action = purchaseflow.ActionCreateOrder
	if err := required(action, "external_id", in.ExternalID); err != nil {
		return nil, err
	}
	if err := required(action, "supplier_external_id", in.SupplierExternalID); err != nil {
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

	unlock, err := o.lock(ctx, org, entity.TransactionTypeOrderPurchase, in.ExternalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &Result{Action: action, TransactionType: entity.TransactionTypeOrderPurchase, ExternalID: in.ExternalID}
	err = o.txRunner.Run(ctx, func(repos Repositories) error {
		existing, err := repos.Transactions.GetByExternalID(ctx, org, entity.TransactionTypeOrderPurchase, in.ExternalID)
		if err != nil {
			return fmt.Errorf("leer pedido %q: %w", in.ExternalID, err)
		}
		if existing != nil {
			replay(res, existing)
			return nil
		}

		resolver := NewEntityResolver(repos.Entities)
		resolver.now = o.now
		linker := NewRelationshipLinker(repos.Relationships)
		linker.now = o.now

		supplier, err := resolver.ResolveOrCreate(ctx, org, entity.EntityTypeSupplier, in.SupplierExternalID, EntitySeed{Name: in.SupplierName})
		if err != nil {
			return err
		}
		res.EntityIDs = append(res.EntityIDs, supplier.ID)

		now := o.now().UTC()
		order := &entity.BusinessTransaction{
			ID:              uuid.New().String(),
			OrganizationID:  org,
			TransactionType: entity.TransactionTypeOrderPurchase,
			ExternalID:      &in.ExternalID,
			Status:          purchaseflow.InitialStatus(entity.TransactionTypeOrderPurchase),
			Attributes:      orderAttributes(in),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := createTransaction(ctx, repos.Transactions, order); err != nil {
			return err
		}

		rel, err := linker.Link(ctx, entity.RelationshipFromSupplier, order.ID, supplier.ID, nil)
		if err != nil {
			return err
		}
		res.RelationshipIDs = append(res.RelationshipIDs, rel.ID)

		for _, item := range in.Items {
			product, err := resolver.ResolveOrCreate(ctx, org, entity.EntityTypeProduct, item.ProductExternalID, EntitySeed{Name: item.ProductName})
			if err != nil {
				return err
			}
			res.EntityIDs = append(res.EntityIDs, product.ID)
			rel, err := linker.Link(ctx, entity.RelationshipContainsItem, order.ID, product.ID, map[string]any{
				"quantity":   item.Quantity.String(),
				"unit_price": item.UnitPrice.String(),
			})
			if err != nil {
				return err
			}
			res.RelationshipIDs = append(res.RelationshipIDs, rel.ID)
		}

		res.TransactionID = order.ID
		res.Status = order.Status
		res.Summary = Summary{
			Message:           fmt.Sprintf("pedido %s creado con %d ítems", in.ExternalID, len(in.Items)),
			RecordsProcessed:  len(in.Items),
			RecordsSuccessful: len(in.Items),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}

	o.events.Record(ctx, entity.TransactionTypeOrderPurchase, res.TransactionID, EventPurchaseOrderCreated, map[string]any{
		"external_id":          in.ExternalID,
		"supplier_external_id": in.SupplierExternalID,
		"items":                len(in.Items),
		"total_value":          in.TotalValue.String(),
	})
	return res, nil
}

func (o *Orchestrator) approveOrder(ctx context.Context, org string, in ApproveOrder) (*Result, error) {
	const action = purchaseflow.ActionApproveOrder
	if err := required(action, "external_id", in.ExternalID); err != nil {
		return nil, err
	}
	t, from, err := o.transition(ctx, org, entity.TransactionTypeOrderPurchase, in.ExternalID, action,
		func(_ *entity.BusinessTransaction, _ time.Time) (string, error) {
			to, _ := purchaseflow.TargetStatus(action)
			return to, nil
		})
	if err != nil {
		return nil, err
	}
	o.events.Record(ctx, t.TransactionType, t.ID, EventPurchaseOrderApproved, map[string]any{
		"external_id": in.ExternalID,
		"from":        from,
		"to":          t.Status,
	})
	return transitionResult(action, t, from), nil
}

func orderAttributes(in CreateOrder) map[string]any {
	items := make([]any, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, map[string]any{
			"product_external_id": item.ProductExternalID,
			"product_name":        item.ProductName,
			"quantity":            item.Quantity.String(),
			"unit_price":          item.UnitPrice.String(),
		})
	}
	attrs := map[string]any{
		"supplier_external_id": in.SupplierExternalID,
		"supplier_name":        in.SupplierName,
		"items":                items,
		"total_value":          in.TotalValue.String(),
	}
	if in.IssueDate != "" {
		attrs["issue_date"] = in.IssueDate
	}
	if in.ExpectedDelivery != "" {
		attrs["expected_delivery"] = in.ExpectedDelivery
	}
	return mergeExtra(attrs, in.Extra)
}

// createTransaction inserta y traduce una colisión de external id en conflicto de dominio.
func createTransaction(ctx context.Context, repo repository.TransactionRepository, t *entity.BusinessTransaction) error {
	if err := repo.Create(ctx, t); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return fmt.Errorf("%s %q creado concurrentemente: %w", t.TransactionType, t.ExternalIDValue(), domain.ErrConflict)
		}
		return fmt.Errorf("crear %s %q: %w", t.TransactionType, t.ExternalIDValue(), err)
	}
	return nil
}

// replay completa res con la transacción existente sin modificar nada.
func replay(res *Result, t *entity.BusinessTransaction) {
	res.Replayed = true
	res.TransactionID = t.ID
	res.Status = t.Status
	res.Summary = Summary{
		Message:           fmt.Sprintf("%s %s ya registrado, sin cambios", t.TransactionType, t.ExternalIDValue()),
		RecordsProcessed:  1,
		RecordsSuccessful: 1,
	}
}
