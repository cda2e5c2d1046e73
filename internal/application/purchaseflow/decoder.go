package purchaseflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jhoicas/eca-purchase-flow/internal/application/dto"
	"github.com/jhoicas/eca-purchase-flow/internal/domain"
	"github.com/jhoicas/eca-purchase-flow/internal/domain/purchaseflow"
)

// Decoder convierte el bag de atributos de un evento en la Action tipada correspondiente,
// validando los campos obligatorios antes de llegar al orquestador.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder construye el decoder con nombres de campo tomados del tag json.
func NewDecoder() *Decoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Decoder{validate: v}
}

// Decode devuelve la Action para action con los atributos raw. Acción desconocida, JSON inválido
// o campo obligatorio ausente se reportan como *domain.ValidationError.
func (d *Decoder) Decode(action string, raw json.RawMessage) (Action, error) {
	attrs, err := decodeBag(action, raw)
	if err != nil {
		return nil, err
	}

	switch action {
	case purchaseflow.ActionCreateOrder:
		var p dto.CreateOrderPayload
		if err := d.bind(action, attrs, &p); err != nil {
			return nil, err
		}
		items := make([]OrderItem, 0, len(p.Items))
		for _, it := range p.Items {
			items = append(items, OrderItem{
				ProductExternalID: it.ProductExternalID,
				ProductName:       it.ProductName,
				Quantity:          it.Quantity,
				UnitPrice:         it.UnitPrice,
			})
		}
		return CreateOrder{
			ExternalID:         p.ExternalID,
			SupplierExternalID: p.SupplierExternalID,
			SupplierName:       p.SupplierName,
			Items:              items,
			TotalValue:         p.TotalValue,
			IssueDate:          p.IssueDate,
			ExpectedDelivery:   p.ExpectedDelivery,
			Extra:              extras(attrs, p),
		}, nil

	case purchaseflow.ActionApproveOrder:
		var p dto.ApproveOrderPayload
		if err := d.bind(action, attrs, &p); err != nil {
			return nil, err
		}
		return ApproveOrder{ExternalID: p.ExternalID}, nil

	case purchaseflow.ActionRegisterInvoice:
		var p dto.RegisterInvoicePayload
		if err := d.bind(action, attrs, &p); err != nil {
			return nil, err
		}
		return RegisterInvoice{
			ExternalID:              p.ExternalID,
			PurchaseOrderExternalID: p.PurchaseOrderExternalID,
			SupplierExternalID:      p.SupplierExternalID,
			LocationExternalID:      p.LocationExternalID,
			TotalValue:              p.TotalValue,
			IssueDate:               p.IssueDate,
			Extra:                   extras(attrs, p),
		}, nil

	case purchaseflow.ActionArriveAtCD, purchaseflow.ActionStartConference, purchaseflow.ActionEffectuateCD:
		var p dto.DocumentPayload
		if err := d.bind(action, aliasInvoiceID(attrs), &p); err != nil {
			return nil, err
		}
		switch action {
		case purchaseflow.ActionArriveAtCD:
			return ArriveAtCD{InvoiceExternalID: p.ExternalID, LocationExternalID: p.LocationExternalID}, nil
		case purchaseflow.ActionStartConference:
			return StartConference{InvoiceExternalID: p.ExternalID}, nil
		default:
			return EffectuateCD{InvoiceExternalID: p.ExternalID}, nil
		}

	case purchaseflow.ActionScanItems:
		attrs = aliasInvoiceID(attrs)
		var p dto.ScanItemsPayload
		if err := d.bind(action, attrs, &p); err != nil {
			return nil, err
		}
		rawItems, _ := attrs["items"].([]any)
		items := make([]ScannedItem, 0, len(p.Items))
		for i, it := range p.Items {
			var extra map[string]any
			if i < len(rawItems) {
				if m, ok := rawItems[i].(map[string]any); ok {
					extra = extras(m, it)
				}
			}
			items = append(items, ScannedItem{
				ProductExternalID:  it.ProductExternalID,
				VariantExternalID:  it.VariantExternalID,
				LocationExternalID: it.LocationExternalID,
				QtyExpected:        it.QtyExpected,
				QtyScanned:         it.QtyScanned,
				QtyDiff:            it.QtyDiff,
				Extra:              extra,
			})
		}
		return ScanItems{InvoiceExternalID: p.ExternalID, Items: items}, nil
	}

	return nil, &domain.ValidationError{Action: action, Field: "action", Reason: "desconocida"}
}

// decodeBag lee los atributos como mapa preservando la precisión numérica.
func decodeBag(action string, raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, &domain.ValidationError{Action: action, Field: "attributes"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, &domain.ValidationError{Action: action, Field: "attributes", Reason: "no es un objeto JSON válido"}
	}
	trimExternalIDs(attrs)
	return attrs, nil
}

// trimExternalIDs quita espacios de los valores *external_id en todos los niveles del bag, para
// que entidades, claves de snapshot y atributos de movimiento usen el mismo identificador.
func trimExternalIDs(v any) {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if s, ok := child.(string); ok && strings.HasSuffix(k, "external_id") {
				node[k] = strings.TrimSpace(s)
				continue
			}
			trimExternalIDs(child)
		}
	case []any:
		for _, child := range node {
			trimExternalIDs(child)
		}
	}
}

// bind decodifica attrs en dst y aplica los tags validate.
func (d *Decoder) bind(action string, attrs map[string]any, dst any) error {
	b, err := json.Marshal(attrs)
	if err != nil {
		return &domain.ValidationError{Action: action, Field: "attributes", Reason: err.Error()}
	}
	if err := json.Unmarshal(b, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &domain.ValidationError{Action: action, Field: typeErr.Field, Reason: "tipo inválido"}
		}
		return &domain.ValidationError{Action: action, Field: "attributes", Reason: err.Error()}
	}
	if err := d.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ValidationError{Action: action, Field: fieldPath(fe), Reason: validationReason(fe)}
		}
		return &domain.ValidationError{Action: action, Field: "attributes", Reason: err.Error()}
	}
	return nil
}

// fieldPath quita el nombre del struct raíz: "ScanItemsPayload.items[0].product_external_id" -> "items[0].product_external_id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "obligatorio"
	case "min":
		return "debe tener al menos " + fe.Param() + " elemento(s)"
	default:
		return "inválido (" + fe.Tag() + ")"
	}
}

// aliasInvoiceID acepta invoice_external_id cuando external_id no viene.
func aliasInvoiceID(attrs map[string]any) map[string]any {
	if _, ok := attrs["external_id"]; ok {
		return attrs
	}
	if v, ok := attrs["invoice_external_id"]; ok {
		attrs["external_id"] = v
		delete(attrs, "invoice_external_id")
	}
	return attrs
}

// extras devuelve las claves de attrs que no corresponden a campos json de payload.
func extras(attrs map[string]any, payload any) map[string]any {
	known := map[string]struct{}{}
	t := reflect.TypeOf(payload)
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		if name != "" && name != "-" {
			known[name] = struct{}{}
		}
	}
	var out map[string]any
	for k, v := range attrs {
		if _, ok := known[k]; ok {
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		out[k] = v
	}
	return out
}
