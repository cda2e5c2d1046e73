package purchaseflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jhoicas/eca-purchase-flow/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Discrepancy divergencia entre cantidad esperada y escaneada para un SKU.
type Discrepancy struct {
	SKU         string          `json:"sku"`
	QtyExpected decimal.Decimal `json:"qty_expected"`
	QtyScanned  decimal.Decimal `json:"qty_scanned"`
	QtyDiff     decimal.Decimal `json:"qty_diff"`
	ScannedAt   time.Time       `json:"scanned_at"`
}

// UpsertDiscrepancy reemplaza la entrada del mismo SKU o la agrega al final.
// No modifica list; devuelve una lista nueva.
func UpsertDiscrepancy(list []Discrepancy, d Discrepancy) []Discrepancy {
	out := make([]Discrepancy, 0, len(list)+1)
	replaced := false
	for _, cur := range list {
		if cur.SKU == d.SKU {
			out = append(out, d)
			replaced = true
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, d)
	}
	return out
}

// DeriveConferenceStatus estado resultante de una conferencia: con divergencia si la lista no está vacía.
func DeriveConferenceStatus(list []Discrepancy) string {
	if len(list) > 0 {
		return entity.DocumentStatusConferenceDivergent
	}
	return entity.DocumentStatusConferenceOK
}

// DiscrepanciesFromAttributes lee la lista de divergencias del bag de atributos. Acepta tanto
// []Discrepancy como la forma genérica que deja un decode JSON ([]any de map[string]any).
func DiscrepanciesFromAttributes(attrs map[string]any) ([]Discrepancy, error) {
	raw, ok := attrs[AttrDiscrepancies]
	if !ok || raw == nil {
		return nil, nil
	}
	if typed, ok := raw.([]Discrepancy); ok {
		return append([]Discrepancy(nil), typed...), nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("divergencias: %w", err)
	}
	var list []Discrepancy
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("divergencias: %w", err)
	}
	return list, nil
}
