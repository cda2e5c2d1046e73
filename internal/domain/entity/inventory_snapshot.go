package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementTypeCDReceipt movimiento de entrada por conferencia en CD.
const MovementTypeCDReceipt = "CD_RECEIPT"

// SnapshotKey identifica una fila de snapshot por (organización, variante, ubicación).
type SnapshotKey struct {
	OrganizationID     string
	VariantExternalID  string
	LocationExternalID string
}

// String clave derivada estable, usada también para serializar el acceso.
func (k SnapshotKey) String() string {
	return k.OrganizationID + "|" + k.VariantExternalID + "|" + k.LocationExternalID
}

// InventorySnapshot stock corriente de una variante en una ubicación.
type InventorySnapshot struct {
	Key             SnapshotKey
	CurrentStock    decimal.Decimal
	LastMovement    string
	LastMovementRef string
	LastUpdated     time.Time
}
