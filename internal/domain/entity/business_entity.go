package entity

import "time"

// Tipos de entidad de negocio.
const (
	EntityTypeSupplier = "SUPPLIER"
	EntityTypeProduct  = "PRODUCT"
	EntityTypeLocation = "LOCATION"
	EntityTypeVariant  = "VARIANT"
)

// EntityStatusActive estado con el que se crean las entidades.
const EntityStatusActive = "ACTIVE"

// BusinessEntity entidad de negocio (proveedor, producto, ubicación, variante) identificada por
// (OrganizationID, EntityType, ExternalID). Se crea una vez y luego solo se referencia.
type BusinessEntity struct {
	ID             string
	OrganizationID string
	EntityType     string
	ExternalID     string
	Name           string
	Attributes     map[string]any
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
