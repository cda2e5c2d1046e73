package entity

import "time"

// Tipos de relación entre transacciones y entidades.
const (
	RelationshipFromSupplier     = "FROM_SUPPLIER"
	RelationshipContainsItem     = "CONTAINS_ITEM"
	RelationshipBasedOnOrder     = "BASED_ON_ORDER"
	RelationshipAffectsProduct   = "AFFECTS_PRODUCT"
	RelationshipAtLocation       = "AT_LOCATION"
	RelationshipCausedByDocument = "CAUSED_BY_DOCUMENT"
)

// BusinessRelationship arista tipada y solo aditiva (origen -> destino).
type BusinessRelationship struct {
	ID               string
	RelationshipType string
	SourceID         string
	TargetID         string
	Attributes       map[string]any
	CreatedAt        time.Time
}
