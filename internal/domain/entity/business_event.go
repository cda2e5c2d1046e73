package entity

import "time"

// BusinessEvent registro de auditoría append-only.
type BusinessEvent struct {
	ID         string
	EntityType string
	EntityID   string
	EventCode  string
	Payload    map[string]any
	CreatedAt  time.Time
}
