package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audited entity types.
const (
	EntityPublishedAssignment = "published_assignment"
	EntitySubmission          = "submission"
	EntityEnrollment          = "enrollment"
	EntityCriteria            = "grading_criteria"
)

// ActivityLog is an audit entry for a coursework mutation performed by staff or students.
type ActivityLog struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ActorID       uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole     string            `gorm:"size:32;not null" json:"actor_role"`
	Action        string            `gorm:"size:64;not null" json:"action"`
	EntityType    string            `gorm:"size:64;not null;index:idx_activity_entity,priority:1" json:"entity_type"`
	EntityID      *uint             `gorm:"index:idx_activity_entity,priority:2" json:"entity_id"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}
