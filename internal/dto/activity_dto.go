package dto

import (
	"time"

	"github.com/noah-isme/gema-course-api/internal/models"
)

// ActivityListRequest filters the coursework audit trail.
type ActivityListRequest struct {
	EntityType string `query:"entityType" validate:"omitempty,oneof=published_assignment submission enrollment grading_criteria"`
	EntityID   uint   `query:"entityId"`
	ActorID    uint   `query:"actorId"`
	Limit      int    `query:"limit" validate:"omitempty,min=1,max=200"`
}

// ActivityResponse serializes one audit entry.
type ActivityResponse struct {
	ID            uint                   `json:"id"`
	ActorID       uint                   `json:"actorId"`
	ActorRole     string                 `json:"actorRole"`
	Action        string                 `json:"action"`
	EntityType    string                 `json:"entityType"`
	EntityID      *uint                  `json:"entityId"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// NewActivityResponse converts an audit entry into a DTO.
func NewActivityResponse(entry models.ActivityLog) ActivityResponse {
	metadata := map[string]interface{}{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}

	return ActivityResponse{
		ID:            entry.ID,
		ActorID:       entry.ActorID,
		ActorRole:     entry.ActorRole,
		Action:        entry.Action,
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		CorrelationID: entry.CorrelationID,
		Metadata:      metadata,
		CreatedAt:     entry.CreatedAt,
	}
}
