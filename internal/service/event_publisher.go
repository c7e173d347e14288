package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/observability"
)

// Event types emitted by the coursework services.
const (
	EventAssignmentPublished = "assignment.published"
	EventAssignmentClosed    = "assignment.closed"
	EventSubmissionSubmitted = "submission.submitted"
	EventSubmissionGraded    = "submission.graded"
	EventStudentEnrolled     = "enrollment.enrolled"
	EventStudentDropped      = "enrollment.dropped"
)

// Event is a coursework notification handed to downstream delivery workers.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Source     string                 `json:"source"`
	InstanceID uint                   `json:"instanceId"`
	EntityID   uint                   `json:"entityId"`
	StudentID  *uint                  `json:"studentId,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// Notifier sends fire-and-forget notifications. Implementations never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// EventPublisher fans events out to a Redis channel and a NATS subject.
type EventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string
	now          func() time.Time
}

// NewEventPublisher builds a publisher. A nil client or empty channel base disables that sink.
func NewEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *EventPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &EventPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_publisher").Logger(),
		nodeID:       uuid.NewString(),
		now:          time.Now,
	}
}

// Notify publishes event to every configured sink and logs failures.
func (p *EventPublisher) Notify(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	event.Source = p.nodeID

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to encode event")
		return
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			p.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish event to redis")
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			p.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to publish event to nats")
		}
	}

	observability.EventsPublished().WithLabelValues(event.Type).Inc()
}

// Subject returns the NATS subject events are published on.
func (p *EventPublisher) Subject() string {
	return p.natsSubject
}

// Channel returns the Redis channel events are published on.
func (p *EventPublisher) Channel() string {
	return p.redisChannel
}

// NodeID identifies this publisher in the Source field of outgoing events.
func (p *EventPublisher) NodeID() string {
	return p.nodeID
}

// Notifiers delivers each event to every notifier in order.
type Notifiers []Notifier

// Notify implements Notifier.
func (n Notifiers) Notify(ctx context.Context, event Event) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) {}
