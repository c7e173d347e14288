package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/observability"
	"github.com/noah-isme/gema-course-api/internal/repository"
)

const (
	streamSendBufferSize = 32
	streamPingInterval   = 30 * time.Second
	streamRecentEventIDs = 512

	// EventStreamConnected is the first frame every subscriber receives.
	EventStreamConnected = "stream.connected"
)

// EventStreamOptions identifies one websocket subscriber.
type EventStreamOptions struct {
	UserID        string
	Role          string
	InstanceID    uint
	CorrelationID string
	Context       context.Context
}

// EventStream pushes coursework events to instructors watching a course instance.
type EventStream interface {
	Notifier
	Start(ctx context.Context)
	CheckInstance(ctx context.Context, instanceID uint) error
	ServeConnection(conn *websocket.Conn, opts EventStreamOptions)
}

// EventStreamSources configures where events published by other processes are read from.
// Events whose Source equals SkipSource were already delivered locally and are ignored.
type EventStreamSources struct {
	Redis        *redis.Client
	RedisChannel string
	NATS         *nats.Conn
	NATSSubject  string
	SkipSource   string
}

type eventStream struct {
	courses repository.CourseRepository
	sources EventStreamSources
	hub     *streamHub
	logger  zerolog.Logger

	// Redis and NATS may both carry the same event.
	seenMu   sync.Mutex
	seen     map[string]struct{}
	seenRing []string
	seenNext int
}

type streamHub struct {
	mu        sync.RWMutex
	instances map[uint]map[*streamClient]struct{}
	log       zerolog.Logger
}

type streamClient struct {
	conn    *websocket.Conn
	send    chan Event
	options EventStreamOptions
	hub     *streamHub
	closed  chan struct{}
	once    sync.Once
	log     zerolog.Logger
}

// NewEventStream builds the stream. Without sources only events raised in this process are delivered.
func NewEventStream(courses repository.CourseRepository, sources EventStreamSources, logger zerolog.Logger) EventStream {
	hub := &streamHub{
		instances: make(map[uint]map[*streamClient]struct{}),
		log:       logger.With().Str("component", "event_stream_hub").Logger(),
	}

	return &eventStream{
		courses:  courses,
		sources:  sources,
		hub:      hub,
		logger:   logger.With().Str("component", "event_stream").Logger(),
		seen:     make(map[string]struct{}, streamRecentEventIDs),
		seenRing: make([]string, streamRecentEventIDs),
	}
}

// Start subscribes to the configured brokers until ctx is cancelled.
func (s *eventStream) Start(ctx context.Context) {
	if s.sources.Redis != nil && s.sources.RedisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.sources.NATS != nil && s.sources.NATSSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Notify delivers an event raised in this process.
func (s *eventStream) Notify(_ context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	s.hub.broadcast(event)
}

func (s *eventStream) CheckInstance(ctx context.Context, instanceID uint) error {
	if _, err := s.courses.GetInstance(ctx, instanceID); err != nil {
		return notFoundAs(err, "course instance")
	}
	return nil
}

// ServeConnection blocks until the subscriber disconnects.
func (s *eventStream) ServeConnection(conn *websocket.Conn, opts EventStreamOptions) {
	client := &streamClient{
		conn:    conn,
		send:    make(chan Event, streamSendBufferSize),
		options: opts,
		hub:     s.hub,
		closed:  make(chan struct{}),
		log:     s.logger,
	}

	// Queued before register so it is always the first frame.
	client.send <- Event{Type: EventStreamConnected, InstanceID: opts.InstanceID, OccurredAt: time.Now().UTC()}

	s.hub.register(client)
	observability.StreamConnections().WithLabelValues("opened").Inc()
	defer observability.StreamConnections().WithLabelValues("closed").Inc()

	go client.writer()
	client.reader()
}

func (s *eventStream) consumeRedis(ctx context.Context) {
	pubsub := s.sources.Redis.Subscribe(ctx, s.sources.RedisChannel)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("event stream redis subscription closed")
			return
		}
		s.handleRemote([]byte(msg.Payload))
	}
}

func (s *eventStream) consumeNATS(ctx context.Context) {
	// Plain Subscribe: every API node needs every event for its own subscribers.
	sub, err := s.sources.NATS.Subscribe(s.sources.NATSSubject, func(msg *nats.Msg) {
		s.handleRemote(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats event subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain event stream nats subscription")
		}
	}()
}

func (s *eventStream) handleRemote(data []byte) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid coursework event")
		return
	}
	if s.sources.SkipSource != "" && event.Source == s.sources.SkipSource {
		return
	}
	if !s.firstSighting(event.ID) {
		return
	}
	s.hub.broadcast(event)
}

// firstSighting remembers the most recent event IDs and reports whether id is new.
func (s *eventStream) firstSighting(id string) bool {
	if id == "" {
		return true
	}

	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false
	}
	if evicted := s.seenRing[s.seenNext]; evicted != "" {
		delete(s.seen, evicted)
	}
	s.seenRing[s.seenNext] = id
	s.seenNext = (s.seenNext + 1) % len(s.seenRing)
	s.seen[id] = struct{}{}
	return true
}

func (h *streamHub) register(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	instanceID := client.options.InstanceID
	if _, ok := h.instances[instanceID]; !ok {
		h.instances[instanceID] = make(map[*streamClient]struct{})
	}
	h.instances[instanceID][client] = struct{}{}
	h.log.Debug().Uint("instance_id", instanceID).Str("user_id", client.options.UserID).Msg("stream client connected")
}

func (h *streamHub) unregister(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	instanceID := client.options.InstanceID
	if clients, ok := h.instances[instanceID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.instances, instanceID)
		}
	}
	h.log.Debug().Uint("instance_id", instanceID).Str("user_id", client.options.UserID).Msg("stream client disconnected")
}

func (h *streamHub) subscribers(instanceID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.instances[instanceID])
}

func (h *streamHub) broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.instances[event.InstanceID] {
		select {
		case client.send <- event:
		default:
			h.log.Warn().
				Uint("instance_id", event.InstanceID).
				Str("user_id", client.options.UserID).
				Str("event_type", event.Type).
				Msg("dropping event for slow stream client")
		}
	}
}

// reader drains client frames so close and pong control messages are processed.
func (c *streamClient) reader() {
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.log.Debug().Err(err).Msg("stream read loop ended")
			return
		}
	}
}

func (c *streamClient) writer() {
	defer c.close()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				c.log.Debug().Err(err).Msg("stream write loop terminated")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.log.Debug().Err(err).Msg("stream ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.hub.unregister(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
