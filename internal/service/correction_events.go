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
	"gorm.io/datatypes"

	"github.com/noah-isme/autoeval-api/internal/observability"
)

// Correction event types.
const (
	EventCorrectionCreated    = "created"
	EventCorrectionFailed     = "failed"
	EventCorrectionUpdated    = "updated"
	EventCorrectionSuperseded = "superseded"
)

// CorrectionEvent is broadcast whenever a correction changes or a grading run fails.
type CorrectionEvent struct {
	Type         string            `json:"type"`
	Source       string            `json:"source"`
	CorrectionID uint              `json:"correction_id,omitempty"`
	SubmissionID uint              `json:"submission_id"`
	TopicID      uint              `json:"topic_id"`
	StudentID    uint              `json:"student_id"`
	ActorID      uint              `json:"actor_id,omitempty"`
	Score        *int              `json:"score,omitempty"`
	FailureKind  string            `json:"failure_kind,omitempty"`
	Message      string            `json:"message,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// CorrectionPublisher fans correction events out to other services. Delivery is best
// effort and never fails the caller.
type CorrectionPublisher interface {
	Publish(ctx context.Context, event CorrectionEvent)
}

type correctionEventPublisher struct {
	nats         *nats.Conn
	natsSubject  string
	redis        *redis.Client
	redisChannel string
	logger       zerolog.Logger
	nodeID       string
}

// NewCorrectionPublisher publishes events on "<subject>.<type>" over NATS and on the
// "<subject>" channel over Redis pub/sub. Either transport may be nil.
func NewCorrectionPublisher(natsConn *nats.Conn, redisClient *redis.Client, subject string, logger zerolog.Logger) CorrectionPublisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = "autoeval.corrections"
	}

	return &correctionEventPublisher{
		nats:         natsConn,
		natsSubject:  subject,
		redis:        redisClient,
		redisChannel: strings.ReplaceAll(subject, ".", ":"),
		logger:       logger.With().Str("component", "correction_events").Logger(),
		nodeID:       uuid.NewString(),
	}
}

func (p *correctionEventPublisher) Publish(ctx context.Context, event CorrectionEvent) {
	event.Source = p.nodeID
	if event.RequestID == "" {
		event.RequestID = observability.CorrelationID(ctx)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode correction event")
		return
	}

	if p.nats != nil {
		if err := p.nats.Publish(p.natsSubject+"."+event.Type, payload); err != nil {
			p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish correction event to nats")
		}
	}

	if p.redis != nil {
		if err := p.redis.Publish(context.WithoutCancel(ctx), p.redisChannel, payload).Err(); err != nil {
			p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish correction event to redis")
		}
	}
}
