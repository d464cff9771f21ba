package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const gradingKeyPrefix = "autoeval:grading:"

// GradingTracker records which submissions are being graded right now. Markers expire on
// their own and are only used to report status, never to serialize work.
type GradingTracker interface {
	MarkGrading(ctx context.Context, submissionID uint) error
	ClearGrading(ctx context.Context, submissionID uint) error
	InProgress(ctx context.Context, submissionIDs []uint) (map[uint]bool, error)
}

type redisGradingTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewGradingTracker returns a Redis-backed tracker, or a no-op tracker when client is nil.
func NewGradingTracker(client *redis.Client, ttl time.Duration, logger zerolog.Logger) GradingTracker {
	if client == nil {
		return noopGradingTracker{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisGradingTracker{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "grading_tracker").Logger(),
	}
}

func gradingKey(submissionID uint) string {
	return fmt.Sprintf("%s%d", gradingKeyPrefix, submissionID)
}

func (t *redisGradingTracker) MarkGrading(ctx context.Context, submissionID uint) error {
	return t.client.Set(ctx, gradingKey(submissionID), time.Now().UTC().Format(time.RFC3339), t.ttl).Err()
}

func (t *redisGradingTracker) ClearGrading(ctx context.Context, submissionID uint) error {
	return t.client.Del(ctx, gradingKey(submissionID)).Err()
}

func (t *redisGradingTracker) InProgress(ctx context.Context, submissionIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool, len(submissionIDs))
	if len(submissionIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(submissionIDs))
	for i, id := range submissionIDs {
		keys[i] = gradingKey(id)
	}

	values, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, value := range values {
		if value != nil {
			result[submissionIDs[i]] = true
		}
	}

	return result, nil
}

type noopGradingTracker struct{}

func (noopGradingTracker) MarkGrading(context.Context, uint) error  { return nil }
func (noopGradingTracker) ClearGrading(context.Context, uint) error { return nil }
func (noopGradingTracker) InProgress(_ context.Context, ids []uint) (map[uint]bool, error) {
	return make(map[uint]bool, len(ids)), nil
}
