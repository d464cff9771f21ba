package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/models"
)

func newTestTopicService(t *testing.T) (*pipelineEnv, TopicService) {
	t.Helper()
	env := newPipelineEnv(t, CorrectionConfig{})
	return env, NewTopicService(env.topics, env.files, validator.New(), testLogger())
}

func TestTopicCreateAndPublish(t *testing.T) {
	env, svc := newTestTopicService(t)

	_, err := svc.Create(context.Background(), env.studentActor(), dto.TopicCreateRequest{Title: "Joins"}, nil)
	require.ErrorIs(t, err, ErrForbidden)

	created, err := svc.Create(context.Background(), env.teacherActor(), dto.TopicCreateRequest{
		Title:       "  Joins  ",
		Description: "Inner and outer joins",
		Deadline:    "2030-01-02T15:04:05Z",
	}, fileHeader(t, "reference.sql", []byte("SELECT * FROM a JOIN b ON a.id = b.a_id;")))
	require.NoError(t, err)
	require.Equal(t, "Joins", created.Title)
	require.Equal(t, models.TopicStatusDraft, created.Status)
	require.True(t, created.HasReference)
	require.NotNil(t, created.Deadline)
	require.Equal(t, 2030, created.Deadline.Year())

	_, err = svc.Get(context.Background(), env.studentActor(), created.ID)
	require.ErrorIs(t, err, ErrTopicNotFound)

	_, err = svc.Publish(context.Background(), env.otherActor(), created.ID)
	require.ErrorIs(t, err, ErrTopicNotFound)

	published, err := svc.Publish(context.Background(), env.teacherActor(), created.ID)
	require.NoError(t, err)
	require.Equal(t, models.TopicStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)

	again, err := svc.Publish(context.Background(), env.teacherActor(), created.ID)
	require.NoError(t, err)
	require.Equal(t, models.TopicStatusPublished, again.Status)
	require.Equal(t, published.PublishedAt.Unix(), again.PublishedAt.Unix())

	_, err = svc.Publish(context.Background(), env.otherActor(), created.ID)
	require.ErrorIs(t, err, ErrForbidden)

	visible, err := svc.Get(context.Background(), env.studentActor(), created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, visible.ID)
}

func TestTopicCreateRejectsDuplicateTitle(t *testing.T) {
	env, svc := newTestTopicService(t)

	_, err := svc.Create(context.Background(), env.teacherActor(), dto.TopicCreateRequest{Title: env.topic.Title}, nil)
	require.ErrorIs(t, err, ErrTopicTitleTaken)
}

func TestTopicCreateValidation(t *testing.T) {
	env, svc := newTestTopicService(t)

	var validationErrs validator.ValidationErrors
	_, err := svc.Create(context.Background(), env.teacherActor(), dto.TopicCreateRequest{Title: "ok title", Deadline: "next friday"}, nil)
	require.True(t, errors.As(err, &validationErrs))

	_, err = svc.Create(context.Background(), env.teacherActor(), dto.TopicCreateRequest{Title: "x"}, nil)
	require.True(t, errors.As(err, &validationErrs))
}

func TestTopicListVisibility(t *testing.T) {
	env, svc := newTestTopicService(t)

	_, err := svc.Create(context.Background(), env.teacherActor(), dto.TopicCreateRequest{Title: "Teacher draft"}, nil)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), env.otherActor(), dto.TopicCreateRequest{Title: "Other draft"}, nil)
	require.NoError(t, err)

	studentTopics, meta, err := svc.List(context.Background(), env.studentActor(), dto.TopicFilter{Status: models.TopicStatusDraft})
	require.NoError(t, err)
	require.Len(t, studentTopics, 1)
	require.Equal(t, env.topic.ID, studentTopics[0].ID)
	require.EqualValues(t, 1, meta.TotalItems)

	teacherTopics, _, err := svc.List(context.Background(), env.teacherActor(), dto.TopicFilter{})
	require.NoError(t, err)
	require.Len(t, teacherTopics, 2)

	adminTopics, _, err := svc.List(context.Background(), env.adminActor(), dto.TopicFilter{})
	require.NoError(t, err)
	require.Len(t, adminTopics, 3)

	paged, meta, err := svc.List(context.Background(), env.adminActor(), dto.TopicFilter{Sort: "title", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, 2, meta.TotalPages)
	require.Equal(t, "Teacher draft", paged[0].Title)
}
