package service

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/models"
	"github.com/noah-isme/autoeval-api/internal/repository"
)

// TopicService manages assignments and their publication.
type TopicService interface {
	Create(ctx context.Context, actor Actor, payload dto.TopicCreateRequest, reference *multipart.FileHeader) (dto.TopicResponse, error)
	List(ctx context.Context, actor Actor, filter dto.TopicFilter) ([]dto.TopicResponse, dto.PaginationMeta, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.TopicResponse, error)
	Publish(ctx context.Context, actor Actor, id uint) (dto.TopicResponse, error)
}

type topicService struct {
	topics    repository.TopicRepository
	files     FileStore
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTopicService constructs a TopicService. Reference files are kept in files.
func NewTopicService(topics repository.TopicRepository, files FileStore, validate *validator.Validate, logger zerolog.Logger) TopicService {
	return &topicService{
		topics:    topics,
		files:     files,
		validator: validate,
		logger:    logger.With().Str("component", "topic_service").Logger(),
		now:       time.Now,
	}
}

func (s *topicService) Create(ctx context.Context, actor Actor, payload dto.TopicCreateRequest, reference *multipart.FileHeader) (dto.TopicResponse, error) {
	if !actor.IsStaff() {
		return dto.TopicResponse{}, ErrForbidden
	}

	payload.Title = strings.TrimSpace(payload.Title)
	payload.Description = strings.TrimSpace(payload.Description)
	payload.Deadline = strings.TrimSpace(payload.Deadline)
	if err := s.validator.Struct(payload); err != nil {
		return dto.TopicResponse{}, err
	}

	topic := models.Topic{
		Title:       payload.Title,
		Description: payload.Description,
		TeacherID:   actor.ID,
		Status:      models.TopicStatusDraft,
	}

	if payload.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, payload.Deadline)
		if err != nil {
			return dto.TopicResponse{}, ErrInvalidDeadline
		}
		deadline = deadline.UTC()
		topic.Deadline = &deadline
	}

	if reference != nil {
		stored, err := s.files.Save(ctx, reference)
		if err != nil {
			return dto.TopicResponse{}, err
		}
		topic.ReferenceFile = stored.Name
		topic.ReferenceFileExt = stored.Ext
		topic.ReferenceFileMime = stored.MimeType
	}

	if err := s.topics.Create(ctx, &topic); err != nil {
		s.discardReference(topic.ReferenceFile)
		if repository.IsUniqueViolation(err) {
			return dto.TopicResponse{}, ErrTopicTitleTaken
		}
		return dto.TopicResponse{}, err
	}

	created, err := s.topics.GetByID(ctx, topic.ID)
	if err != nil {
		return dto.TopicResponse{}, err
	}

	s.logger.Info().
		Uint("topic_id", created.ID).
		Uint("teacher_id", created.TeacherID).
		Bool("reference", created.HasReference()).
		Msg("topic created")

	return dto.NewTopicResponse(created), nil
}

func (s *topicService) List(ctx context.Context, actor Actor, filter dto.TopicFilter) ([]dto.TopicResponse, dto.PaginationMeta, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	query := repository.TopicFilter{
		Status:    filter.Status,
		TeacherID: filter.TeacherID,
		Search:    filter.Search,
		Sort:      filter.Sort,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	}

	switch {
	case actor.IsAdmin():
	case actor.IsTeacher():
		id := actor.ID
		query.VisibleTo = &id
	default:
		query.Status = models.TopicStatusPublished
	}

	topics, total, err := s.topics.List(ctx, query)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	return dto.NewTopicResponseSlice(topics), dto.NewPaginationMeta(filter.Page, filter.PageSize, total), nil
}

func (s *topicService) Get(ctx context.Context, actor Actor, id uint) (dto.TopicResponse, error) {
	topic, err := s.load(ctx, id)
	if err != nil {
		return dto.TopicResponse{}, err
	}
	if !actor.CanViewTopic(topic) {
		return dto.TopicResponse{}, ErrTopicNotFound
	}

	return dto.NewTopicResponse(topic), nil
}

func (s *topicService) Publish(ctx context.Context, actor Actor, id uint) (dto.TopicResponse, error) {
	topic, err := s.load(ctx, id)
	if err != nil {
		return dto.TopicResponse{}, err
	}
	if !actor.CanManageTopic(topic) {
		if actor.CanViewTopic(topic) {
			return dto.TopicResponse{}, ErrForbidden
		}
		return dto.TopicResponse{}, ErrTopicNotFound
	}

	if topic.IsPublished() {
		return dto.NewTopicResponse(topic), nil
	}

	changed, err := s.topics.Publish(ctx, id, s.now().UTC())
	if err != nil {
		return dto.TopicResponse{}, err
	}
	if changed {
		s.logger.Info().Uint("topic_id", id).Uint("actor_id", actor.ID).Msg("topic published")
	}

	published, err := s.load(ctx, id)
	if err != nil {
		return dto.TopicResponse{}, err
	}

	return dto.NewTopicResponse(published), nil
}

func (s *topicService) load(ctx context.Context, id uint) (models.Topic, error) {
	topic, err := s.topics.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Topic{}, ErrTopicNotFound
		}
		return models.Topic{}, err
	}

	return topic, nil
}

func (s *topicService) discardReference(name string) {
	if name == "" {
		return
	}
	if err := s.files.Remove(name); err != nil && !errors.Is(err, ErrStoredFileNotFound) {
		s.logger.Warn().Err(err).Str("file", name).Msg("failed to remove orphaned reference file")
	}
}
