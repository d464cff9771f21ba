package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/models"
	"github.com/noah-isme/autoeval-api/internal/observability"
	"github.com/noah-isme/autoeval-api/internal/repository"
	"github.com/noah-isme/autoeval-api/pkg/ai"
	"github.com/noah-isme/autoeval-api/pkg/extract"
	"github.com/noah-isme/autoeval-api/pkg/pdfrender"
)

const (
	modeSingle     = "single"
	modeBatch      = "batch"
	modeRegenerate = "regenerate"

	// batchUnitGrace is added to the inference timeout for extraction and persistence.
	batchUnitGrace = 30 * time.Second
	failureLimit   = 200
)

// CorrectionPDF is a rendered correction ready for download.
type CorrectionPDF struct {
	FileName string
	Content  []byte
}

// CorrectionService runs the grading pipeline and manages the resulting corrections.
type CorrectionService interface {
	Generate(ctx context.Context, actor Actor, submissionID uint) (dto.CorrectionResponse, error)
	GenerateForTopic(ctx context.Context, actor Actor, topicID uint) (dto.BatchResult, error)
	Regenerate(ctx context.Context, actor Actor, correctionID uint) (dto.CorrectionResponse, error)
	UpdateScore(ctx context.Context, actor Actor, correctionID uint, payload dto.ScoreUpdateRequest) (dto.CorrectionResponse, error)
	UpdateFeedback(ctx context.Context, actor Actor, correctionID uint, payload dto.FeedbackUpdateRequest) (dto.CorrectionResponse, error)
	Get(ctx context.Context, actor Actor, correctionID uint) (dto.CorrectionResponse, error)
	List(ctx context.Context, actor Actor, filter dto.CorrectionFilter) ([]dto.CorrectionResponse, error)
	ListForStudent(ctx context.Context, actor Actor) ([]dto.CorrectionResponse, error)
	ListFailures(ctx context.Context, actor Actor, filter dto.CorrectionFailureFilter) ([]dto.CorrectionFailureResponse, error)
	RenderPDF(ctx context.Context, actor Actor, topicID uint, index int) (CorrectionPDF, error)
}

// CorrectionDependencies groups the collaborators of the correction service.
type CorrectionDependencies struct {
	Corrections repository.CorrectionRepository
	Submissions repository.SubmissionRepository
	Topics      repository.TopicRepository
	Files       FileStore
	Extractor   extract.Extractor
	Generator   ai.Generator
	Tracker     GradingTracker
	Events      CorrectionPublisher
}

// CorrectionConfig tunes the grading pipeline.
type CorrectionConfig struct {
	Model            string
	Timeout          time.Duration
	BatchConcurrency int
}

type correctionService struct {
	corrections repository.CorrectionRepository
	submissions repository.SubmissionRepository
	topics      repository.TopicRepository
	files       FileStore
	extractor   extract.Extractor
	generator   ai.Generator
	tracker     GradingTracker
	events      CorrectionPublisher
	cfg         CorrectionConfig
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewCorrectionService wires the grading pipeline.
func NewCorrectionService(deps CorrectionDependencies, cfg CorrectionConfig, validate *validator.Validate, logger zerolog.Logger) CorrectionService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = ai.DefaultTimeout
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 2
	}

	tracker := deps.Tracker
	if tracker == nil {
		tracker = noopGradingTracker{}
	}
	events := deps.Events
	if events == nil {
		events = NewCorrectionPublisher(nil, nil, "", logger)
	}

	return &correctionService{
		corrections: deps.Corrections,
		submissions: deps.Submissions,
		topics:      deps.Topics,
		files:       deps.Files,
		extractor:   deps.Extractor,
		generator:   deps.Generator,
		tracker:     tracker,
		events:      events,
		cfg:         cfg,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/autoeval-api/internal/service/correction"),
		logger:      logger.With().Str("component", "correction_service").Logger(),
		now:         time.Now,
	}
}

func (s *correctionService) Generate(ctx context.Context, actor Actor, submissionID uint) (dto.CorrectionResponse, error) {
	submission, err := s.loadSubmission(ctx, actor, submissionID)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}

	// A started run is not abandoned when the client goes away; the inference timeout
	// bounds it instead.
	correction, err := s.generate(context.WithoutCancel(ctx), actor, submission, modeSingle)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}

	return dto.NewCorrectionResponse(correction, true), nil
}

func (s *correctionService) GenerateForTopic(ctx context.Context, actor Actor, topicID uint) (dto.BatchResult, error) {
	topic, err := s.loadTopic(ctx, topicID)
	if err != nil {
		return dto.BatchResult{}, err
	}
	if err := authorizeTopic(actor, topic); err != nil {
		return dto.BatchResult{}, err
	}

	submissions, err := s.submissions.ListByTopic(ctx, topic.ID)
	if err != nil {
		return dto.BatchResult{}, err
	}

	ids := make([]uint, 0, len(submissions))
	for _, submission := range submissions {
		ids = append(ids, submission.ID)
	}
	active, err := s.corrections.ActiveIDsBySubmission(ctx, ids)
	if err != nil {
		return dto.BatchResult{}, err
	}

	result := dto.BatchResult{TopicID: topic.ID, Items: make([]dto.BatchItem, len(submissions))}
	pending := make([]int, 0, len(submissions))
	for i, submission := range submissions {
		result.Items[i].SubmissionID = submission.ID
		if correctionID, ok := active[submission.ID]; ok {
			id := correctionID
			result.Items[i].Outcome = dto.BatchOutcomeAlreadyGraded
			result.Items[i].CorrectionID = &id
			continue
		}
		pending = append(pending, i)
	}

	s.logger.Info().
		Uint("topic_id", topic.ID).
		Int("submissions", len(submissions)).
		Int("pending", len(pending)).
		Int("concurrency", s.cfg.BatchConcurrency).
		Msg("batch generation started")

	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)

	for _, idx := range pending {
		item := &result.Items[idx]
		if ctx.Err() != nil {
			item.Outcome = dto.BatchOutcomeCancelled
			continue
		}

		submission := submissions[idx]
		g.Go(func() error {
			if ctx.Err() != nil {
				item.Outcome = dto.BatchOutcomeCancelled
				return nil
			}

			unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout+batchUnitGrace)
			defer cancel()

			correction, err := s.generate(unitCtx, actor, submission, modeBatch)
			switch {
			case err == nil:
				id, score := correction.ID, correction.Score
				item.Outcome = dto.BatchOutcomeGraded
				item.CorrectionID = &id
				item.Score = &score
			case errors.Is(err, ErrDuplicateCorrection):
				item.Outcome = dto.BatchOutcomeAlreadyGraded
			default:
				item.Outcome = dto.BatchOutcomeFailed
				item.Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Tally()
	for _, item := range result.Items {
		observability.BatchItems().WithLabelValues(item.Outcome).Inc()
	}

	s.logger.Info().
		Uint("topic_id", topic.ID).
		Int("graded", result.Graded).
		Int("already_graded", result.AlreadyGraded).
		Int("failed", result.Failed).
		Int("cancelled", result.Cancelled).
		Msg("batch generation finished")

	return result, nil
}

func (s *correctionService) Regenerate(ctx context.Context, actor Actor, correctionID uint) (dto.CorrectionResponse, error) {
	previous, err := s.loadCorrection(ctx, correctionID)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}
	if !actor.CanManageTopic(previous.Topic) {
		return dto.CorrectionResponse{}, ErrForbidden
	}
	if !previous.IsActive() {
		return dto.CorrectionResponse{}, ErrCorrectionConflict
	}

	submission, err := s.submissions.GetByID(ctx, previous.SubmissionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.CorrectionResponse{}, ErrSubmissionNotFound
		}
		return dto.CorrectionResponse{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	next, err := s.evaluate(runCtx, actor, submission, modeRegenerate)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}

	at := s.now().UTC()
	if err := s.corrections.Supersede(runCtx, previous.ID, &next, at); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return dto.CorrectionResponse{}, ErrCorrectionConflict
		}
		return dto.CorrectionResponse{}, s.fail(runCtx, actor, submission, modeRegenerate, fmt.Errorf("store correction: %w", err), nil)
	}

	if err := s.submissions.ClearGradingError(runCtx, submission.ID); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to clear grading error")
	}

	observability.CorrectionsCreated().WithLabelValues(modeRegenerate).Inc()
	s.events.Publish(runCtx, CorrectionEvent{
		Type:         EventCorrectionSuperseded,
		CorrectionID: previous.ID,
		SubmissionID: previous.SubmissionID,
		TopicID:      previous.TopicID,
		StudentID:    previous.StudentID,
		ActorID:      actor.ID,
		Metadata:     datatypes.JSONMap{"superseded_by": next.ID},
		OccurredAt:   at,
	})
	s.publishCreated(runCtx, actor, next)

	s.logger.Info().
		Uint("correction_id", next.ID).
		Uint("previous_id", previous.ID).
		Uint("submission_id", submission.ID).
		Int("score", next.Score).
		Msg("correction regenerated")

	created, err := s.loadCorrection(runCtx, next.ID)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}

	return dto.NewCorrectionResponse(created, true), nil
}

func (s *correctionService) UpdateScore(ctx context.Context, actor Actor, correctionID uint, payload dto.ScoreUpdateRequest) (dto.CorrectionResponse, error) {
	correction, err := s.loadCorrection(ctx, correctionID)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}
	if !actor.CanManageTopic(correction.Topic) {
		return dto.CorrectionResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.CorrectionResponse{}, err
	}
	score := *payload.Score
	if !ai.ValidScore(score) {
		return dto.CorrectionResponse{}, &ai.InvalidScoreError{Value: strconv.Itoa(score)}
	}

	return s.applyEdit(ctx, actor, correction, "score", map[string]interface{}{
		"score":      score,
		"updated_by": actor.ID,
	})
}

func (s *correctionService) UpdateFeedback(ctx context.Context, actor Actor, correctionID uint, payload dto.FeedbackUpdateRequest) (dto.CorrectionResponse, error) {
	correction, err := s.loadCorrection(ctx, correctionID)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}
	if !actor.CanManageTopic(correction.Topic) {
		return dto.CorrectionResponse{}, ErrForbidden
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.CorrectionResponse{}, err
	}
	feedback := s.plainFeedback(payload.Feedback)
	if feedback == "" {
		return dto.CorrectionResponse{}, ErrEmptyFeedback
	}

	return s.applyEdit(ctx, actor, correction, "feedback", map[string]interface{}{
		"feedback":   feedback,
		"updated_by": actor.ID,
	})
}

// plainFeedback strips markup and stores the result as plain text, the same encoding the
// model's feedback uses. Entities that decode into new tags are stripped again.
func (s *correctionService) plainFeedback(input string) string {
	text := strings.TrimSpace(input)
	for i := 0; i < 4; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
		if next == text {
			break
		}
		text = next
	}

	return text
}

func (s *correctionService) applyEdit(ctx context.Context, actor Actor, correction models.Correction, field string, fields map[string]interface{}) (dto.CorrectionResponse, error) {
	if err := s.corrections.UpdateActive(ctx, correction.ID, fields); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return dto.CorrectionResponse{}, ErrCorrectionConflict
		}
		return dto.CorrectionResponse{}, err
	}

	updated, err := s.loadCorrection(ctx, correction.ID)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}

	observability.CorrectionEdits().WithLabelValues(field).Inc()
	score := updated.Score
	s.events.Publish(ctx, CorrectionEvent{
		Type:         EventCorrectionUpdated,
		CorrectionID: updated.ID,
		SubmissionID: updated.SubmissionID,
		TopicID:      updated.TopicID,
		StudentID:    updated.StudentID,
		ActorID:      actor.ID,
		Score:        &score,
		Metadata:     datatypes.JSONMap{"field": field},
	})

	s.logger.Info().
		Uint("correction_id", updated.ID).
		Uint("actor_id", actor.ID).
		Str("field", field).
		Msg("correction updated")

	return dto.NewCorrectionResponse(updated, true), nil
}

func (s *correctionService) Get(ctx context.Context, actor Actor, correctionID uint) (dto.CorrectionResponse, error) {
	correction, err := s.loadCorrection(ctx, correctionID)
	if err != nil {
		return dto.CorrectionResponse{}, err
	}
	if !canViewCorrection(actor, correction) {
		return dto.CorrectionResponse{}, ErrCorrectionNotFound
	}

	return dto.NewCorrectionResponse(correction, actor.IsStaff()), nil
}

func (s *correctionService) List(ctx context.Context, actor Actor, filter dto.CorrectionFilter) ([]dto.CorrectionResponse, error) {
	query := repository.CorrectionFilter{
		TopicID:           filter.TopicID,
		StudentID:         filter.StudentID,
		SubmissionID:      filter.SubmissionID,
		IncludeSuperseded: filter.IncludeSuperseded,
	}

	switch {
	case actor.IsAdmin():
	case actor.IsTeacher():
		id := actor.ID
		query.TeacherID = &id
	case actor.IsStudent():
		id := actor.ID
		query.StudentID = &id
		query.IncludeSuperseded = false
	default:
		return nil, ErrForbidden
	}

	corrections, err := s.corrections.List(ctx, query)
	if err != nil {
		return nil, err
	}

	return dto.NewCorrectionResponseSlice(corrections, actor.IsStaff()), nil
}

func (s *correctionService) ListForStudent(ctx context.Context, actor Actor) ([]dto.CorrectionResponse, error) {
	if !actor.IsStudent() {
		return nil, ErrForbidden
	}

	id := actor.ID
	corrections, err := s.corrections.List(ctx, repository.CorrectionFilter{StudentID: &id})
	if err != nil {
		return nil, err
	}

	return dto.NewCorrectionResponseSlice(corrections, false), nil
}

func (s *correctionService) ListFailures(ctx context.Context, actor Actor, filter dto.CorrectionFailureFilter) ([]dto.CorrectionFailureResponse, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	query := repository.CorrectionFailureFilter{
		TopicID:      filter.TopicID,
		SubmissionID: filter.SubmissionID,
		Kind:         filter.Kind,
		Limit:        failureLimit,
	}
	if actor.IsTeacher() {
		id := actor.ID
		query.TeacherID = &id
	}

	failures, err := s.corrections.ListFailures(ctx, query)
	if err != nil {
		return nil, err
	}

	return dto.NewCorrectionFailureResponseSlice(failures), nil
}

// RenderPDF renders the index-th active correction of a topic, counting in creation
// order. Students only count their own corrections.
func (s *correctionService) RenderPDF(ctx context.Context, actor Actor, topicID uint, index int) (CorrectionPDF, error) {
	topic, err := s.loadTopic(ctx, topicID)
	if err != nil {
		return CorrectionPDF{}, err
	}
	if !actor.CanViewTopic(topic) {
		return CorrectionPDF{}, ErrTopicNotFound
	}

	var studentID *uint
	switch {
	case actor.IsStudent():
		id := actor.ID
		studentID = &id
	case !actor.CanManageTopic(topic):
		return CorrectionPDF{}, ErrForbidden
	}

	corrections, err := s.corrections.ListActiveByTopic(ctx, topic.ID, studentID)
	if err != nil {
		return CorrectionPDF{}, err
	}
	if index < 0 || index >= len(corrections) {
		return CorrectionPDF{}, ErrCorrectionNotFound
	}
	correction := corrections[index]

	content, err := pdfrender.Render(pdfrender.Document{
		TopicTitle:     topic.Title,
		StudentName:    correction.Student.Name,
		StudentEmail:   correction.Student.Email,
		Score:          correction.Score,
		MaxScore:       ai.MaxScore,
		Feedback:       correction.Feedback,
		CorrectionText: correction.CorrectionText,
		ModelName:      correction.ModelName,
		GeneratedAt:    correction.CreatedAt,
		UpdatedAt:      correction.UpdatedAt,
	})
	if err != nil {
		return CorrectionPDF{}, err
	}

	return CorrectionPDF{
		FileName: fmt.Sprintf("correction-%d-%d.pdf", topic.ID, index),
		Content:  content,
	}, nil
}

// generate runs the pipeline for a submission without an active correction and stores
// the result. A lost race on the unique index reports ErrDuplicateCorrection.
func (s *correctionService) generate(ctx context.Context, actor Actor, submission models.Submission, mode string) (models.Correction, error) {
	if _, err := s.corrections.GetActiveBySubmission(ctx, submission.ID); err == nil {
		return models.Correction{}, ErrDuplicateCorrection
	} else if !repository.IsNotFound(err) {
		return models.Correction{}, err
	}

	correction, err := s.evaluate(ctx, actor, submission, mode)
	if err != nil {
		return models.Correction{}, err
	}

	if err := s.corrections.Create(ctx, &correction); err != nil {
		if repository.IsUniqueViolation(err) {
			s.logger.Info().Uint("submission_id", submission.ID).Msg("concurrent grading already stored a correction")
			return models.Correction{}, ErrDuplicateCorrection
		}
		return models.Correction{}, s.fail(ctx, actor, submission, mode, fmt.Errorf("store correction: %w", err), nil)
	}

	if err := s.submissions.ClearGradingError(ctx, submission.ID); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to clear grading error")
	}

	observability.CorrectionsCreated().WithLabelValues(mode).Inc()
	s.publishCreated(ctx, actor, correction)

	s.logger.Info().
		Uint("correction_id", correction.ID).
		Uint("submission_id", submission.ID).
		Str("mode", mode).
		Int("score", correction.Score).
		Msg("correction created")

	created, err := s.loadCorrection(ctx, correction.ID)
	if err != nil {
		return correction, nil
	}

	return created, nil
}

// evaluate decrypts and extracts the submission, asks the model for a grade and parses
// it into an unsaved correction. Every failure is recorded before it is returned.
func (s *correctionService) evaluate(ctx context.Context, actor Actor, submission models.Submission, mode string) (models.Correction, error) {
	ctx, span := s.tracer.Start(ctx, "correction.pipeline", trace.WithAttributes(
		attribute.Int64("submission.id", int64(submission.ID)),
		attribute.Int64("topic.id", int64(submission.TopicID)),
		attribute.String("mode", mode),
	))
	defer span.End()

	start := s.now()
	observability.GradingInFlight().Inc()
	defer observability.GradingInFlight().Dec()

	if err := s.tracker.MarkGrading(ctx, submission.ID); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to mark grading")
	}
	defer func() {
		if err := s.tracker.ClearGrading(ctx, submission.ID); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to clear grading marker")
		}
	}()

	details := datatypes.JSONMap{
		"mode":           mode,
		"source_mime":    submission.MimeType,
		"reference_used": submission.Topic.HasReference(),
	}
	failWith := func(err error) (models.Correction, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, failureKind(err))
		details["duration_ms"] = s.now().Sub(start).Milliseconds()
		observability.PipelineDuration().WithLabelValues(failureKind(err)).Observe(s.now().Sub(start).Seconds())
		return models.Correction{}, s.fail(ctx, actor, submission, mode, err, details)
	}

	submitted, err := s.readText(ctx, submission.StoredFile, submission.MimeType)
	if err != nil {
		return failWith(fmt.Errorf("extract submission: %w", err))
	}

	var reference string
	if submission.Topic.HasReference() {
		reference, err = s.readText(ctx, submission.Topic.ReferenceFile, submission.Topic.ReferenceFileMime)
		if err != nil {
			return failWith(fmt.Errorf("extract reference: %w", err))
		}
	}

	prompt, err := ai.BuildCorrectionPrompt(ai.CorrectionRequest{
		TopicTitle:          submission.Topic.Title,
		TopicDescription:    submission.Topic.Description,
		SubmittedText:       submitted,
		ReferenceCorrection: reference,
	})
	if err != nil {
		return failWith(err)
	}
	details["prompt_chars"] = len(prompt)

	raw, err := s.generator.Generate(ctx, prompt, s.cfg.Model, s.cfg.Timeout)
	if err != nil {
		return failWith(err)
	}

	parsed, err := ai.ParseCorrection(raw)
	if err != nil {
		return failWith(err)
	}

	elapsed := s.now().Sub(start)
	details["duration_ms"] = elapsed.Milliseconds()
	observability.PipelineDuration().WithLabelValues("success").Observe(elapsed.Seconds())
	span.SetAttributes(attribute.Int("correction.score", parsed.Score))
	span.SetStatus(codes.Ok, "graded")

	return models.Correction{
		SubmissionID:   submission.ID,
		TopicID:        submission.TopicID,
		StudentID:      submission.StudentID,
		RawModelOutput: raw,
		Score:          parsed.Score,
		Feedback:       parsed.Feedback,
		CorrectionText: parsed.CorrectionText,
		ModelName:      s.cfg.Model,
		Metadata:       details,
	}, nil
}

func (s *correctionService) readText(ctx context.Context, storedName, mimeHint string) (string, error) {
	path, release, err := s.files.Open(storedName)
	if err != nil {
		return "", err
	}
	defer release()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read decrypted file: %w", err)
	}

	return s.extractor.Extract(ctx, data, mimeHint)
}

// fail records a pipeline failure for review and returns err unchanged.
func (s *correctionService) fail(ctx context.Context, actor Actor, submission models.Submission, mode string, err error, details datatypes.JSONMap) error {
	kind := failureKind(err)
	if details == nil {
		details = datatypes.JSONMap{"mode": mode}
	}

	failure := models.CorrectionFailure{
		SubmissionID:   submission.ID,
		TopicID:        submission.TopicID,
		Kind:           kind,
		Message:        err.Error(),
		RawModelOutput: ai.RawOutput(err),
		ModelName:      s.cfg.Model,
		Details:        details,
	}
	if createErr := s.corrections.CreateFailure(ctx, &failure); createErr != nil {
		s.logger.Error().Err(createErr).Uint("submission_id", submission.ID).Msg("failed to record correction failure")
	}
	if recordErr := s.submissions.RecordGradingError(ctx, submission.ID, err.Error(), s.now().UTC()); recordErr != nil {
		s.logger.Error().Err(recordErr).Uint("submission_id", submission.ID).Msg("failed to record grading error")
	}

	observability.CorrectionFailures().WithLabelValues(kind).Inc()
	s.events.Publish(ctx, CorrectionEvent{
		Type:         EventCorrectionFailed,
		SubmissionID: submission.ID,
		TopicID:      submission.TopicID,
		StudentID:    submission.StudentID,
		ActorID:      actor.ID,
		FailureKind:  kind,
		Message:      err.Error(),
	})

	s.logger.Warn().
		Err(err).
		Str("correlation_id", observability.CorrelationID(ctx)).
		Uint("submission_id", submission.ID).
		Str("kind", kind).
		Str("mode", mode).
		Msg("grading failed")

	return err
}

func (s *correctionService) publishCreated(ctx context.Context, actor Actor, correction models.Correction) {
	score := correction.Score
	s.events.Publish(ctx, CorrectionEvent{
		Type:         EventCorrectionCreated,
		CorrectionID: correction.ID,
		SubmissionID: correction.SubmissionID,
		TopicID:      correction.TopicID,
		StudentID:    correction.StudentID,
		ActorID:      actor.ID,
		Score:        &score,
		Metadata:     correction.Metadata,
	})
}

func (s *correctionService) loadSubmission(ctx context.Context, actor Actor, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	if !actor.CanManageTopic(submission.Topic) {
		return models.Submission{}, ErrForbidden
	}

	return submission, nil
}

func (s *correctionService) loadTopic(ctx context.Context, id uint) (models.Topic, error) {
	topic, err := s.topics.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Topic{}, ErrTopicNotFound
		}
		return models.Topic{}, err
	}

	return topic, nil
}

func (s *correctionService) loadCorrection(ctx context.Context, id uint) (models.Correction, error) {
	correction, err := s.corrections.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Correction{}, ErrCorrectionNotFound
		}
		return models.Correction{}, err
	}

	return correction, nil
}

func authorizeTopic(actor Actor, topic models.Topic) error {
	if actor.CanManageTopic(topic) {
		return nil
	}
	if actor.CanViewTopic(topic) {
		return ErrForbidden
	}
	return ErrTopicNotFound
}

func canViewCorrection(actor Actor, correction models.Correction) bool {
	if actor.IsStudent() {
		return correction.StudentID == actor.ID
	}
	return actor.CanManageTopic(correction.Topic)
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, extract.ErrExtraction),
		errors.Is(err, ai.ErrEmptySubmission):
		return models.FailureKindExtraction
	case errors.Is(err, ai.ErrInferenceTimeout):
		return models.FailureKindInferenceTimeout
	case errors.Is(err, ai.ErrInferenceUnavailable):
		return models.FailureKindInferenceUnavailable
	case errors.Is(err, ai.ErrMalformedResponse):
		return models.FailureKindMalformedResponse
	case errors.Is(err, ai.ErrInvalidScore):
		return models.FailureKindInvalidScore
	default:
		return models.FailureKindStorage
	}
}
