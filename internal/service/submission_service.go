package service

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/models"
	"github.com/noah-isme/autoeval-api/internal/repository"
)

// SubmissionFile is a decrypted upload ready to be streamed.
type SubmissionFile struct {
	Path         string
	DownloadName string
	MimeType     string
	// Release removes the decrypted copy and must be called once the file was sent.
	Release func()
}

// SubmissionService orchestrates submission uploads and reads.
type SubmissionService interface {
	Create(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	List(ctx context.Context, actor Actor, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error)
	OpenFile(ctx context.Context, actor Actor, name string) (SubmissionFile, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	topics      repository.TopicRepository
	users       repository.UserRepository
	corrections repository.CorrectionRepository
	files       FileStore
	tracker     GradingTracker
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// SubmissionDependencies groups the collaborators of the submission service.
type SubmissionDependencies struct {
	Submissions repository.SubmissionRepository
	Topics      repository.TopicRepository
	Users       repository.UserRepository
	Corrections repository.CorrectionRepository
	Files       FileStore
	Tracker     GradingTracker
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(deps SubmissionDependencies, validate *validator.Validate, logger zerolog.Logger) SubmissionService {
	tracker := deps.Tracker
	if tracker == nil {
		tracker = noopGradingTracker{}
	}

	return &submissionService{
		submissions: deps.Submissions,
		topics:      deps.Topics,
		users:       deps.Users,
		corrections: deps.Corrections,
		files:       deps.Files,
		tracker:     tracker,
		validator:   validate,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) Create(ctx context.Context, actor Actor, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	studentID, err := s.resolveStudent(actor, payload)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	topic, err := s.topics.GetByID(ctx, payload.TopicID)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.SubmissionResponse{}, ErrTopicNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if actor.IsTeacher() && !actor.CanManageTopic(topic) {
		return dto.SubmissionResponse{}, ErrForbidden
	}
	if !topic.IsPublished() {
		if !actor.CanViewTopic(topic) {
			return dto.SubmissionResponse{}, ErrTopicNotFound
		}
		return dto.SubmissionResponse{}, ErrTopicNotPublished
	}
	if topic.IsPastDeadline(s.now()) {
		return dto.SubmissionResponse{}, ErrTopicClosed
	}

	student, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.SubmissionResponse{}, ErrUserNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if student.Role != models.RoleStudent {
		return dto.SubmissionResponse{}, ErrUserNotFound
	}

	if file == nil {
		return dto.SubmissionResponse{}, ErrFileRequired
	}

	stored, err := s.files.Save(ctx, file)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission := models.Submission{
		TopicID:      topic.ID,
		StudentID:    student.ID,
		StoredFile:   stored.Name,
		OriginalName: stored.OriginalName,
		FileExt:      stored.Ext,
		MimeType:     stored.MimeType,
		FileSize:     stored.Size,
		Checksum:     stored.Checksum,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		if removeErr := s.files.Remove(stored.Name); removeErr != nil {
			s.logger.Warn().Err(removeErr).Str("file", stored.Name).Msg("failed to remove orphaned upload")
		}
		return dto.SubmissionResponse{}, err
	}

	created, err := s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", created.ID).
		Uint("topic_id", created.TopicID).
		Uint("student_id", created.StudentID).
		Uint("actor_id", actor.ID).
		Str("mime", created.MimeType).
		Msg("submission stored")

	return dto.NewSubmissionResponse(created, dto.SubmissionState{}), nil
}

// resolveStudent decides on whose behalf the upload is made. Students always submit for
// themselves; staff must name the student.
func (s *submissionService) resolveStudent(actor Actor, payload dto.SubmissionCreateRequest) (uint, error) {
	switch {
	case actor.IsStudent():
		if payload.StudentID != 0 && payload.StudentID != actor.ID {
			return 0, ErrForbidden
		}
		return actor.ID, nil
	case actor.IsStaff():
		if payload.StudentID == 0 {
			return 0, ErrStudentRequired
		}
		return payload.StudentID, nil
	default:
		return 0, ErrForbidden
	}
}

func (s *submissionService) List(ctx context.Context, actor Actor, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	query := repository.SubmissionFilter{
		TopicID:   filter.TopicID,
		StudentID: filter.StudentID,
	}

	switch {
	case actor.IsAdmin():
	case actor.IsTeacher():
		id := actor.ID
		query.TeacherID = &id
	case actor.IsStudent():
		id := actor.ID
		query.StudentID = &id
	default:
		return nil, ErrForbidden
	}

	submissions, err := s.submissions.List(ctx, query)
	if err != nil {
		return nil, err
	}

	return s.withState(ctx, submissions)
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	if !actor.CanViewSubmission(submission) {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	responses, err := s.withState(ctx, []models.Submission{submission})
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	return responses[0], nil
}

func (s *submissionService) OpenFile(ctx context.Context, actor Actor, name string) (SubmissionFile, error) {
	submission, err := s.submissions.GetByStoredFile(ctx, name)
	if err != nil {
		if repository.IsNotFound(err) {
			return SubmissionFile{}, ErrStoredFileNotFound
		}
		return SubmissionFile{}, err
	}
	if !actor.CanViewSubmission(submission) {
		return SubmissionFile{}, ErrForbidden
	}

	path, release, err := s.files.Open(submission.StoredFile)
	if err != nil {
		return SubmissionFile{}, err
	}

	downloadName := submission.OriginalName
	if downloadName == "" {
		downloadName = "submission" + submission.FileExt
	}

	return SubmissionFile{
		Path:         path,
		DownloadName: downloadName,
		MimeType:     submission.MimeType,
		Release:      release,
	}, nil
}

// withState derives the grading state of each submission from its active correction and
// the advisory in-progress markers.
func (s *submissionService) withState(ctx context.Context, submissions []models.Submission) ([]dto.SubmissionResponse, error) {
	ids := make([]uint, 0, len(submissions))
	for _, submission := range submissions {
		ids = append(ids, submission.ID)
	}

	active, err := s.corrections.ActiveIDsBySubmission(ctx, ids)
	if err != nil {
		return nil, err
	}

	grading, err := s.tracker.InProgress(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("grading status unavailable")
		grading = map[uint]bool{}
	}

	responses := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		state := dto.SubmissionState{Grading: grading[submission.ID]}
		if correctionID, ok := active[submission.ID]; ok {
			id := correctionID
			state.CorrectionID = &id
		}
		responses = append(responses, dto.NewSubmissionResponse(submission, state))
	}

	return responses, nil
}
