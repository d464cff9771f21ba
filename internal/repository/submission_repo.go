package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/autoeval-api/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	TopicID   *uint
	StudentID *uint
	// TeacherID limits results to submissions on topics owned by this teacher.
	TeacherID *uint
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	ListByTopic(ctx context.Context, topicID uint) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByStoredFile(ctx context.Context, name string) (models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	RecordGradingError(ctx context.Context, id uint, message string, at time.Time) error
	ClearGradingError(ctx context.Context, id uint) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Topic").
		Preload("Student")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.TopicID != nil {
		query = query.Where("topic_id = ?", *filter.TopicID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.TeacherID != nil {
		query = query.Where("topic_id IN (?)", r.db.Model(&models.Topic{}).Select("id").Where("teacher_id = ?", *filter.TeacherID))
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC").Order("id DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListByTopic(ctx context.Context, topicID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.baseQuery(ctx).Where("topic_id = ?", topicID).Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByStoredFile(ctx context.Context, name string) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).Where("stored_file = ?", name).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit("Topic", "Student").Create(submission).Error
}

func (r *submissionRepository) RecordGradingError(ctx context.Context, id uint, message string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_grading_error":    message,
			"last_grading_error_at": at,
		}).Error
}

func (r *submissionRepository) ClearGradingError(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND last_grading_error <> ''", id).
		Updates(map[string]interface{}{
			"last_grading_error":    "",
			"last_grading_error_at": nil,
		}).Error
}
