package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/autoeval-api/internal/models"
)

// CorrectionFilter narrows correction queries.
type CorrectionFilter struct {
	TopicID      *uint
	StudentID    *uint
	SubmissionID *uint
	// TeacherID limits results to corrections on topics owned by this teacher.
	TeacherID         *uint
	IncludeSuperseded bool
}

// CorrectionFailureFilter narrows the manual review queue.
type CorrectionFailureFilter struct {
	TopicID      *uint
	SubmissionID *uint
	TeacherID    *uint
	Kind         string
	Limit        int
}

// CorrectionRepository persists corrections and failed grading runs.
type CorrectionRepository interface {
	Create(ctx context.Context, correction *models.Correction) error
	GetByID(ctx context.Context, id uint) (models.Correction, error)
	GetActiveBySubmission(ctx context.Context, submissionID uint) (models.Correction, error)
	ActiveIDsBySubmission(ctx context.Context, submissionIDs []uint) (map[uint]uint, error)
	List(ctx context.Context, filter CorrectionFilter) ([]models.Correction, error)
	ListActiveByTopic(ctx context.Context, topicID uint, studentID *uint) ([]models.Correction, error)
	UpdateActive(ctx context.Context, id uint, fields map[string]interface{}) error
	Supersede(ctx context.Context, previousID uint, next *models.Correction, at time.Time) error
	CreateFailure(ctx context.Context, failure *models.CorrectionFailure) error
	ListFailures(ctx context.Context, filter CorrectionFailureFilter) ([]models.CorrectionFailure, error)
}

type correctionRepository struct {
	db *gorm.DB
}

// NewCorrectionRepository instantiates the repository.
func NewCorrectionRepository(db *gorm.DB) CorrectionRepository {
	return &correctionRepository{db: db}
}

func (r *correctionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Correction{}).
		Preload("Topic").
		Preload("Student")
}

// Create inserts an active correction. A second active correction for the same
// submission is rejected by the unique index on active_for.
func (r *correctionRepository) Create(ctx context.Context, correction *models.Correction) error {
	submissionID := correction.SubmissionID
	correction.ActiveFor = &submissionID

	return r.db.WithContext(ctx).Omit("Submission", "Topic", "Student").Create(correction).Error
}

func (r *correctionRepository) GetByID(ctx context.Context, id uint) (models.Correction, error) {
	var correction models.Correction
	if err := r.baseQuery(ctx).First(&correction, id).Error; err != nil {
		return models.Correction{}, err
	}

	return correction, nil
}

func (r *correctionRepository) GetActiveBySubmission(ctx context.Context, submissionID uint) (models.Correction, error) {
	var correction models.Correction
	if err := r.baseQuery(ctx).Where("active_for = ?", submissionID).First(&correction).Error; err != nil {
		return models.Correction{}, err
	}

	return correction, nil
}

func (r *correctionRepository) ActiveIDsBySubmission(ctx context.Context, submissionIDs []uint) (map[uint]uint, error) {
	result := make(map[uint]uint, len(submissionIDs))
	if len(submissionIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		ID        uint
		ActiveFor uint
	}
	if err := r.db.WithContext(ctx).Model(&models.Correction{}).
		Select("id, active_for").
		Where("active_for IN ?", submissionIDs).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.ActiveFor] = row.ID
	}

	return result, nil
}

func (r *correctionRepository) List(ctx context.Context, filter CorrectionFilter) ([]models.Correction, error) {
	query := r.baseQuery(ctx)

	if !filter.IncludeSuperseded {
		query = query.Where("active_for IS NOT NULL")
	}
	if filter.TopicID != nil {
		query = query.Where("topic_id = ?", *filter.TopicID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.SubmissionID != nil {
		query = query.Where("submission_id = ?", *filter.SubmissionID)
	}
	if filter.TeacherID != nil {
		query = query.Where("topic_id IN (?)", r.db.Model(&models.Topic{}).Select("id").Where("teacher_id = ?", *filter.TeacherID))
	}

	var corrections []models.Correction
	if err := query.Order("created_at DESC").Order("id DESC").Find(&corrections).Error; err != nil {
		return nil, err
	}

	return corrections, nil
}

// ListActiveByTopic returns active corrections of a topic in creation order, which is
// the order correction indexes refer to.
func (r *correctionRepository) ListActiveByTopic(ctx context.Context, topicID uint, studentID *uint) ([]models.Correction, error) {
	query := r.baseQuery(ctx).
		Where("topic_id = ?", topicID).
		Where("active_for IS NOT NULL")
	if studentID != nil {
		query = query.Where("student_id = ?", *studentID)
	}

	var corrections []models.Correction
	if err := query.Order("id ASC").Find(&corrections).Error; err != nil {
		return nil, err
	}

	return corrections, nil
}

// UpdateActive applies fields to a correction that is still active. It returns
// ErrConflict when the record was superseded in the meantime.
func (r *correctionRepository) UpdateActive(ctx context.Context, id uint, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Correction{}).
		Where("id = ? AND active_for IS NOT NULL", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}

	return nil
}

// Supersede retires previousID and inserts next as the active correction in one
// transaction. A concurrent supersede of the same record fails with ErrConflict.
func (r *correctionRepository) Supersede(ctx context.Context, previousID uint, next *models.Correction, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		retired := tx.Model(&models.Correction{}).
			Where("id = ? AND active_for IS NOT NULL", previousID).
			Updates(map[string]interface{}{
				"active_for":    nil,
				"superseded_at": at,
			})
		if retired.Error != nil {
			return fmt.Errorf("retire correction %d: %w", previousID, retired.Error)
		}
		if retired.RowsAffected == 0 {
			return ErrConflict
		}

		submissionID := next.SubmissionID
		next.ActiveFor = &submissionID
		if err := tx.Omit("Submission", "Topic", "Student").Create(next).Error; err != nil {
			if IsUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert replacement correction: %w", err)
		}

		return tx.Model(&models.Correction{}).
			Where("id = ?", previousID).
			Update("superseded_by", next.ID).Error
	})
}

func (r *correctionRepository) CreateFailure(ctx context.Context, failure *models.CorrectionFailure) error {
	return r.db.WithContext(ctx).Omit("Submission").Create(failure).Error
}

func (r *correctionRepository) ListFailures(ctx context.Context, filter CorrectionFailureFilter) ([]models.CorrectionFailure, error) {
	query := r.db.WithContext(ctx).Model(&models.CorrectionFailure{})

	if filter.TopicID != nil {
		query = query.Where("topic_id = ?", *filter.TopicID)
	}
	if filter.SubmissionID != nil {
		query = query.Where("submission_id = ?", *filter.SubmissionID)
	}
	if filter.TeacherID != nil {
		query = query.Where("topic_id IN (?)", r.db.Model(&models.Topic{}).Select("id").Where("teacher_id = ?", *filter.TeacherID))
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var failures []models.CorrectionFailure
	if err := query.Order("created_at DESC").Order("id DESC").Find(&failures).Error; err != nil {
		return nil, err
	}

	return failures, nil
}
