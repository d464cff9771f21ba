package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/autoeval-api/internal/models"
)

// TopicFilter describes visibility, search and pagination options.
type TopicFilter struct {
	Status    string
	TeacherID *uint
	// VisibleTo limits results to published topics plus those owned by this teacher.
	VisibleTo *uint
	Search    string
	Sort      string
	Page      int
	PageSize  int
}

// TopicRepository defines persistence operations for topics.
type TopicRepository interface {
	List(ctx context.Context, filter TopicFilter) ([]models.Topic, int64, error)
	GetByID(ctx context.Context, id uint) (models.Topic, error)
	Create(ctx context.Context, topic *models.Topic) error
	Publish(ctx context.Context, id uint, at time.Time) (bool, error)
}

type topicRepository struct {
	db *gorm.DB
}

// NewTopicRepository instantiates a GORM-backed repository.
func NewTopicRepository(db *gorm.DB) TopicRepository {
	return &topicRepository{db: db}
}

func (r *topicRepository) List(ctx context.Context, filter TopicFilter) ([]models.Topic, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Topic{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TeacherID != nil {
		query = query.Where("teacher_id = ?", *filter.TeacherID)
	}
	if filter.VisibleTo != nil {
		query = query.Where("status = ? OR teacher_id = ?", models.TopicStatusPublished, *filter.VisibleTo)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(normalizeTopicSort(filter.Sort))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var topics []models.Topic
	if err := query.Preload("Teacher").Find(&topics).Error; err != nil {
		return nil, 0, err
	}

	return topics, total, nil
}

func (r *topicRepository) GetByID(ctx context.Context, id uint) (models.Topic, error) {
	var topic models.Topic
	if err := r.db.WithContext(ctx).Preload("Teacher").First(&topic, id).Error; err != nil {
		return models.Topic{}, err
	}

	return topic, nil
}

func (r *topicRepository) Create(ctx context.Context, topic *models.Topic) error {
	return r.db.WithContext(ctx).Omit("Teacher").Create(topic).Error
}

// Publish moves a draft topic to published. It reports false when the topic was not a
// draft, so a repeated call is a no-op and no other transition is possible.
func (r *topicRepository) Publish(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Topic{}).
		Where("id = ? AND status = ?", id, models.TopicStatusDraft).
		Updates(map[string]interface{}{
			"status":       models.TopicStatusPublished,
			"published_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func normalizeTopicSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "deadline", "deadline:asc", "deadline.asc":
		return "deadline ASC"
	case "-deadline", "deadline:desc", "deadline.desc":
		return "deadline DESC"
	case "title", "title:asc", "title.asc":
		return "title ASC"
	case "-title", "title:desc", "title.desc":
		return "title DESC"
	case "created_at", "created_at:asc", "created_at.asc":
		return "created_at ASC"
	default:
		return "created_at DESC"
	}
}
