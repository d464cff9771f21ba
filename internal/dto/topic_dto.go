package dto

import (
	"time"

	"github.com/noah-isme/autoeval-api/internal/models"
)

// TopicCreateRequest describes the multipart or JSON payload for creating a topic.
type TopicCreateRequest struct {
	Title       string `form:"title" json:"title" validate:"required,min=3,max=255"`
	Description string `form:"description" json:"description" validate:"max=20000"`
	Deadline    string `form:"deadline" json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// TopicFilter describes query string filters for listing topics.
type TopicFilter struct {
	Status    string `query:"status" validate:"omitempty,oneof=draft published"`
	TeacherID *uint  `query:"teacher_id"`
	Search    string `query:"search" validate:"max=255"`
	Sort      string `query:"sort"`
	Page      int    `query:"page" validate:"omitempty,min=1"`
	PageSize  int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// PaginationMeta describes the page returned by list endpoints.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta derives page counts from the total number of items.
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	if page <= 0 {
		page = 1
	}
	pages := 1
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
		if pages == 0 {
			pages = 1
		}
	} else {
		pageSize = int(total)
	}

	return PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: pages}
}

// TopicResponse is the serialized representation of a topic.
type TopicResponse struct {
	ID           uint       `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	TeacherID    uint       `json:"teacher_id"`
	Teacher      *UserLite  `json:"teacher,omitempty"`
	Deadline     *time.Time `json:"deadline"`
	Status       string     `json:"status"`
	HasReference bool       `json:"has_reference"`
	PublishedAt  *time.Time `json:"published_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TopicLite summarizes a topic inside other resources.
type TopicLite struct {
	ID       uint       `json:"id"`
	Title    string     `json:"title"`
	Deadline *time.Time `json:"deadline"`
}

// NewTopicResponse converts a model into a DTO.
func NewTopicResponse(model models.Topic) TopicResponse {
	return TopicResponse{
		ID:           model.ID,
		Title:        model.Title,
		Description:  model.Description,
		TeacherID:    model.TeacherID,
		Teacher:      newUserLite(model.Teacher),
		Deadline:     model.Deadline,
		Status:       model.Status,
		HasReference: model.HasReference(),
		PublishedAt:  model.PublishedAt,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}
}

// NewTopicResponseSlice converts a slice of models into DTOs.
func NewTopicResponseSlice(topics []models.Topic) []TopicResponse {
	responses := make([]TopicResponse, 0, len(topics))
	for _, topic := range topics {
		responses = append(responses, NewTopicResponse(topic))
	}

	return responses
}

func newTopicLite(model models.Topic) *TopicLite {
	if model.ID == 0 {
		return nil
	}
	return &TopicLite{ID: model.ID, Title: model.Title, Deadline: model.Deadline}
}
