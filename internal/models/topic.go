package models

import "time"

const (
	// TopicStatusDraft is the initial state of a topic; students cannot submit yet.
	TopicStatusDraft = "draft"
	// TopicStatusPublished opens the topic to submissions.
	TopicStatusPublished = "published"
)

// Topic is an assignment posted by a teacher.
type Topic struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Title             string     `gorm:"size:255;uniqueIndex;not null" json:"title"`
	Description       string     `gorm:"type:text" json:"description"`
	TeacherID         uint       `gorm:"not null;index" json:"teacher_id"`
	Deadline          *time.Time `json:"deadline"`
	ReferenceFile     string     `gorm:"size:255" json:"-"`
	ReferenceFileExt  string     `gorm:"size:16" json:"-"`
	ReferenceFileMime string     `gorm:"size:128" json:"-"`
	Status            string     `gorm:"size:16;not null;default:draft" json:"status"`
	PublishedAt       *time.Time `json:"published_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Teacher           User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"teacher"`
}

// IsPublished reports whether students may submit to the topic.
func (t Topic) IsPublished() bool {
	return t.Status == TopicStatusPublished
}

// IsPastDeadline returns true when the topic has a deadline before reference.
func (t Topic) IsPastDeadline(reference time.Time) bool {
	return t.Deadline != nil && reference.After(*t.Deadline)
}

// HasReference reports whether the teacher attached a reference correction.
func (t Topic) HasReference() bool {
	return t.ReferenceFile != ""
}
