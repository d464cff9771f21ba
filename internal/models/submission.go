package models

import "time"

// Submission ("reponse") is one student's uploaded answer to a topic. TopicID and
// StudentID are set at creation and never updated.
type Submission struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	TopicID            uint       `gorm:"not null;index" json:"topic_id"`
	StudentID          uint       `gorm:"not null;index" json:"student_id"`
	StoredFile         string     `gorm:"size:255;not null;uniqueIndex" json:"stored_file"`
	OriginalName       string     `gorm:"size:255" json:"original_name"`
	FileExt            string     `gorm:"size:16" json:"file_ext"`
	MimeType           string     `gorm:"size:128" json:"mime_type"`
	FileSize           int64      `json:"file_size"`
	Checksum           string     `gorm:"size:64" json:"checksum"`
	LastGradingError   string     `gorm:"type:text" json:"last_grading_error"`
	LastGradingErrorAt *time.Time `json:"last_grading_error_at"`
	CreatedAt          time.Time  `gorm:"<-:create" json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Topic              Topic      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"topic"`
	Student            User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

// HasGradingError reports whether the last pipeline run for the submission failed.
func (s Submission) HasGradingError() bool {
	return s.LastGradingError != ""
}
