package models

import (
	"time"

	"gorm.io/datatypes"
)

// Correction is the graded result attached to one submission. ActiveFor carries the
// submission id while the record is active and is cleared when it is superseded; its
// unique index keeps at most one active correction per submission.
type Correction struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	SubmissionID   uint              `gorm:"not null;index" json:"submission_id"`
	ActiveFor      *uint             `gorm:"uniqueIndex" json:"-"`
	TopicID        uint              `gorm:"not null;index" json:"topic_id"`
	StudentID      uint              `gorm:"not null;index" json:"student_id"`
	RawModelOutput string            `gorm:"type:text;<-:create" json:"raw_model_output"`
	Score          int               `gorm:"not null" json:"score"`
	Feedback       string            `gorm:"type:text;not null" json:"feedback"`
	CorrectionText string            `gorm:"type:text" json:"correction_text"`
	ModelName      string            `gorm:"size:128" json:"model_name"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	UpdatedBy      *uint             `json:"updated_by"`
	SupersededAt   *time.Time        `json:"superseded_at"`
	SupersededBy   *uint             `json:"superseded_by"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Submission     Submission        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Topic          Topic             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Student        User              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsActive reports whether the correction is the current one for its submission.
func (c Correction) IsActive() bool {
	return c.ActiveFor != nil && c.SupersededAt == nil
}

// Correction failure kinds.
const (
	FailureKindExtraction           = "extraction"
	FailureKindInferenceUnavailable = "inference_unavailable"
	FailureKindInferenceTimeout     = "inference_timeout"
	FailureKindMalformedResponse    = "malformed_response"
	FailureKindInvalidScore         = "invalid_score"
	FailureKindStorage              = "storage"
)

// CorrectionFailure records a pipeline run that produced no correction. Rows feed the
// manual review queue.
type CorrectionFailure struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	SubmissionID   uint              `gorm:"not null;index" json:"submission_id"`
	TopicID        uint              `gorm:"not null;index" json:"topic_id"`
	Kind           string            `gorm:"size:32;not null;index" json:"kind"`
	Message        string            `gorm:"type:text" json:"message"`
	RawModelOutput string            `gorm:"type:text" json:"raw_model_output"`
	ModelName      string            `gorm:"size:128" json:"model_name"`
	Details        datatypes.JSONMap `json:"details"`
	CreatedAt      time.Time         `json:"created_at"`
	Submission     Submission        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
