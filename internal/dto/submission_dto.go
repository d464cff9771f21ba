package dto

import (
	"time"

	"github.com/noah-isme/autoeval-api/internal/models"
)

// Grading states derived for a submission.
const (
	GradingStateGraded  = "graded"
	GradingStateGrading = "grading"
	GradingStateFailed  = "failed"
	GradingStatePending = "pending"
)

// UploadsPrefix is the public path under which stored files are served.
const UploadsPrefix = "/uploads/"

// SubmissionCreateRequest describes the multipart payload for a submission upload.
// The form field names match the web client: title carries the topic id
// and student the student id.
type SubmissionCreateRequest struct {
	TopicID   uint `form:"title" validate:"required,gt=0"`
	StudentID uint `form:"student" validate:"omitempty,gt=0"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	TopicID   *uint `query:"topic_id"`
	StudentID *uint `query:"student_id"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                 uint       `json:"id"`
	TopicID            uint       `json:"topic_id"`
	StudentID          uint       `json:"student_id"`
	FileURL            string     `json:"file_url"`
	OriginalName       string     `json:"original_name"`
	MimeType           string     `json:"mime_type"`
	FileSize           int64      `json:"file_size"`
	GradingState       string     `json:"grading_state"`
	CorrectionID       *uint      `json:"correction_id"`
	LastGradingError   string     `json:"last_grading_error,omitempty"`
	LastGradingErrorAt *time.Time `json:"last_grading_error_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	Topic              *TopicLite `json:"topic,omitempty"`
	Student            *UserLite  `json:"student,omitempty"`
}

// SubmissionState carries the derived grading information for one submission.
type SubmissionState struct {
	CorrectionID *uint
	Grading      bool
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission, state SubmissionState) SubmissionResponse {
	response := SubmissionResponse{
		ID:                 model.ID,
		TopicID:            model.TopicID,
		StudentID:          model.StudentID,
		FileURL:            UploadsPrefix + model.StoredFile,
		OriginalName:       model.OriginalName,
		MimeType:           model.MimeType,
		FileSize:           model.FileSize,
		CorrectionID:       state.CorrectionID,
		LastGradingError:   model.LastGradingError,
		LastGradingErrorAt: model.LastGradingErrorAt,
		CreatedAt:          model.CreatedAt,
		Topic:              newTopicLite(model.Topic),
		Student:            newUserLite(model.Student),
	}

	switch {
	case state.CorrectionID != nil:
		response.GradingState = GradingStateGraded
	case state.Grading:
		response.GradingState = GradingStateGrading
	case model.HasGradingError():
		response.GradingState = GradingStateFailed
	default:
		response.GradingState = GradingStatePending
	}

	return response
}
