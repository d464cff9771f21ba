package dto

import (
	"time"

	"github.com/noah-isme/autoeval-api/internal/models"
	"github.com/noah-isme/autoeval-api/pkg/ai"
)

// ScoreUpdateRequest replaces the score of a correction. Range checks happen in the
// service so out-of-range values report as invalid scores.
type ScoreUpdateRequest struct {
	Score *int `json:"score" validate:"required"`
}

// FeedbackUpdateRequest replaces the feedback of a correction.
type FeedbackUpdateRequest struct {
	Feedback string `json:"feedback" validate:"required,max=20000"`
}

// CorrectionFilter describes query string filters for listing corrections.
type CorrectionFilter struct {
	TopicID           *uint `query:"topic_id"`
	StudentID         *uint `query:"student_id"`
	SubmissionID      *uint `query:"submission_id"`
	IncludeSuperseded bool  `query:"include_superseded"`
}

// CorrectionResponse is the serialized representation of a correction.
type CorrectionResponse struct {
	ID             uint       `json:"id"`
	SubmissionID   uint       `json:"submission_id"`
	TopicID        uint       `json:"topic_id"`
	StudentID      uint       `json:"student_id"`
	Score          int        `json:"score"`
	MaxScore       int        `json:"max_score"`
	Feedback       string     `json:"feedback"`
	CorrectionText string     `json:"correction_text"`
	ModelName      string     `json:"model_name"`
	RawModelOutput string     `json:"raw_model_output,omitempty"`
	Active         bool       `json:"active"`
	UpdatedBy      *uint      `json:"updated_by"`
	SupersededAt   *time.Time `json:"superseded_at,omitempty"`
	SupersededBy   *uint      `json:"superseded_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Topic          *TopicLite `json:"topic,omitempty"`
	Student        *UserLite  `json:"student,omitempty"`
}

// CorrectionEnvelope wraps a single correction the way the generation endpoints return it.
type CorrectionEnvelope struct {
	Correction CorrectionResponse `json:"correction"`
}

// NewCorrectionResponse converts a model into a DTO. The raw model output is only
// included for staff.
func NewCorrectionResponse(model models.Correction, includeRaw bool) CorrectionResponse {
	response := CorrectionResponse{
		ID:             model.ID,
		SubmissionID:   model.SubmissionID,
		TopicID:        model.TopicID,
		StudentID:      model.StudentID,
		Score:          model.Score,
		MaxScore:       ai.MaxScore,
		Feedback:       model.Feedback,
		CorrectionText: model.CorrectionText,
		ModelName:      model.ModelName,
		Active:         model.IsActive(),
		UpdatedBy:      model.UpdatedBy,
		SupersededAt:   model.SupersededAt,
		SupersededBy:   model.SupersededBy,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
		Topic:          newTopicLite(model.Topic),
		Student:        newUserLite(model.Student),
	}
	if includeRaw {
		response.RawModelOutput = model.RawModelOutput
	}

	return response
}

// NewCorrectionResponseSlice converts corrections into DTOs.
func NewCorrectionResponseSlice(corrections []models.Correction, includeRaw bool) []CorrectionResponse {
	responses := make([]CorrectionResponse, 0, len(corrections))
	for _, correction := range corrections {
		responses = append(responses, NewCorrectionResponse(correction, includeRaw))
	}

	return responses
}

// Batch outcomes per submission.
const (
	BatchOutcomeGraded        = "graded"
	BatchOutcomeAlreadyGraded = "already_graded"
	BatchOutcomeFailed        = "failed"
	BatchOutcomeCancelled     = "cancelled"
)

// BatchItem is the outcome of one submission in a batch run.
type BatchItem struct {
	SubmissionID uint   `json:"submission_id"`
	Outcome      string `json:"outcome"`
	CorrectionID *uint  `json:"correction_id,omitempty"`
	Score        *int   `json:"score,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BatchResult summarizes a batch generation over one topic.
type BatchResult struct {
	TopicID       uint        `json:"topic_id"`
	Total         int         `json:"total"`
	Graded        int         `json:"graded"`
	AlreadyGraded int         `json:"already_graded"`
	Failed        int         `json:"failed"`
	Cancelled     int         `json:"cancelled"`
	Items         []BatchItem `json:"items"`
}

// Tally recomputes the counters from Items.
func (r *BatchResult) Tally() {
	r.Total = len(r.Items)
	r.Graded, r.AlreadyGraded, r.Failed, r.Cancelled = 0, 0, 0, 0
	for _, item := range r.Items {
		switch item.Outcome {
		case BatchOutcomeGraded:
			r.Graded++
		case BatchOutcomeAlreadyGraded:
			r.AlreadyGraded++
		case BatchOutcomeFailed:
			r.Failed++
		case BatchOutcomeCancelled:
			r.Cancelled++
		}
	}
}

// CorrectionFailureFilter describes query string filters for the review queue.
type CorrectionFailureFilter struct {
	TopicID      *uint  `query:"topic_id"`
	SubmissionID *uint  `query:"submission_id"`
	Kind         string `query:"kind" validate:"omitempty,oneof=extraction inference_unavailable inference_timeout malformed_response invalid_score storage"`
}

// CorrectionFailureResponse is one entry of the manual review queue.
type CorrectionFailureResponse struct {
	ID             uint                   `json:"id"`
	SubmissionID   uint                   `json:"submission_id"`
	TopicID        uint                   `json:"topic_id"`
	Kind           string                 `json:"kind"`
	Message        string                 `json:"message"`
	RawModelOutput string                 `json:"raw_model_output,omitempty"`
	ModelName      string                 `json:"model_name"`
	Details        map[string]interface{} `json:"details,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewCorrectionFailureResponseSlice converts failure records into DTOs.
func NewCorrectionFailureResponseSlice(failures []models.CorrectionFailure) []CorrectionFailureResponse {
	responses := make([]CorrectionFailureResponse, 0, len(failures))
	for _, failure := range failures {
		responses = append(responses, CorrectionFailureResponse{
			ID:             failure.ID,
			SubmissionID:   failure.SubmissionID,
			TopicID:        failure.TopicID,
			Kind:           failure.Kind,
			Message:        failure.Message,
			RawModelOutput: failure.RawModelOutput,
			ModelName:      failure.ModelName,
			Details:        failure.Details,
			CreatedAt:      failure.CreatedAt,
		})
	}

	return responses
}
