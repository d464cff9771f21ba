package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Score bounds for a correction.
const (
	MinScore = 0
	MaxScore = 20
)

var (
	// ErrInferenceUnavailable indicates the inference service refused or failed the call.
	ErrInferenceUnavailable = errors.New("inference service unavailable")
	// ErrInferenceTimeout indicates the inference service did not answer in time.
	ErrInferenceTimeout = errors.New("inference service timed out")
	// ErrMalformedResponse indicates the model reply does not follow the sentinel contract.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrInvalidScore indicates a score that is not an integer between MinScore and MaxScore.
	ErrInvalidScore = errors.New("invalid score")
	// ErrEmptySubmission indicates there is no submitted text to grade.
	ErrEmptySubmission = errors.New("submitted text is empty")
)

// Generator sends a prompt to a text generation model and returns its raw reply.
type Generator interface {
	Generate(ctx context.Context, prompt, model string, timeout time.Duration) (string, error)
}

// CorrectionRequest carries everything the prompt needs.
type CorrectionRequest struct {
	TopicTitle          string
	TopicDescription    string
	SubmittedText       string
	ReferenceCorrection string
}

// ParsedCorrection is the validated outcome of a model reply.
type ParsedCorrection struct {
	Score          int    `json:"score"`
	Feedback       string `json:"feedback"`
	CorrectionText string `json:"correction_text"`
}

// MalformedResponseError reports a reply missing one or more required fields.
type MalformedResponseError struct {
	Raw     string
	Missing []string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrMalformedResponse, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match ErrMalformedResponse.
func (e *MalformedResponseError) Unwrap() error {
	return ErrMalformedResponse
}

// InvalidScoreError reports a score value that could not be accepted.
type InvalidScoreError struct {
	Value string
	Raw   string
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("%s: %q is not an integer between %d and %d", ErrInvalidScore, e.Value, MinScore, MaxScore)
}

// Unwrap lets errors.Is match ErrInvalidScore.
func (e *InvalidScoreError) Unwrap() error {
	return ErrInvalidScore
}

// RawOutput returns the model text attached to a parse failure, if any.
func RawOutput(err error) string {
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return malformed.Raw
	}
	var invalid *InvalidScoreError
	if errors.As(err, &invalid) {
		return invalid.Raw
	}
	return ""
}

// ValidScore reports whether score is inside the accepted range.
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}
