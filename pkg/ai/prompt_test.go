package ai

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildCorrectionPromptWithReference(t *testing.T) {
	prompt, err := BuildCorrectionPrompt(CorrectionRequest{
		TopicTitle:          "SQL basics",
		SubmittedText:       "SELECT * FROM users;",
		ReferenceCorrection: "SELECT id,name FROM users;",
	})
	require.NoError(t, err)

	require.Contains(t, prompt, "SELECT * FROM users;")
	require.Contains(t, prompt, "SELECT id,name FROM users;")
	require.Contains(t, prompt, "Compare the student answer with the reference correction")
	for _, token := range []string{ScoreOpen, ScoreClose, FeedbackOpen, FeedbackClose, CorrectionOpen, CorrectionClose} {
		require.Equal(t, 1, strings.Count(prompt, token), token)
	}
}

func TestBuildCorrectionPromptWithoutReference(t *testing.T) {
	prompt, err := BuildCorrectionPrompt(CorrectionRequest{SubmittedText: "answer"})
	require.NoError(t, err)
	require.Contains(t, prompt, "First work out a correct answer")
	require.NotContains(t, prompt, "Reference correction")
}

func TestBuildCorrectionPromptDeterministic(t *testing.T) {
	req := CorrectionRequest{TopicTitle: "t", TopicDescription: "d", SubmittedText: "s", ReferenceCorrection: "r"}

	first, err := BuildCorrectionPrompt(req)
	require.NoError(t, err)
	second, err := BuildCorrectionPrompt(req)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBuildCorrectionPromptRequiresText(t *testing.T) {
	_, err := BuildCorrectionPrompt(CorrectionRequest{SubmittedText: " \n\t"})
	require.ErrorIs(t, err, ErrEmptySubmission)
}

func TestPromptTemplateDoesNotParseAsGrade(t *testing.T) {
	prompt, err := BuildCorrectionPrompt(CorrectionRequest{SubmittedText: "answer"})
	require.NoError(t, err)

	_, err = ParseCorrection(prompt)
	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, []string{"score", "feedback", "correction"}, malformed.Missing)
}
