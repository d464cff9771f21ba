package ai

import (
	"strings"
)

// Sentinel tokens delimiting each field of the model reply.
const (
	ScoreOpen       = "<<<SCORE>>>"
	ScoreClose      = "<<<END_SCORE>>>"
	FeedbackOpen    = "<<<FEEDBACK>>>"
	FeedbackClose   = "<<<END_FEEDBACK>>>"
	CorrectionOpen  = "<<<CORRECTION>>>"
	CorrectionClose = "<<<END_CORRECTION>>>"
)

// Placeholders shown in the output format section of the prompt.
const (
	ScorePlaceholder      = "<whole number 0-20>"
	FeedbackPlaceholder   = "<explanation of the grade for the student>"
	CorrectionPlaceholder = "<corrected version of the answer>"
)

// BuildCorrectionPrompt renders the grading prompt. The output depends only on req.
func BuildCorrectionPrompt(req CorrectionRequest) (string, error) {
	submitted := strings.TrimSpace(req.SubmittedText)
	if submitted == "" {
		return "", ErrEmptySubmission
	}
	reference := strings.TrimSpace(req.ReferenceCorrection)

	builder := strings.Builder{}
	builder.WriteString("You are a teacher grading a student's answer on a scale from 0 to 20.\n")

	if title := strings.TrimSpace(req.TopicTitle); title != "" {
		builder.WriteString("\n# Assignment\n")
		builder.WriteString(title)
		builder.WriteString("\n")
	}
	if description := strings.TrimSpace(req.TopicDescription); description != "" {
		builder.WriteString("\n## Instructions given to the student\n")
		builder.WriteString(description)
		builder.WriteString("\n")
	}

	if reference != "" {
		builder.WriteString("\n## Reference correction written by the teacher\n")
		builder.WriteString(reference)
		builder.WriteString("\n")
	}

	builder.WriteString("\n## Student answer\n")
	builder.WriteString(submitted)
	builder.WriteString("\n\n## Task\n")

	if reference != "" {
		builder.WriteString("Compare the student answer with the reference correction. ")
		builder.WriteString("Grade how closely it meets the reference, list what is missing or wrong, ")
		builder.WriteString("then write the corrected version of the student answer.\n")
	} else {
		builder.WriteString("First work out a correct answer to the assignment yourself. ")
		builder.WriteString("Then grade the student answer against it, list what is missing or wrong, ")
		builder.WriteString("and write the corrected version of the student answer.\n")
	}

	builder.WriteString("\n## Output format\n")
	builder.WriteString("Reply with exactly these three blocks and nothing inside them but the requested value. ")
	builder.WriteString("The score must be a whole number between 0 and 20.\n\n")
	writeBlock(&builder, ScoreOpen, ScoreClose, ScorePlaceholder)
	writeBlock(&builder, FeedbackOpen, FeedbackClose, FeedbackPlaceholder)
	writeBlock(&builder, CorrectionOpen, CorrectionClose, CorrectionPlaceholder)

	return builder.String(), nil
}

func writeBlock(builder *strings.Builder, openToken, closeToken, placeholder string) {
	builder.WriteString(openToken)
	builder.WriteString("\n")
	builder.WriteString(placeholder)
	builder.WriteString("\n")
	builder.WriteString(closeToken)
	builder.WriteString("\n")
}
