package ai

import (
	"regexp"
	"strconv"
	"strings"
)

var scorePattern = regexp.MustCompile(`^(\d{1,2})(?:\s*/\s*20)?$`)

type sentinelField struct {
	name        string
	open        string
	close       string
	placeholder string
}

var correctionFields = []sentinelField{
	{name: "score", open: ScoreOpen, close: ScoreClose, placeholder: ScorePlaceholder},
	{name: "feedback", open: FeedbackOpen, close: FeedbackClose, placeholder: FeedbackPlaceholder},
	{name: "correction", open: CorrectionOpen, close: CorrectionClose, placeholder: CorrectionPlaceholder},
}

// ParseCorrection extracts the score, feedback and corrected text from a model reply.
//
// Text outside the sentinel blocks is ignored. The reply is read from the last score
// marker onward, so every field comes from the same answer even when the model echoed
// the output format first. A missing, empty or placeholder block yields
// *MalformedResponseError and a score outside 0..20 or not a whole number yields
// *InvalidScoreError; no value is ever defaulted.
func ParseCorrection(raw string) (ParsedCorrection, error) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	if anchor := strings.LastIndex(text, ScoreOpen); anchor >= 0 {
		text = text[anchor:]
	}

	values := make(map[string]string, len(correctionFields))
	var missing []string
	for _, field := range correctionFields {
		value, ok := lastBlock(text, field.open, field.close)
		if !ok || value == "" || isPlaceholder(value, field.placeholder) {
			missing = append(missing, field.name)
			continue
		}
		values[field.name] = value
	}

	if len(missing) > 0 {
		return ParsedCorrection{}, &MalformedResponseError{Raw: raw, Missing: missing}
	}

	score, err := parseScore(values["score"])
	if err != nil {
		return ParsedCorrection{}, &InvalidScoreError{Value: values["score"], Raw: raw}
	}

	return ParsedCorrection{
		Score:          score,
		Feedback:       values["feedback"],
		CorrectionText: values["correction"],
	}, nil
}

func lastBlock(text, openToken, closeToken string) (string, bool) {
	end := strings.LastIndex(text, closeToken)
	if end < 0 {
		return "", false
	}
	start := strings.LastIndex(text[:end], openToken)
	if start < 0 {
		return "", false
	}

	return cleanBlock(text[start+len(openToken) : end]), true
}

func isPlaceholder(value, placeholder string) bool {
	return strings.EqualFold(strings.Trim(value, " \t\n*`_"), placeholder)
}

// cleanBlock trims whitespace and markdown fences hugging the block content.
func cleanBlock(value string) string {
	value = strings.TrimSpace(value)

	if strings.HasPrefix(value, "```") {
		if idx := strings.Index(value, "\n"); idx >= 0 {
			value = value[idx+1:]
		} else {
			value = strings.TrimPrefix(value, "```")
		}
	}
	value = strings.TrimSpace(value)
	value = strings.TrimSuffix(value, "```")

	return strings.TrimSpace(value)
}

func parseScore(value string) (int, error) {
	trimmed := strings.Trim(value, " \t\n*`_")
	match := scorePattern.FindStringSubmatch(trimmed)
	if match == nil {
		return 0, ErrInvalidScore
	}

	score, err := strconv.Atoi(match[1])
	if err != nil || !ValidScore(score) {
		return 0, ErrInvalidScore
	}

	return score, nil
}
