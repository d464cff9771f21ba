package ai

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sentinelReply(score, feedback, correction string) string {
	return ScoreOpen + "\n" + score + "\n" + ScoreClose + "\n" +
		FeedbackOpen + "\n" + feedback + "\n" + FeedbackClose + "\n" +
		CorrectionOpen + "\n" + correction + "\n" + CorrectionClose + "\n"
}

func TestParseCorrectionWellFormed(t *testing.T) {
	raw := sentinelReply("14", "Selects every column instead of id and name.", "SELECT id,name FROM users;")

	parsed, err := ParseCorrection(raw)
	require.NoError(t, err)
	require.Equal(t, ParsedCorrection{
		Score:          14,
		Feedback:       "Selects every column instead of id and name.",
		CorrectionText: "SELECT id,name FROM users;",
	}, parsed)
}

func TestParseCorrectionTolerance(t *testing.T) {
	cases := map[string]string{
		"prose around": "Sure! Here is my grading.\n\n" + sentinelReply("12", "ok", "fixed") + "\nLet me know if you need more.",
		"full fence":   "```\n" + sentinelReply("12", "ok", "fixed") + "```",
		"fenced value": ScoreOpen + "```\n12\n```" + ScoreClose + FeedbackOpen + "```text\nok\n```" + FeedbackClose + CorrectionOpen + "```sql\nfixed\n" + CorrectionClose,
		"crlf":         "Grade:\r\n" + ScoreOpen + "\r\n12\r\n" + ScoreClose + "\r\n" + FeedbackOpen + "\r\nok\r\n" + FeedbackClose + "\r\n" + CorrectionOpen + "\r\nfixed\r\n" + CorrectionClose,
		"bold score":   sentinelReply("**12**", "ok", "fixed"),
		"over twenty":  sentinelReply("12/20", "ok", "fixed"),
		"template echo": sentinelReply("<whole number 0-20>", "<explanation>", "<corrected>") +
			"\nActual answer:\n" + sentinelReply("12", "ok", "fixed"),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			parsed, err := ParseCorrection(raw)
			require.NoError(t, err)
			require.Equal(t, 12, parsed.Score)
			require.Equal(t, "ok", parsed.Feedback)
			require.Equal(t, "fixed", parsed.CorrectionText)
		})
	}
}

func TestParseCorrectionRejectsFreeText(t *testing.T) {
	_, err := ParseCorrection("I think this is fine")
	require.ErrorIs(t, err, ErrMalformedResponse)

	var malformed *MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "I think this is fine", malformed.Raw)
	require.Equal(t, []string{"score", "feedback", "correction"}, malformed.Missing)
	require.Equal(t, "I think this is fine", RawOutput(err))
}

func TestParseCorrectionMissingFields(t *testing.T) {
	cases := map[string]struct {
		raw     string
		missing []string
	}{
		"no feedback": {
			raw:     ScoreOpen + "10" + ScoreClose + CorrectionOpen + "x" + CorrectionClose,
			missing: []string{"feedback"},
		},
		"empty correction": {
			raw:     sentinelReply("10", "fine", "   "),
			missing: []string{"correction"},
		},
		"unterminated": {
			raw:     ScoreOpen + "10" + ScoreClose + FeedbackOpen + "fine" + FeedbackClose + CorrectionOpen + "cut off by max tokens",
			missing: []string{"correction"},
		},
		"legacy json": {
			raw:     "```json\n{\"note\": 10, \"feedback\": \"ok\"}\n```",
			missing: []string{"score", "feedback", "correction"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCorrection(tc.raw)
			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			require.Equal(t, tc.missing, malformed.Missing)
			require.NotErrorIs(t, err, ErrInvalidScore)
		})
	}
}

func TestParseCorrectionTruncatedAfterTemplateEcho(t *testing.T) {
	prompt, err := BuildCorrectionPrompt(CorrectionRequest{TopicTitle: "SQL basics", SubmittedText: "SELECT * FROM users;"})
	require.NoError(t, err)
	echo := prompt[strings.Index(prompt, ScoreOpen):]

	cases := map[string]struct {
		raw     string
		missing []string
	}{
		"cut inside correction": {
			raw: echo + "\n" + ScoreOpen + "\n14\n" + ScoreClose + "\n" +
				FeedbackOpen + "\nMissing column list.\n" + FeedbackClose + "\n" +
				CorrectionOpen + "\nSELECT id, na",
			missing: []string{"correction"},
		},
		"cut inside feedback": {
			raw: echo + "\n" + ScoreOpen + "\n14\n" + ScoreClose + "\n" +
				FeedbackOpen + "\nMissing col",
			missing: []string{"feedback", "correction"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			parsed, err := ParseCorrection(tc.raw)
			require.Equal(t, ParsedCorrection{}, parsed)

			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			require.Equal(t, tc.missing, malformed.Missing)
			require.Equal(t, tc.raw, malformed.Raw)
		})
	}
}

func TestParseCorrectionRejectsPlaceholders(t *testing.T) {
	cases := map[string]struct {
		raw     string
		missing []string
	}{
		"feedback":   {raw: sentinelReply("12", FeedbackPlaceholder, "fixed"), missing: []string{"feedback"}},
		"correction": {raw: sentinelReply("12", "ok", CorrectionPlaceholder), missing: []string{"correction"}},
		"score":      {raw: sentinelReply(ScorePlaceholder, "ok", "fixed"), missing: []string{"score"}},
		"both texts": {raw: sentinelReply("12", FeedbackPlaceholder, CorrectionPlaceholder), missing: []string{"feedback", "correction"}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCorrection(tc.raw)
			var malformed *MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			require.Equal(t, tc.missing, malformed.Missing)
		})
	}
}

func TestParseCorrectionScoreBoundaries(t *testing.T) {
	accepted := map[string]int{"0": 0, "20": 20, "7": 7, "20/20": 20}
	for value, want := range accepted {
		parsed, err := ParseCorrection(sentinelReply(value, "f", "c"))
		require.NoError(t, err, value)
		require.Equal(t, want, parsed.Score)
	}

	for _, value := range []string{"21", "-1", "twenty", "14.5", "100", "1e1", "15/10"} {
		_, err := ParseCorrection(sentinelReply(value, "f", "c"))
		require.ErrorIs(t, err, ErrInvalidScore, value)

		var invalid *InvalidScoreError
		require.True(t, errors.As(err, &invalid))
		require.Equal(t, value, invalid.Value)
	}
}

func TestParseCorrectionIsDeterministic(t *testing.T) {
	inputs := []string{
		sentinelReply("14", "feedback", "correction"),
		"I think this is fine",
		sentinelReply("21", "feedback", "correction"),
	}

	for _, raw := range inputs {
		first, firstErr := ParseCorrection(raw)
		for i := 0; i < 5; i++ {
			again, err := ParseCorrection(raw)
			require.Equal(t, first, again)
			require.Equal(t, firstErr == nil, err == nil)
			if firstErr != nil {
				require.Equal(t, firstErr.Error(), err.Error())
			}
		}
	}
}
