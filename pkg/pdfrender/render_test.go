package pdfrender

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	out, err := Render(Document{
		TopicTitle:     "SQL basics",
		StudentName:    "Ana Lúcia",
		StudentEmail:   "ana@example.com",
		Score:          14,
		Feedback:       "Selects every column; only id and name were asked for.",
		CorrectionText: "SELECT id,name FROM users;",
		ModelName:      "llama3",
		GeneratedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	require.True(t, bytes.Contains(out, []byte("%%EOF")))
}

func TestRenderEmptyDocument(t *testing.T) {
	out, err := Render(Document{})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
