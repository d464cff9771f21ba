package extract

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var pdfHeader = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

func TestPlainTextExtract(t *testing.T) {
	text, err := PlainText{}.Extract(context.Background(), []byte("\xef\xbb\xbfSELECT * FROM users;\r\n"), MimePlainText)
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM users;", text)

	_, err = PlainText{}.Extract(context.Background(), []byte("   \n"), MimePlainText)
	require.ErrorIs(t, err, ErrExtraction)

	_, err = PlainText{}.Extract(context.Background(), []byte{0x00, 0x01, 0xc3, 0x28, 0x00}, MimePlainText)
	require.ErrorIs(t, err, ErrExtraction)
}

func TestPlainTextTranscodesCharsets(t *testing.T) {
	latin1 := []byte("SELECT nom FROM \xe9l\xe8ves;")
	text, err := PlainText{}.Extract(context.Background(), latin1, "text/plain; charset=iso-8859-1")
	require.NoError(t, err)
	require.Equal(t, "SELECT nom FROM élèves;", text)

	utf16 := []byte{0xff, 0xfe}
	for _, r := range "SELECT 1;\r\n" {
		utf16 = append(utf16, byte(r), 0x00)
	}
	text, err = NewRouter(nil).Extract(context.Background(), utf16, "")
	require.NoError(t, err)
	require.Equal(t, "SELECT 1;", text)

	_, err = PlainText{}.Extract(context.Background(), []byte("answer"), "text/plain; charset=x-unknown-charset")
	require.ErrorIs(t, err, ErrExtraction)
}

func TestRouterSniffsPlainText(t *testing.T) {
	router := NewRouter(nil)

	text, err := router.Extract(context.Background(), []byte("answer text"), "")
	require.NoError(t, err)
	require.Equal(t, "answer text", text)
}

func TestRouterWithoutDocumentServer(t *testing.T) {
	router := NewRouter(NewTika(TikaConfig{}))

	_, err := router.Extract(context.Background(), pdfHeader, "")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRouterRejectsUnknownTypes(t *testing.T) {
	router := NewRouter(nil)

	_, err := router.Extract(context.Background(), []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, "")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTikaExtract(t *testing.T) {
	var gotMethod, gotPath, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte("\n  extracted answer  \n"))
	}))
	defer server.Close()

	router := NewRouter(NewTika(TikaConfig{BaseURL: server.URL + "/"}))
	text, err := router.Extract(context.Background(), pdfHeader, "")
	require.NoError(t, err)
	require.Equal(t, "extracted answer", text)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/tika", gotPath)
	require.Equal(t, MimePDF, gotContentType)
	require.Equal(t, pdfHeader, gotBody)
}

func TestTikaErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnprocessableEntity)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	tika := NewTika(TikaConfig{BaseURL: server.URL})

	_, err := tika.Extract(context.Background(), pdfHeader, MimePDF)
	require.ErrorIs(t, err, ErrExtraction)

	status.Store(http.StatusUnsupportedMediaType)
	_, err = tika.Extract(context.Background(), pdfHeader, MimePDF)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	status.Store(http.StatusOK)
	_, err = tika.Extract(context.Background(), pdfHeader, MimePDF)
	require.ErrorIs(t, err, ErrExtraction)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, MimePlainText, Normalize("text/plain; charset=utf-8"))
	require.Equal(t, MimePDF, Normalize("APPLICATION/PDF"))
	require.True(t, IsSupported(MimeDOCX))
	require.False(t, IsSupported("image/png"))
}
