package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/middleware"
	"github.com/noah-isme/autoeval-api/internal/service"
)

type stubCorrectionService struct {
	service.CorrectionService
	correction dto.CorrectionResponse
	batch      dto.BatchResult
	actor      service.Actor
}

func (s *stubCorrectionService) Generate(_ context.Context, actor service.Actor, _ uint) (dto.CorrectionResponse, error) {
	s.actor = actor
	return s.correction, nil
}

func (s *stubCorrectionService) GenerateForTopic(context.Context, service.Actor, uint) (dto.BatchResult, error) {
	return s.batch, nil
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}

func contractApp(stub *stubCorrectionService) *fiber.App {
	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, uint(3))
		c.Locals(middleware.LocalUserRole, "teacher")
		return c.Next()
	})
	NewCorrectionHandler(stub, zerolog.Nop()).Register(app.Group("/api"), passthrough, passthrough)
	return app
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestGenerateCorrectionContract(t *testing.T) {
	schema := compileSchema(t, "correction_envelope.schema.json")
	now := time.Now().UTC()
	stub := &stubCorrectionService{correction: dto.CorrectionResponse{
		ID:             9,
		SubmissionID:   4,
		TopicID:        2,
		StudentID:      5,
		Score:          14,
		MaxScore:       20,
		Feedback:       "Selects every column.",
		CorrectionText: "SELECT id,name FROM users;",
		ModelName:      "llama3",
		RawModelOutput: "raw",
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}}

	resp, err := contractApp(stub).Test(httptest.NewRequest(http.MethodPost, "/api/generateCorrection/4", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	validateBody(t, schema, resp)
	require.Equal(t, service.Actor{ID: 3, Role: "teacher"}, stub.actor)
}

func TestGenerateCorrectionsBatchContract(t *testing.T) {
	schema := compileSchema(t, "batch_result.schema.json")
	correctionID, score := uint(11), 16
	result := dto.BatchResult{
		TopicID: 2,
		Items: []dto.BatchItem{
			{SubmissionID: 4, Outcome: dto.BatchOutcomeGraded, CorrectionID: &correctionID, Score: &score},
			{SubmissionID: 5, Outcome: dto.BatchOutcomeAlreadyGraded},
			{SubmissionID: 6, Outcome: dto.BatchOutcomeFailed, Error: "inference timed out"},
		},
	}
	result.Tally()

	resp, err := contractApp(&stubCorrectionService{batch: result}).Test(httptest.NewRequest(http.MethodPost, "/api/generateCorrections/2", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateBody(t, schema, resp)
}

func TestGenerateCorrectionRejectsBadID(t *testing.T) {
	resp, err := contractApp(&stubCorrectionService{}).Test(httptest.NewRequest(http.MethodPost, "/api/generateCorrection/abc", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
