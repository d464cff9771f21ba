package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/service"
	"github.com/noah-isme/autoeval-api/internal/utils"
)

// CorrectionHandler exposes the grading pipeline and correction management endpoints.
type CorrectionHandler struct {
	service service.CorrectionService
	logger  zerolog.Logger
}

// NewCorrectionHandler constructs a CorrectionHandler.
func NewCorrectionHandler(service service.CorrectionService, logger zerolog.Logger) *CorrectionHandler {
	return &CorrectionHandler{
		service: service,
		logger:  logger.With().Str("component", "correction_handler").Logger(),
	}
}

// Register mounts correction routes. staff guards generation and editing; generate
// throttles the inference-backed routes.
func (h *CorrectionHandler) Register(router fiber.Router, staff, generate fiber.Handler) {
	router.Post("/generateCorrection/:reponseId", staff, generate, h.generate)
	router.Post("/generateCorrections/:topicId", staff, generate, h.generateForTopic)
	router.Get("/downloadCorrectionPDF/:topicId", h.downloadPDF)
	router.Get("/getCorrectionsForStudent", h.listForStudent)

	corrections := router.Group("/corrections")
	corrections.Get("/", h.list)
	corrections.Get("/failures", staff, h.listFailures)
	corrections.Get("/:correctionId", h.get)
	corrections.Post("/:correctionId/regenerate", staff, generate, h.regenerate)
	corrections.Put("/:correctionId/score", staff, h.updateScore)
	corrections.Put("/:correctionId/feedback", staff, h.updateFeedback)
}

func (h *CorrectionHandler) generate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "reponseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	correction, err := h.service.Generate(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "correction generated", dto.CorrectionEnvelope{Correction: correction})
}

func (h *CorrectionHandler) generateForTopic(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "topicId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.GenerateForTopic(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "batch grading finished", result)
}

func (h *CorrectionHandler) regenerate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "correctionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	correction, err := h.service.Regenerate(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "correction regenerated", dto.CorrectionEnvelope{Correction: correction})
}

func (h *CorrectionHandler) updateScore(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "correctionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ScoreUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	correction, err := h.service.UpdateScore(c.UserContext(), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "score updated", correction)
}

func (h *CorrectionHandler) updateFeedback(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "correctionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.FeedbackUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	correction, err := h.service.UpdateFeedback(c.UserContext(), actorFromContext(c), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "feedback updated", correction)
}

func (h *CorrectionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "correctionId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	correction, err := h.service.Get(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "correction retrieved", correction)
}

func (h *CorrectionHandler) list(c *fiber.Ctx) error {
	filter := dto.CorrectionFilter{}
	var err error
	if filter.TopicID, err = parseQueryUint(c, "topic_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if filter.StudentID, err = parseQueryUint(c, "student_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if filter.SubmissionID, err = parseQueryUint(c, "submission_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter.IncludeSuperseded = c.QueryBool("include_superseded", false)

	corrections, err := h.service.List(c.UserContext(), actorFromContext(c), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "corrections retrieved", corrections)
}

func (h *CorrectionHandler) listForStudent(c *fiber.Ctx) error {
	corrections, err := h.service.ListForStudent(c.UserContext(), actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "corrections retrieved", corrections)
}

func (h *CorrectionHandler) listFailures(c *fiber.Ctx) error {
	filter := dto.CorrectionFailureFilter{Kind: c.Query("kind")}
	var err error
	if filter.TopicID, err = parseQueryUint(c, "topic_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if filter.SubmissionID, err = parseQueryUint(c, "submission_id"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	failures, err := h.service.ListFailures(c.UserContext(), actorFromContext(c), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "correction failures retrieved", failures)
}

func (h *CorrectionHandler) downloadPDF(c *fiber.Ctx) error {
	topicID, err := parseUintParam(c, "topicId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	index := 0
	if raw := c.Query("correctionIndex"); raw != "" {
		index, err = strconv.Atoi(raw)
		if err != nil || index < 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid correctionIndex")
		}
	}

	pdf, err := h.service.RenderPDF(c.UserContext(), actorFromContext(c), topicID, index)
	if err != nil {
		return h.handleError(c, err)
	}

	c.Attachment(pdf.FileName)
	c.Set(fiber.HeaderContentType, "application/pdf")
	return c.Send(pdf.Content)
}

func (h *CorrectionHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, *requestLogger(h.logger, c), err)
}
