package handler

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/service"
	"github.com/noah-isme/autoeval-api/internal/utils"
)

// SubmissionHandler manages submission ("reponse") endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the API routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/createReponse", h.create)
	router.Get("/getReponse", h.list)
	router.Get("/reponses/:reponseId", h.get)
}

// RegisterUploads serves the decrypted uploads under router.
func (h *SubmissionHandler) RegisterUploads(router fiber.Router) {
	router.Get("/:filename", h.download)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	topicID, err := parseFormUint(c, "title")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseFormUint(c, "student")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	submission, err := h.service.Create(c.UserContext(), actorFromContext(c), dto.SubmissionCreateRequest{
		TopicID:   topicID,
		StudentID: studentID,
	}, file)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission created", submission)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter := dto.SubmissionFilter{}
	topicID, err := parseQueryUint(c, "topic_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter.TopicID = topicID
	filter.StudentID = studentID

	submissions, err := h.service.List(c.UserContext(), actorFromContext(c), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "reponseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) download(c *fiber.Ctx) error {
	file, err := h.service.OpenFile(c.UserContext(), actorFromContext(c), c.Params("filename"))
	if err != nil {
		return h.handleError(c, err)
	}
	defer file.Release()

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return h.handleError(c, err)
	}

	c.Attachment(file.DownloadName)
	if file.MimeType != "" {
		c.Set(fiber.HeaderContentType, file.MimeType)
	}
	c.Set(fiber.HeaderCacheControl, "private, no-store")

	return c.Send(data)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, *requestLogger(h.logger, c), err)
}
