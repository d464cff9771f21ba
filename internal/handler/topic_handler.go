package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/dto"
	"github.com/noah-isme/autoeval-api/internal/service"
	"github.com/noah-isme/autoeval-api/internal/utils"
)

// TopicHandler exposes topic endpoints.
type TopicHandler struct {
	service service.TopicService
	logger  zerolog.Logger
}

// NewTopicHandler constructs a TopicHandler.
func NewTopicHandler(service service.TopicService, logger zerolog.Logger) *TopicHandler {
	return &TopicHandler{
		service: service,
		logger:  logger.With().Str("component", "topic_handler").Logger(),
	}
}

// Register mounts topic routes. staff restricts authoring routes to teachers and admins.
func (h *TopicHandler) Register(router fiber.Router, staff fiber.Handler) {
	router.Post("/createTopic", staff, h.create)
	router.Get("/getTopics", h.list)
	router.Get("/topics/:topicId", h.get)
	router.Post("/topics/:topicId/publish", staff, h.publish)
}

func (h *TopicHandler) create(c *fiber.Ctx) error {
	var payload dto.TopicCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	// The reference correction is optional; JSON bodies never carry one.
	reference, err := c.FormFile("reference")
	if err != nil {
		reference = nil
	}

	topic, err := h.service.Create(c.UserContext(), actorFromContext(c), payload, reference)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "topic created", topic)
}

func (h *TopicHandler) list(c *fiber.Ctx) error {
	filter := dto.TopicFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Sort:   c.Query("sort"),
	}
	teacherID, err := parseQueryUint(c, "teacher_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter.TeacherID = teacherID
	if filter.Page, err = parseQueryInt(c, "page"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if filter.PageSize, err = parseQueryInt(c, "page_size"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	topics, meta, err := h.service.List(c.UserContext(), actorFromContext(c), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, topics, "topics retrieved", meta)
}

func (h *TopicHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "topicId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	topic, err := h.service.Get(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "topic retrieved", topic)
}

func (h *TopicHandler) publish(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "topicId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	topic, err := h.service.Publish(c.UserContext(), actorFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "topic published", topic)
}

func (h *TopicHandler) handleError(c *fiber.Ctx, err error) error {
	return respondError(c, *requestLogger(h.logger, c), err)
}
