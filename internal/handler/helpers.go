package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autoeval-api/internal/middleware"
	"github.com/noah-isme/autoeval-api/internal/service"
	"github.com/noah-isme/autoeval-api/internal/utils"
	"github.com/noah-isme/autoeval-api/pkg/ai"
	"github.com/noah-isme/autoeval-api/pkg/extract"
	"github.com/noah-isme/autoeval-api/pkg/filecodec"
)

func actorFromContext(c *fiber.Ctx) service.Actor {
	actor := service.Actor{}
	if id, ok := c.Locals(middleware.LocalUserID).(uint); ok {
		actor.ID = id
	}
	if role, ok := c.Locals(middleware.LocalUserRole).(string); ok {
		actor.Role = role
	}
	return actor
}

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	result := uint(parsed)
	return &result, nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return parsed, nil
}

// parseFormUint reads an optional numeric form field; a missing field yields zero.
func parseFormUint(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(err validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(err))
	for _, fieldErr := range err {
		field := strings.ToLower(fieldErr.Field())
		if fieldErr.Param() != "" {
			details[field] = fieldErr.Tag() + "=" + fieldErr.Param()
			continue
		}
		details[field] = fieldErr.Tag()
	}
	return details
}

// respondError maps domain errors onto HTTP statuses. Unknown errors are logged and
// reported as 500 without leaking their text.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case errors.Is(err, service.ErrInvalidDeadline),
		errors.Is(err, service.ErrStudentRequired),
		errors.Is(err, service.ErrFileRequired),
		errors.Is(err, service.ErrEmptyFeedback):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrTopicNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrCorrectionNotFound),
		errors.Is(err, service.ErrStoredFileNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrTopicTitleTaken),
		errors.Is(err, service.ErrDuplicateCorrection),
		errors.Is(err, service.ErrCorrectionConflict):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUploadTypeNotAllowed):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrTopicNotPublished),
		errors.Is(err, service.ErrTopicClosed),
		errors.Is(err, ai.ErrInvalidScore),
		errors.Is(err, ai.ErrMalformedResponse),
		errors.Is(err, ai.ErrEmptySubmission),
		errors.Is(err, extract.ErrExtraction),
		errors.Is(err, extract.ErrUnsupportedFormat):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ai.ErrInferenceUnavailable):
		logger.Warn().Err(err).Msg("inference unavailable")
		return utils.SendError(c, fiber.StatusBadGateway, ai.ErrInferenceUnavailable.Error())
	case errors.Is(err, ai.ErrInferenceTimeout):
		logger.Warn().Err(err).Msg("inference timed out")
		return utils.SendError(c, fiber.StatusGatewayTimeout, ai.ErrInferenceTimeout.Error())
	case errors.Is(err, filecodec.ErrDecryption),
		errors.Is(err, filecodec.ErrCryptoConfig),
		errors.Is(err, filecodec.ErrIO):
		logger.Error().Err(err).Msg("stored file unavailable")
		return utils.SendError(c, fiber.StatusInternalServerError, "stored file could not be read")
	default:
		logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
