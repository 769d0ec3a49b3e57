package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/katakuxiko/kbagent/internal/model"
)

func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindUnsupportedFormat:
		return fiber.StatusUnsupportedMediaType
	case model.KindParse:
		return fiber.StatusUnprocessableEntity
	case model.KindFetch, model.KindEmbedding:
		return fiber.StatusBadGateway
	case model.KindAuth:
		return fiber.StatusUnauthorized
	case model.KindRateLimit:
		return fiber.StatusTooManyRequests
	case model.KindNetwork:
		return fiber.StatusGatewayTimeout
	case model.KindNoDocuments:
		return fiber.StatusConflict
	case model.KindInvalidRequest:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// message strips the operation prefix so the UI shows the cause only.
// Internal errors are not described to the client.
func message(err error) string {
	var e *model.Error
	if !errors.As(err, &e) || e.Kind == model.KindInternal {
		return "internal error"
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func respondError(c *fiber.Ctx, err error) error {
	kind := model.KindOf(err)
	return c.Status(statusFor(kind)).JSON(fiber.Map{"error": message(err), "kind": kind})
}

// errorHandler renders errors escaping the handlers, such as an oversized
// body or an unknown route, in the same JSON shape.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message, "kind": model.KindInvalidRequest})
	}
	return respondError(c, err)
}
