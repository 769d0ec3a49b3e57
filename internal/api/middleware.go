package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/katakuxiko/kbagent/internal/service"
)

const (
	sessionCookie = "kb_session"
	sessionKey    = "session"
)

// SessionMiddleware binds the request to the caller's session, issuing a new
// session cookie when the browser has none or its session expired.
func SessionMiddleware(sessions *service.Sessions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// only ids this server issued and still holds are honored
		s, ok := sessions.Get(c.Cookies(sessionCookie))
		if !ok {
			s, _ = sessions.GetOrCreate(uuid.NewString())
			c.Cookie(&fiber.Cookie{
				Name:     sessionCookie,
				Value:    s.ID,
				Path:     "/",
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		c.Locals(sessionKey, s)
		return c.Next()
	}
}

func session(c *fiber.Ctx) *service.Session {
	return c.Locals(sessionKey).(*service.Session)
}

// RequestLogger writes one line per request.
func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// let the error handler set the status before it is logged
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		if s, ok := c.Locals(sessionKey).(*service.Session); ok {
			fields = append(fields, zap.String("session", s.ID))
		}
		switch {
		case c.Response().StatusCode() >= fiber.StatusInternalServerError:
			log.Error("request", fields...)
		case c.Response().StatusCode() >= fiber.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
		return nil
	}
}
