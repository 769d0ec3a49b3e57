package api

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/katakuxiko/kbagent/internal/model"
	"github.com/katakuxiko/kbagent/internal/service"
)

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	generator service.Generator
	validate  *validator.Validate
	log       *zap.Logger
}

func NewHandler(generator service.Generator, log *zap.Logger) *Handler {
	return &Handler{generator: generator, validate: validator.New(), log: log}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (h *Handler) Index(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

// Session reports the documents, chunk count and conversation of the caller.
func (h *Handler) Session(c *fiber.Ctx) error {
	view, err := session(c).View(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *Handler) History(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"history": session(c).History()})
}

// ListModels proxies the provider's model list.
func (h *Handler) ListModels(c *fiber.Ctx) error {
	models, err := h.generator.ListModels(c.UserContext())
	if errors.Is(err, service.ErrListModelsUnsupported) {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"models": models})
}

// UploadDocuments ingests every file sent in the "file" form field. Files are
// processed independently and reported one by one.
func (h *Handler) UploadDocuments(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["file"]) == 0 {
		return respondError(c, model.E(model.KindInvalidRequest, "upload", errors.New("file is required (form field: file)")))
	}

	s := session(c)
	results := make([]model.IngestResult, 0, len(form.File["file"]))
	for _, fh := range form.File["file"] {
		name := filepath.Base(fh.Filename)
		f, err := fh.Open()
		if err != nil {
			h.log.Error("open upload", zap.String("file", name), zap.Error(err))
			results = append(results, model.IngestResult{Source: name, Status: model.IngestStatusFailed, Error: "failed to read upload", ErrorKind: model.KindInternal})
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.log.Error("read upload", zap.String("file", name), zap.Error(err))
			results = append(results, model.IngestResult{Source: name, Status: model.IngestStatusFailed, Error: "failed to read upload", ErrorKind: model.KindInternal})
			continue
		}
		results = append(results, s.IngestFile(c.UserContext(), name, data))
	}

	status := fiber.StatusOK
	if allFailed(results) {
		status = statusFor(results[0].ErrorKind)
	}
	return c.Status(status).JSON(fiber.Map{"results": results})
}

// AddURL ingests the text of one web page.
func (h *Handler) AddURL(c *fiber.Ctx) error {
	var req model.URLRequest
	if err := h.parse(c, &req); err != nil {
		return respondError(c, err)
	}
	res := session(c).IngestURL(c.UserContext(), req.URL)
	status := fiber.StatusOK
	if res.Status == model.IngestStatusFailed {
		status = statusFor(res.ErrorKind)
	}
	return c.Status(status).JSON(fiber.Map{"results": []model.IngestResult{res}})
}

// Ask answers a question from the caller's knowledge base.
func (h *Handler) Ask(c *fiber.Ctx) error {
	var req model.AskRequest
	if err := h.parse(c, &req); err != nil {
		return respondError(c, err)
	}
	resp, err := session(c).Ask(c.UserContext(), req.Question)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Reset empties the caller's knowledge base and conversation.
func (h *Handler) Reset(c *fiber.Ctx) error {
	if err := session(c).Reset(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) parse(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return model.E(model.KindInvalidRequest, "parse request", errors.New("invalid JSON body"))
	}
	if err := h.validate.Struct(dst); err != nil {
		return model.E(model.KindInvalidRequest, "validate request", err)
	}
	return nil
}

func allFailed(results []model.IngestResult) bool {
	for _, r := range results {
		if r.Status != model.IngestStatusFailed {
			return false
		}
	}
	return len(results) > 0
}
