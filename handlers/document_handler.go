package handlers

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"knowledge_backend/middleware"
	"knowledge_backend/models"
	"knowledge_backend/pkg/logging"
	"knowledge_backend/repository"
	"knowledge_backend/services"
)

const maxQueryTopK = 20

type KnowledgeHandler struct {
	knowledge *services.KnowledgeService
	retrieval *services.RetrievalService
}

func NewKnowledgeHandler(knowledge *services.KnowledgeService, retrieval *services.RetrievalService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge, retrieval: retrieval}
}

func (h *KnowledgeHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "File required")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open multipart file: %w", err)
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); byExt != "" {
			contentType = byExt
		}
	}

	var groupID *string
	if g := c.FormValue("group_id"); g != "" {
		groupID = &g
	}

	doc, err := h.knowledge.Upload(c.UserContext(), services.UploadInput{
		UserID:      middleware.UserID(c),
		GroupID:     groupID,
		Filename:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, doc)
}

func (h *KnowledgeHandler) List(c *fiber.Ctx) error {
	var filter repository.ListFilter
	if g := c.Query("group_id"); g != "" {
		filter.GroupID = &g
	}
	filter.Ungrouped = c.QueryBool("ungrouped", false)

	docs, err := h.knowledge.List(c.UserContext(), middleware.UserID(c), filter)
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []*models.KnowledgeDocument{}
	}
	return ok(c, fiber.StatusOK, docs)
}

func (h *KnowledgeHandler) Get(c *fiber.Ctx) error {
	doc, err := h.knowledge.Get(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, doc)
}

func (h *KnowledgeHandler) Download(c *fiber.Ctx) error {
	doc, rc, err := h.knowledge.OpenFile(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	if doc.MimeType != nil && *doc.MimeType != "" {
		c.Set(fiber.HeaderContentType, *doc.MimeType)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename*=UTF-8''%s`, url.PathEscape(doc.OriginalFilename)))
	return c.SendStream(rc, int(doc.FileSize))
}

func (h *KnowledgeHandler) UpdateGroup(c *fiber.Ctx) error {
	var req models.UpdateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request")
	}
	doc, err := h.knowledge.UpdateGroup(c.UserContext(), middleware.UserID(c), c.Params("id"), req.GroupID)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, doc)
}

func (h *KnowledgeHandler) Reingest(c *fiber.Ctx) error {
	doc, err := h.knowledge.Reingest(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusAccepted, doc)
}

func (h *KnowledgeHandler) Delete(c *fiber.Ctx) error {
	if err := h.knowledge.Delete(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *KnowledgeHandler) Query(c *fiber.Ctx) error {
	var req models.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request")
	}
	if err := validateQuestion(req.Question, &req.TopK); err != nil {
		return err
	}

	resp, err := h.retrieval.Query(c.UserContext(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, resp)
}

// ConversationStream answers over server-sent events. Once the stream has
// started, failures arrive as an error event instead of an HTTP status.
func (h *KnowledgeHandler) ConversationStream(c *fiber.Ctx) error {
	var req models.ConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request")
	}
	if err := validateQuestion(req.Question, &req.TopK); err != nil {
		return err
	}
	if req.MaxContextChars < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "max_context_chars must not be negative")
	}
	userID := middleware.UserID(c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for ev := range h.retrieval.Converse(ctx, userID, req) {
			frame, err := ev.SSE()
			if err != nil {
				logging.Logger.Error("fail ConversationStream encode", "error", err)
				continue
			}
			if _, err := w.Write(frame); err != nil {
				cancel()
				break
			}
			if err := w.Flush(); err != nil {
				logging.Logger.Info("conversation client disconnected", "user_id", userID)
				cancel()
				break
			}
		}
	})
	return nil
}

func validateQuestion(question string, topK *int) error {
	if strings.TrimSpace(question) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "question is required")
	}
	if *topK == 0 {
		*topK = repository.DefaultTopK
	}
	if *topK < 1 || *topK > maxQueryTopK {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", maxQueryTopK))
	}
	return nil
}
