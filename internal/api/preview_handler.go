package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"phFolio/internal/editor"
	"phFolio/internal/portfolio"
	"phFolio/internal/render"
	"phFolio/internal/repository"
)

// PreviewHandler 负责作品集的 HTML 渲染：编辑器内的实时预览，
// 以及已发布文档的公开页面。
type PreviewHandler struct {
	repo     *repository.PortfolioRepository
	sessions *editor.Sessions
	registry *render.Registry
	logger   *slog.Logger
}

// NewPreviewHandler 构造 PreviewHandler。
func NewPreviewHandler(
	repo *repository.PortfolioRepository,
	sessions *editor.Sessions,
	registry *render.Registry,
	logger *slog.Logger,
) *PreviewHandler {
	return &PreviewHandler{
		repo:     repo,
		sessions: sessions,
		registry: registry,
		logger:   logger,
	}
}

// ListTemplates 返回可用的模板 ID 列表。
func (h *PreviewHandler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"templates": h.registry.IDs(),
		"default":   portfolio.DefaultTemplate,
	})
}

// Preview 渲染文档的编辑预览页。优先使用编辑会话中的工作副本，
// 让未保存的编辑立即可见；?template= 可临时覆盖模板选择。
func (h *PreviewHandler) Preview(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	documentID := c.Param("id")

	var doc *portfolio.Document
	if sess, open := h.sessions.Get(documentID); open {
		doc = sess.Store.Document()
	} else {
		loaded, err := h.repo.Load(c.Request.Context(), documentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				NotFound(c, "portfolio not found")
				return
			}
			Internal(c, "failed to query portfolio")
			return
		}
		doc = loaded
	}
	if doc.OwnerID != userID {
		NotFound(c, "portfolio not found")
		return
	}

	if override := c.Query("template"); override != "" {
		doc.Template = override
	}

	h.renderPage(c, doc, render.Options{ShowHeader: true})
}

// PublicPage 渲染已发布文档的公开页面，无需鉴权。
// 未公开或不存在的文档一律返回 404，不泄漏存在性。
func (h *PreviewHandler) PublicPage(c *gin.Context) {
	doc, err := h.repo.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "page not found")
			return
		}
		Internal(c, "failed to query portfolio")
		return
	}
	if !doc.Public {
		NotFound(c, "page not found")
		return
	}

	h.renderPage(c, doc, render.Options{})
}

func (h *PreviewHandler) renderPage(c *gin.Context, doc *portfolio.Document, opts render.Options) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.registry.RenderDocument(c.Writer, doc, opts); err != nil {
		h.logger.Error("render portfolio failed",
			slog.String("portfolio_id", doc.ID),
			slog.String("template", doc.Template),
			slog.Any("error", err),
		)
	}
}
