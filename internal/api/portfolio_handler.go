package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"phFolio/internal/api/middleware"
	"phFolio/internal/editor"
	"phFolio/internal/portfolio"
	"phFolio/internal/repository"
	"phFolio/internal/storage"
	"phFolio/internal/tasks"
)

// PortfolioHandler 负责处理作品集文档与编辑会话相关的 API 请求。
type PortfolioHandler struct {
	repo             *repository.PortfolioRepository
	sessions         *editor.Sessions
	storage          *storage.Client
	asynqClient      *asynq.Client
	redisClient      *redis.Client
	maxPortfolios    int
	maxPublishPerDay int
}

// NewPortfolioHandler 构造 PortfolioHandler。
func NewPortfolioHandler(
	repo *repository.PortfolioRepository,
	sessions *editor.Sessions,
	storageClient *storage.Client,
	asynqClient *asynq.Client,
	redisClient *redis.Client,
	maxPortfolios int,
	maxPublishPerDay int,
) *PortfolioHandler {
	return &PortfolioHandler{
		repo:             repo,
		sessions:         sessions,
		storage:          storageClient,
		asynqClient:      asynqClient,
		redisClient:      redisClient,
		maxPortfolios:    maxPortfolios,
		maxPublishPerDay: maxPublishPerDay,
	}
}

type createPortfolioRequest struct {
	Title string `json:"title"`
}

type portfolioListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Template  string    `json:"template"`
	Public    bool      `json:"public"`
	UpdatedAt time.Time `json:"updated_at"`
}

type portfolioResponse struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Theme     portfolio.Theme     `json:"theme"`
	Sections  []portfolio.Section `json:"sections"`
	Template  string              `json:"template"`
	Public    bool                `json:"public"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func newPortfolioResponse(doc *portfolio.Document) portfolioResponse {
	sections := doc.Sections
	if sections == nil {
		sections = []portfolio.Section{}
	}
	return portfolioResponse{
		ID:        doc.ID,
		Title:     doc.Title,
		Theme:     doc.Theme,
		Sections:  sections,
		Template:  doc.Template,
		Public:    doc.Public,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// CreatePortfolio 新建一份作品集文档，超过限额则提示升级。
func (h *PortfolioHandler) CreatePortfolio(c *gin.Context) {
	var req createPortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()

	count, err := h.repo.CountByOwner(ctx, userID)
	if err != nil {
		Internal(c, "failed to count portfolios")
		return
	}
	if h.maxPortfolios > 0 && count >= int64(h.maxPortfolios) {
		Forbidden(c, "portfolio limit reached")
		return
	}

	doc := portfolio.NewDocument(userID)
	if req.Title != "" {
		doc.Title = req.Title
	}
	if err := h.repo.Create(ctx, doc); err != nil {
		Internal(c, "failed to create portfolio")
		return
	}

	c.JSON(http.StatusCreated, newPortfolioResponse(doc))
}

// ListPortfolios 列出用户全部作品集。
func (h *PortfolioHandler) ListPortfolios(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	docs, err := h.repo.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		Internal(c, "failed to list portfolios")
		return
	}

	items := make([]portfolioListItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, portfolioListItem{
			ID:        doc.ID,
			Title:     doc.Title,
			Template:  doc.Template,
			Public:    doc.Public,
			UpdatedAt: doc.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, items)
}

// GetPortfolio 返回指定 ID 的作品集文档。
// 若该文档已有打开的编辑会话，返回会话中的工作副本而非落库快照。
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return
	}

	if sess, open := h.sessions.Get(doc.ID); open {
		working := sess.Store.Document()
		working.Public = doc.Public
		c.JSON(http.StatusOK, newPortfolioResponse(working))
		return
	}

	c.JSON(http.StatusOK, newPortfolioResponse(doc))
}

// DeletePortfolio 删除文档：丢弃存活的编辑会话（不写出未保存编辑），
// 清理已发布的静态快照，最后删除落库记录。
func (h *PortfolioHandler) DeletePortfolio(c *gin.Context) {
	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	h.sessions.Discard(doc.ID)

	if h.storage != nil {
		if err := h.storage.DeletePrefix(ctx, fmt.Sprintf("published/%s/", doc.ID)); err != nil {
			middleware.LoggerFromContext(c).Warn("delete published snapshot failed",
				slog.String("portfolio_id", doc.ID),
				slog.Any("error", err),
			)
		}
	}

	if err := h.repo.Delete(ctx, doc.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "portfolio not found")
			return
		}
		Internal(c, "failed to delete portfolio")
		return
	}

	c.Status(http.StatusNoContent)
}

// OpenSession 打开（或复用）文档的编辑会话，返回工作副本与保存状态。
func (h *PortfolioHandler) OpenSession(c *gin.Context) {
	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Open(c.Request.Context(), doc.ID)
	if err != nil {
		Internal(c, "failed to open session")
		return
	}

	working := sess.Store.Document()
	working.Public = doc.Public
	c.JSON(http.StatusOK, gin.H{
		"portfolio":   newPortfolioResponse(working),
		"sync_status": sess.Syncer.Status(),
	})
}

// CloseSession 关闭编辑会话：写出未保存的编辑后停止同步引擎。
func (h *PortfolioHandler) CloseSession(c *gin.Context) {
	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return
	}

	h.sessions.Close(doc.ID)
	c.Status(http.StatusNoContent)
}

// GetSessionStatus 返回同步引擎当前的保存状态。
func (h *PortfolioHandler) GetSessionStatus(c *gin.Context) {
	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return
	}

	sess, open := h.sessions.Get(doc.ID)
	if !open {
		Conflict(c, "session not open")
		return
	}

	c.JSON(http.StatusOK, gin.H{"sync_status": sess.Syncer.Status()})
}

type updateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateTitle 经由编辑会话更新标题，触发防抖自动保存。
func (h *PortfolioHandler) UpdateTitle(c *gin.Context) {
	var req updateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	sess, ok := h.sessionForOwner(c)
	if !ok {
		return
	}

	sess.Store.SetTitle(req.Title)
	c.JSON(http.StatusOK, gin.H{"sync_status": sess.Syncer.Status()})
}

// UpdateTheme 将主题补丁合并进工作副本，未出现的字段保持不变。
func (h *PortfolioHandler) UpdateTheme(c *gin.Context) {
	var patch portfolio.ThemePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, err.Error())
		return
	}

	sess, ok := h.sessionForOwner(c)
	if !ok {
		return
	}

	sess.Store.SetTheme(patch)
	c.JSON(http.StatusOK, gin.H{"sync_status": sess.Syncer.Status()})
}

type updateTemplateRequest struct {
	Template string `json:"template" binding:"required"`
}

// UpdateTemplate 更新模板选择。未注册的模板 ID 也会被接受，
// 渲染时回落到默认模板。
func (h *PortfolioHandler) UpdateTemplate(c *gin.Context) {
	var req updateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	sess, ok := h.sessionForOwner(c)
	if !ok {
		return
	}

	sess.Store.SetTemplate(req.Template)
	c.JSON(http.StatusOK, gin.H{"sync_status": sess.Syncer.Status()})
}

type addSectionRequest struct {
	Type      portfolio.SectionType `json:"type" binding:"required"`
	Data      json.RawMessage       `json:"data"`
	Animation json.RawMessage       `json:"animation"`
}

// AddSection 追加一个区块。载荷只要求是合法 JSON：
// 结构不符的载荷会被保留，仅在提取/渲染时被忽略。
func (h *PortfolioHandler) AddSection(c *gin.Context) {
	var req addSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !portfolio.KnownSectionType(req.Type) {
		BadRequest(c, "unknown section type")
		return
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage(`{}`)
	}
	if !json.Valid(req.Data) {
		BadRequest(c, "section data is not valid json")
		return
	}

	sess, ok := h.sessionForOwner(c)
	if !ok {
		return
	}

	sec := portfolio.Section{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Data:      req.Data,
		Animation: req.Animation,
	}
	sess.Store.AddSection(sec)

	c.JSON(http.StatusCreated, gin.H{
		"section":     sec,
		"sync_status": sess.Syncer.Status(),
	})
}

// UpdateSection 将补丁合并进匹配的区块；区块不存在时静默成功。
func (h *PortfolioHandler) UpdateSection(c *gin.Context) {
	var patch portfolio.SectionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if patch.Data != nil && !json.Valid(patch.Data) {
		BadRequest(c, "section data is not valid json")
		return
	}

	sess, ok := h.sessionForOwner(c)
	if !ok {
		return
	}

	sess.Store.UpdateSection(c.Param("sectionID"), patch)
	c.JSON(http.StatusOK, gin.H{"sync_status": sess.Syncer.Status()})
}

// RemoveSection 删除匹配的区块；区块不存在时静默成功。
func (h *PortfolioHandler) RemoveSection(c *gin.Context) {
	sess, ok := h.sessionForOwner(c)
	if !ok {
		return
	}

	sess.Store.RemoveSection(c.Param("sectionID"))
	c.JSON(http.StatusOK, gin.H{"sync_status": sess.Syncer.Status()})
}

// PublishPortfolio 将文档标记为公开，并把静态快照生成任务入队。
// 每用户每日发布次数有限额。
func (h *PortfolioHandler) PublishPortfolio(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if h.maxPublishPerDay > 0 {
		key := fmt.Sprintf("publish_quota:%d:%s", userID, time.Now().UTC().Format("2006-01-02"))
		count, err := incrWithTTL(ctx, h.redisClient, key, 24*time.Hour)
		if err != nil {
			Internal(c, "failed to check publish quota")
			return
		}
		if count > int64(h.maxPublishPerDay) {
			Error(c, http.StatusTooManyRequests, "publish quota exceeded")
			return
		}
	}

	// 发布前把未保存的编辑写出，保证快照基于最新内容
	if sess, open := h.sessions.Get(doc.ID); open {
		sess.Syncer.Flush()
	}

	if err := h.repo.SetVisibility(ctx, doc.ID, true); err != nil {
		Internal(c, "failed to publish portfolio")
		return
	}

	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewPublishSnapshotTask(doc.ID, correlationID)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	info, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5))
	if err != nil {
		Internal(c, "failed to enqueue snapshot generation")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "snapshot generation request accepted",
		"task_id": info.ID,
	})
}

// UnpublishPortfolio 撤下文档的公开访问并清理静态快照。
func (h *PortfolioHandler) UnpublishPortfolio(c *gin.Context) {
	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.repo.SetVisibility(ctx, doc.ID, false); err != nil {
		Internal(c, "failed to unpublish portfolio")
		return
	}

	if h.storage != nil {
		if err := h.storage.DeletePrefix(ctx, fmt.Sprintf("published/%s/", doc.ID)); err != nil {
			middleware.LoggerFromContext(c).Warn("delete published snapshot failed",
				slog.String("portfolio_id", doc.ID),
				slog.Any("error", err),
			)
		}
	}

	c.Status(http.StatusNoContent)
}

// portfolioForOwner 载入路径参数指定的文档并校验所有权。
// 校验失败时已写出响应，调用方直接返回即可。
func (h *PortfolioHandler) portfolioForOwner(c *gin.Context) (*portfolio.Document, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	doc, err := h.repo.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "portfolio not found")
			return nil, false
		}
		Internal(c, "failed to query portfolio")
		return nil, false
	}
	if doc.OwnerID != userID {
		NotFound(c, "portfolio not found")
		return nil, false
	}
	return doc, true
}

// sessionForOwner 返回文档已打开的编辑会话；未打开会话的编辑请求
// 返回 409，提示客户端先建立会话。
func (h *PortfolioHandler) sessionForOwner(c *gin.Context) (*editor.Session, bool) {
	doc, ok := h.portfolioForOwner(c)
	if !ok {
		return nil, false
	}

	sess, open := h.sessions.Get(doc.ID)
	if !open {
		Conflict(c, "session not open")
		return nil, false
	}
	return sess, true
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}
