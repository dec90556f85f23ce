package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"phFolio/internal/database"
	"phFolio/internal/storage"
)

const maxAssetUploadsPerDay = 100

// AssetHandler 负责处理图片资产的上传与访问。
// 上传的图片通过对象键引用嵌入作品集区块（hero 头图、项目配图等）。
type AssetHandler struct {
	db          *gorm.DB
	storage     *storage.Client
	redisClient *redis.Client
	logger      *slog.Logger
	clamdAddr   string
}

// NewAssetHandler 返回 AssetHandler 实例。
func NewAssetHandler(db *gorm.DB, storageClient *storage.Client, redisClient *redis.Client, logger *slog.Logger, clamdAddr string) *AssetHandler {
	return &AssetHandler{
		db:          db,
		storage:     storageClient,
		redisClient: redisClient,
		logger:      logger,
		clamdAddr:   clamdAddr,
	}
}

// UploadAsset 处理受保护的图片上传，上传前扫描病毒并检查每日限额。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}

	ctx := c.Request.Context()

	quotaKey := fmt.Sprintf("asset_quota:%d:%s", userID, time.Now().UTC().Format("2006-01-02"))
	count, err := incrWithTTL(ctx, h.redisClient, quotaKey, 24*time.Hour)
	if err != nil {
		Internal(c, "failed to check upload quota")
		return
	}
	if count > maxAssetUploadsPerDay {
		Error(c, http.StatusTooManyRequests, "upload quota exceeded")
		return
	}

	clamdClient := clamd.NewClamd(h.clamdAddr)

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	fileReader.Close()
	if err != nil {
		h.logger.Error("scan file", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	fileReader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	objectKey := fmt.Sprintf("user-assets/%d/%s.png", userID, uuid.NewString())
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := h.storage.UploadFile(ctx, objectKey, fileReader, file.Size, contentType); err != nil {
		h.logger.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	asset := database.Asset{UserID: userID, ObjectKey: objectKey}
	if err := h.db.WithContext(ctx).Create(&asset).Error; err != nil {
		h.logger.Error("record asset", slog.Any("error", err))
		Internal(c, "failed to record asset")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey})
}

// ListAssets 列出用户上传的资产及其临时预览链接。
func (h *AssetHandler) ListAssets(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limitStr := c.DefaultQuery("limit", "60")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	prefix := fmt.Sprintf("user-assets/%d/", userID)
	objects, err := h.storage.ListObjects(c.Request.Context(), prefix, limit)
	if err != nil {
		h.logger.Error("list assets", slog.Any("error", err))
		Internal(c, "failed to list assets")
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		url, err := h.storage.GeneratePresignedURL(c.Request.Context(), obj.Key, 10*time.Minute)
		if err != nil {
			h.logger.Error("generate asset url", slog.String("objectKey", obj.Key), slog.Any("error", err))
			continue
		}
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"previewUrl":   url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL 返回资产的临时预签名 URL。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}

	if !isValidUserAssetObjectKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(c.Request.Context(), objectKey, 15*time.Minute)
	if err != nil {
		h.logger.Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}
