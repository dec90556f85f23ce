package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"phFolio/internal/errcode"
	"phFolio/internal/render"
	"phFolio/internal/repository"
	"phFolio/internal/storage"
	"phFolio/internal/tasks"
)

// SnapshotTaskHandler 负责消费发布任务：把作品集渲染成静态 HTML
// 快照并上传到对象存储。
type SnapshotTaskHandler struct {
	repo          *repository.PortfolioRepository
	registry      *render.Registry
	storage       *storage.Client
	redisClient   *redis.Client
	logger        *slog.Logger
	publicBaseURL string
}

// NewSnapshotTaskHandler 创建任务处理器。
func NewSnapshotTaskHandler(
	repo *repository.PortfolioRepository,
	registry *render.Registry,
	storageClient *storage.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
	publicBaseURL string,
) *SnapshotTaskHandler {
	return &SnapshotTaskHandler{
		repo:          repo,
		registry:      registry,
		storage:       storageClient,
		redisClient:   redisClient,
		logger:        logger,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *SnapshotTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.PublishSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("portfolio_id", payload.PortfolioID),
	)
	log.Info("starting portfolio snapshot publish task")

	doc, err := h.repo.Load(ctx, payload.PortfolioID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("portfolio not found, skipping task")
			return nil
		}
		log.Error("load portfolio failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.Uint64("owner_id", uint64(doc.OwnerID)))

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		notify := PublishNotifyMessage{
			Status:        "error",
			PortfolioID:   doc.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishNotify(ctx, doc.OwnerID, notify); err != nil {
			log.Error("publish error notification failed", slog.Any("error", err))
		}
	}()

	var buf bytes.Buffer
	if err := h.registry.RenderDocument(&buf, doc, render.Options{}); err != nil {
		log.Error("render portfolio snapshot failed", slog.Any("error", err))
		return err
	}

	objectKey := fmt.Sprintf("published/%s/index.html", doc.ID)
	reader := bytes.NewReader(buf.Bytes())
	if _, err := h.storage.UploadFile(ctx, objectKey, reader, int64(buf.Len()), "text/html; charset=utf-8"); err != nil {
		log.Error("upload snapshot to storage failed", slog.Any("error", err))
		return err
	}

	if err := h.repo.MarkPublished(ctx, doc.ID, objectKey); err != nil {
		log.Error("mark portfolio published failed", slog.Any("error", err))
		return err
	}

	notify := PublishNotifyMessage{
		Status:        "completed",
		PortfolioID:   doc.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
		PublicURL:     fmt.Sprintf("%s/p/%s", h.publicBaseURL, doc.ID),
	}
	if err := h.publishNotify(ctx, doc.OwnerID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("portfolio snapshot publish task completed")
	return nil
}

func (h *SnapshotTaskHandler) publishNotify(ctx context.Context, userID uint, notify PublishNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
