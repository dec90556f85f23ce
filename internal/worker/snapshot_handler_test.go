package worker

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"phFolio/internal/database"
	"phFolio/internal/render"
	"phFolio/internal/repository"
	"phFolio/internal/tasks"
)

func newTestHandler(t *testing.T) (*SnapshotTaskHandler, *miniredis.Miniredis) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.Portfolio{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	repo := repository.NewPortfolioRepository(db)
	handler := NewSnapshotTaskHandler(repo, render.NewRegistry(), nil, redisClient, slog.Default(), "https://folio.example.com")
	return handler, mr
}

func TestProcessTask_SkipsMissingPortfolio(t *testing.T) {
	handler, _ := newTestHandler(t)

	task, err := tasks.NewPublishSnapshotTask("no-such-id", "corr-1")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}

	// 文档已被删除的任务直接完成，不进入重试
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Errorf("ProcessTask = %v, want nil", err)
	}
}

func TestProcessTask_RejectsMalformedPayload(t *testing.T) {
	handler, _ := newTestHandler(t)

	task := asynq.NewTask(tasks.TypePublishSnapshot, []byte("not json"))
	if err := handler.ProcessTask(context.Background(), task); err == nil {
		t.Errorf("ProcessTask = nil, want error")
	}
}
