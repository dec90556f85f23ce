package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"phFolio/internal/api/middleware"
	"phFolio/internal/auth"
	"phFolio/internal/config"
	"phFolio/internal/editor"
	"phFolio/internal/render"
	"phFolio/internal/repository"
	"phFolio/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	repo *repository.PortfolioRepository,
	sessions *editor.Sessions,
	registry *render.Registry,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
	clamdAddr string,
) {
	portfolioHandler := NewPortfolioHandler(
		repo,
		sessions,
		storageClient,
		asynqClient,
		redisClient,
		cfg.API.MaxPortfolios,
		cfg.Publish.MaxPerDay,
	)
	previewHandler := NewPreviewHandler(repo, sessions, registry, logger)
	assetHandler := NewAssetHandler(db, storageClient, redisClient, logger, clamdAddr)
	wsHandler := NewWsHandler(redisClient, authService, logger, nil)
	authMiddleware := middleware.AuthMiddleware(authService)

	// 公开页面不挂版本前缀，短链接直接分享
	router.GET("/p/:id", previewHandler.PublicPage)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)
		v1.GET("/templates", previewHandler.ListTemplates)

		portfolioGroup := v1.Group("/portfolios")
		portfolioGroup.Use(authMiddleware)
		{
			portfolioGroup.POST("", portfolioHandler.CreatePortfolio)
			portfolioGroup.GET("", portfolioHandler.ListPortfolios)
			portfolioGroup.GET("/:id", portfolioHandler.GetPortfolio)
			portfolioGroup.DELETE("/:id", portfolioHandler.DeletePortfolio)
			portfolioGroup.GET("/:id/preview", previewHandler.Preview)

			portfolioGroup.POST("/:id/session", portfolioHandler.OpenSession)
			portfolioGroup.DELETE("/:id/session", portfolioHandler.CloseSession)
			portfolioGroup.GET("/:id/session/status", portfolioHandler.GetSessionStatus)

			portfolioGroup.PATCH("/:id/title", portfolioHandler.UpdateTitle)
			portfolioGroup.PATCH("/:id/theme", portfolioHandler.UpdateTheme)
			portfolioGroup.PATCH("/:id/template", portfolioHandler.UpdateTemplate)

			portfolioGroup.POST("/:id/sections", portfolioHandler.AddSection)
			portfolioGroup.PATCH("/:id/sections/:sectionID", portfolioHandler.UpdateSection)
			portfolioGroup.DELETE("/:id/sections/:sectionID", portfolioHandler.RemoveSection)

			portfolioGroup.POST("/:id/publish", portfolioHandler.PublishPortfolio)
			portfolioGroup.DELETE("/:id/publish", portfolioHandler.UnpublishPortfolio)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
		}
	}
}
