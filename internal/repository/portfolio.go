// Package repository 实现同步引擎依赖的持久化协作方：
// 按文档 ID 寻址的保存/载入/删除/可见性操作，后写覆盖（last-write-wins）。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"phFolio/internal/database"
	"phFolio/internal/portfolio"
)

// ErrNotFound 表示指定 ID 的文档不存在。
var ErrNotFound = errors.New("portfolio not found")

// PortfolioRepository 是基于 GORM 的文档存储实现。
type PortfolioRepository struct {
	db *gorm.DB
}

// NewPortfolioRepository 构造仓库实例。
func NewPortfolioRepository(db *gorm.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// Create 插入一份新文档。
func (r *PortfolioRepository) Create(ctx context.Context, doc *portfolio.Document) error {
	model, err := toModel(doc)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("create portfolio: %w", err)
	}
	return nil
}

// Load 按 ID 读取整份文档。
func (r *PortfolioRepository) Load(ctx context.Context, documentID string) (*portfolio.Document, error) {
	var model database.Portfolio
	if err := r.db.WithContext(ctx).First(&model, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	return fromModel(&model)
}

// Save 用快照覆盖文档的编辑面（标题、主题、区块、模板）。
// 这是同步引擎的唯一写入口。
func (r *PortfolioRepository) Save(ctx context.Context, documentID string, snap portfolio.Snapshot) error {
	themeJSON, err := json.Marshal(snap.Theme)
	if err != nil {
		return fmt.Errorf("marshal theme: %w", err)
	}
	sectionsJSON, err := json.Marshal(snap.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}

	result := r.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"title":    snap.Title,
			"theme":    datatypes.JSON(themeJSON),
			"sections": datatypes.JSON(sectionsJSON),
			"template": snap.Template,
		})
	if result.Error != nil {
		return fmt.Errorf("save portfolio: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除文档。显式删除绕过同步引擎，直接作用于存储。
func (r *PortfolioRepository) Delete(ctx context.Context, documentID string) error {
	result := r.db.WithContext(ctx).Delete(&database.Portfolio{}, "id = ?", documentID)
	if result.Error != nil {
		return fmt.Errorf("delete portfolio: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVisibility 更新文档的公开状态，仅限所有者调用（由 API 层校验）。
func (r *PortfolioRepository) SetVisibility(ctx context.Context, documentID string, public bool) error {
	result := r.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("id = ?", documentID).
		Update("is_public", public)
	if result.Error != nil {
		return fmt.Errorf("set visibility: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByOwner 统计用户名下的文档数量，用于限额检查。
func (r *PortfolioRepository) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count portfolios: %w", err)
	}
	return count, nil
}

// MarkPublished 记录已发布快照的对象键并更新发布状态。
func (r *PortfolioRepository) MarkPublished(ctx context.Context, documentID string, objectKey string) error {
	result := r.db.WithContext(ctx).
		Model(&database.Portfolio{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"published_key": objectKey,
			"status":        "published",
		})
	if result.Error != nil {
		return fmt.Errorf("mark published: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner 按更新时间倒序列出用户的全部文档。
func (r *PortfolioRepository) ListByOwner(ctx context.Context, ownerID uint) ([]*portfolio.Document, error) {
	var models []database.Portfolio
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}

	docs := make([]*portfolio.Document, 0, len(models))
	for i := range models {
		doc, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func toModel(doc *portfolio.Document) (*database.Portfolio, error) {
	themeJSON, err := json.Marshal(doc.Theme)
	if err != nil {
		return nil, fmt.Errorf("marshal theme: %w", err)
	}
	sections := doc.Sections
	if sections == nil {
		sections = []portfolio.Section{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("marshal sections: %w", err)
	}
	return &database.Portfolio{
		ID:       doc.ID,
		OwnerID:  doc.OwnerID,
		Title:    doc.Title,
		Theme:    datatypes.JSON(themeJSON),
		Sections: datatypes.JSON(sectionsJSON),
		Template: doc.Template,
		IsPublic: doc.Public,
	}, nil
}

func fromModel(model *database.Portfolio) (*portfolio.Document, error) {
	doc := &portfolio.Document{
		ID:        model.ID,
		OwnerID:   model.OwnerID,
		Title:     model.Title,
		Theme:     portfolio.DefaultTheme(),
		Sections:  []portfolio.Section{},
		Template:  model.Template,
		Public:    model.IsPublic,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if doc.Template == "" {
		doc.Template = portfolio.DefaultTemplate
	}
	// 外部存储无 schema：解码失败按空值处理，不向上传播
	if len(model.Theme) > 0 {
		_ = json.Unmarshal(model.Theme, &doc.Theme)
	}
	if len(model.Sections) > 0 {
		_ = json.Unmarshal(model.Sections, &doc.Sections)
	}
	if doc.Sections == nil {
		doc.Sections = []portfolio.Section{}
	}
	return doc, nil
}
