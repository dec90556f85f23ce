package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username   string      `gorm:"uniqueIndex;size:64"`
	Portfolios []Portfolio `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// Portfolio 表示用户创建的作品集文档。
// Theme 与 Sections 以 JSONB 存储，读取时经由结构守卫校验。
// 主键使用 UUID 字符串：外部存储按文档 ID 寻址。
type Portfolio struct {
	ID           string         `gorm:"primaryKey;size:36"`
	OwnerID      uint           `gorm:"index"`
	Owner        User           `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	Title        string         `gorm:"size:255"`
	Theme        datatypes.JSON `gorm:"type:jsonb"`
	Sections     datatypes.JSON `gorm:"type:jsonb"`
	Template     string         `gorm:"size:64"`
	IsPublic     bool           `gorm:"default:false"`
	PublishedKey string         `gorm:"size:512"` // MinIO 中已发布快照的对象键
	Status       string         `gorm:"size:32"`  // 发布流水线状态
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// Asset 记录用户上传的图片资产，用于限额统计。
type Asset struct {
	gorm.Model
	UserID    uint   `gorm:"index"`
	ObjectKey string `gorm:"size:512;uniqueIndex"`
}
