package portfolio

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SectionType 标识区块的内容类型。
type SectionType string

const (
	SectionHero       SectionType = "hero"
	SectionAbout      SectionType = "about"
	SectionProjects   SectionType = "projects"
	SectionExperience SectionType = "experience"
	SectionSkills     SectionType = "skills"
)

// KnownSectionType 报告给定类型是否为已定义的区块类型。
func KnownSectionType(t SectionType) bool {
	switch t {
	case SectionHero, SectionAbout, SectionProjects, SectionExperience, SectionSkills:
		return true
	default:
		return false
	}
}

// Section 表示作品集文档中的一个有类型的内容区块。
// ID 在创建后不再变化；Data 来自无 schema 的外部存储，
// 读取前必须先通过对应类型的结构守卫（见 guards.go）。
type Section struct {
	ID        string          `json:"id"`
	Type      SectionType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Animation json.RawMessage `json:"animation,omitempty"`
}

// SectionPatch 描述对区块的局部更新；nil 字段保持原值。
type SectionPatch struct {
	Data      json.RawMessage `json:"data,omitempty"`
	Animation json.RawMessage `json:"animation,omitempty"`
}

// HeroData 是 hero 区块的负载，全部字段可选。
type HeroData struct {
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	CTAText     string `json:"ctaText,omitempty"`
	CTALink     string `json:"ctaLink,omitempty"`
}

// AboutData 是 about 区块的负载，全部字段可选。
type AboutData struct {
	Bio      string `json:"bio,omitempty"`
	Email    string `json:"email,omitempty"`
	Location string `json:"location,omitempty"`
	Website  string `json:"website,omitempty"`
}

// Project 表示 projects 区块中的一条作品。
type Project struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Link        string `json:"link,omitempty"`
}

// ProjectsData 的锚点字段是 projects 数组。
type ProjectsData struct {
	Projects []Project `json:"projects"`
}

// Experience 表示 experience 区块中的一段经历。
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company,omitempty"`
	Period      string `json:"period,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExperienceData 的锚点字段是 experiences 数组。
type ExperienceData struct {
	Experiences []Experience `json:"experiences"`
}

// SkillsData 的锚点字段是 skills 数组。
type SkillsData struct {
	Skills []string `json:"skills"`
}

// Theme 描述页面的全局配色，纯展示用途，随文档一起持久化。
type Theme struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Background string `json:"background,omitempty"`
	Text       string `json:"text,omitempty"`
}

// ThemePatch 描述对主题的局部更新；nil 字段保持原值。
type ThemePatch struct {
	Primary    *string `json:"primary,omitempty"`
	Secondary  *string `json:"secondary,omitempty"`
	Background *string `json:"background,omitempty"`
	Text       *string `json:"text,omitempty"`
}

// Merge 将补丁合并进主题并返回结果，不修改原值。
func (t Theme) Merge(p ThemePatch) Theme {
	if p.Primary != nil {
		t.Primary = *p.Primary
	}
	if p.Secondary != nil {
		t.Secondary = *p.Secondary
	}
	if p.Background != nil {
		t.Background = *p.Background
	}
	if p.Text != nil {
		t.Text = *p.Text
	}
	return t
}

// DefaultTheme 返回新文档的默认配色。
func DefaultTheme() Theme {
	return Theme{
		Primary:    "#3388ff",
		Secondary:  "#6c757d",
		Background: "#ffffff",
		Text:       "#212529",
	}
}

const (
	// DefaultTitle 是新建文档的标题。
	DefaultTitle = "我的作品集"
	// DefaultTemplate 是未指定或无法识别模板时的回退值。
	DefaultTemplate = "modern"
)

// Document 是完整的作品集文档：标题、主题、有序区块与模板选择。
// 文档归属于其创建者；编辑会话持有的工作副本与持久化副本可能短暂分叉，
// 由同步引擎负责收敛。
type Document struct {
	ID        string    `json:"id"`
	OwnerID   uint      `json:"owner_id"`
	Title     string    `json:"title"`
	Theme     Theme     `json:"theme"`
	Sections  []Section `json:"sections"`
	Template  string    `json:"template"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot 是同步引擎写入外部存储的编辑面：标题、主题、区块与模板。
type Snapshot struct {
	Title    string    `json:"title"`
	Theme    Theme     `json:"theme"`
	Sections []Section `json:"sections"`
	Template string    `json:"template"`
}

// NewDocument 创建一份空的默认文档：无区块、默认主题、默认模板。
func NewDocument(ownerID uint) *Document {
	return &Document{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		Title:    DefaultTitle,
		Theme:    DefaultTheme(),
		Sections: []Section{},
		Template: DefaultTemplate,
	}
}

// Snapshot 返回文档当前编辑面的深拷贝。
func (d *Document) Snapshot() Snapshot {
	return Snapshot{
		Title:    d.Title,
		Theme:    d.Theme,
		Sections: CloneSections(d.Sections),
		Template: d.Template,
	}
}

// Clone 返回文档的深拷贝。
func (d *Document) Clone() *Document {
	dup := *d
	dup.Sections = CloneSections(d.Sections)
	return &dup
}

// Clone 返回区块的深拷贝。
func (s Section) Clone() Section {
	s.Data = cloneRaw(s.Data)
	s.Animation = cloneRaw(s.Animation)
	return s
}

// CloneSections 深拷贝区块列表，保持原有顺序。
func CloneSections(sections []Section) []Section {
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = s.Clone()
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
