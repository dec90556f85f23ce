// Package render 定义模板渲染契约：任意模板实现都从同一份文档
// 与同一份提取结果出发，产出完整页面。换模板永远不需要改文档。
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"sync"

	"phFolio/internal/portfolio"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Options 控制渲染方式，不影响底层文档。
// ShowHeader 为真时渲染编辑器内嵌预览的头部框架，为假时输出真正的公开页面。
type Options struct {
	ShowHeader bool
}

// Renderer 是模板实现的统一契约。缺失或为空的区块类型渲染为空，
// 不报错、不输出破坏布局的占位符。
type Renderer interface {
	Render(w io.Writer, doc *portfolio.Document, opts Options) error
}

// PageData 是传给各模板的视图数据，由共享的提取工具规范化而来。
type PageData struct {
	Title      string
	Theme      portfolio.Theme
	Hero       portfolio.HeroData
	HasHero    bool
	About      *portfolio.AboutData
	Projects   []portfolio.Project
	Experience []portfolio.Experience
	Skills     []string
	ShowHeader bool
}

// NewPageData 从文档构建模板视图数据。
func NewPageData(doc *portfolio.Document, opts Options) PageData {
	bundle := portfolio.Extract(doc.Sections)
	return PageData{
		Title:      doc.Title,
		Theme:      doc.Theme,
		Hero:       bundle.HeroData(),
		HasHero:    bundle.HeroSection != nil,
		About:      bundle.AboutData,
		Projects:   bundle.Projects,
		Experience: bundle.Experiences,
		Skills:     bundle.Skills,
		ShowHeader: opts.ShowHeader,
	}
}

// Registry 把模板标识映射到渲染实现。
// 未注册的标识回退到默认模板而不是失败。
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry 构建带三个内置模板的注册表。
func NewRegistry() *Registry {
	r := &Registry{renderers: make(map[string]Renderer)}
	r.Register("modern", newTemplateRenderer("modern.tmpl"))
	r.Register("minimal", newTemplateRenderer("minimal.tmpl"))
	r.Register("professional", newTemplateRenderer("professional.tmpl"))
	return r
}

// Register 注册（或覆盖）一个模板实现。
func (r *Registry) Register(id string, renderer Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[id] = renderer
}

// Resolve 返回标识对应的实现；无法识别时回退到默认模板。
func (r *Registry) Resolve(id string) Renderer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if renderer, ok := r.renderers[id]; ok {
		return renderer
	}
	return r.renderers[portfolio.DefaultTemplate]
}

// IDs 返回已注册的模板标识，按字典序。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.renderers))
	for id := range r.renderers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RenderDocument 按文档自身的模板选择渲染，相当于公开页面的入口。
func (r *Registry) RenderDocument(w io.Writer, doc *portfolio.Document, opts Options) error {
	return r.Resolve(doc.Template).Render(w, doc, opts)
}

// templateRenderer 用一个嵌入的 html/template 文件实现 Renderer。
type templateRenderer struct {
	tmpl *template.Template
}

func newTemplateRenderer(filename string) *templateRenderer {
	tmpl := template.Must(
		template.New(filename).ParseFS(templateFS, "templates/"+filename, "templates/shared.tmpl"),
	)
	return &templateRenderer{tmpl: tmpl}
}

func (t *templateRenderer) Render(w io.Writer, doc *portfolio.Document, opts Options) error {
	if err := t.tmpl.Execute(w, NewPageData(doc, opts)); err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	return nil
}
