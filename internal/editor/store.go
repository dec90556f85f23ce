package editor

import (
	"sync"

	"phFolio/internal/portfolio"
)

// ChangeKind 区分变更的来源：载入/重置不是编辑，不触发自动保存。
type ChangeKind int

const (
	ChangeLoad ChangeKind = iota
	ChangeReset
	ChangeEdit
)

// Change 描述一次工作副本变更，在变更操作返回前同步送达所有订阅者。
type Change struct {
	Kind ChangeKind
}

// Store 持有一份作品集文档的内存工作副本，是编辑会话内所有读写的唯一入口。
// 所有操作同步完成、不做 I/O；对文档的修改只能通过这里定义的操作进行。
type Store struct {
	mu   sync.Mutex
	doc  *portfolio.Document
	subs map[int]func(Change)
	next int
}

// NewStore 创建一个持有空默认文档的工作副本。
func NewStore() *Store {
	return &Store{
		doc:  portfolio.NewDocument(0),
		subs: make(map[int]func(Change)),
	}
}

// Subscribe 注册变更回调，返回取消函数。回调在每次变更后同步执行。
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Load 原子地用给定文档替换整个工作副本，用于编辑会话开始或重新载入。
func (s *Store) Load(doc *portfolio.Document) {
	s.mu.Lock()
	s.doc = doc.Clone()
	if s.doc.Sections == nil {
		s.doc.Sections = []portfolio.Section{}
	}
	s.notifyLocked(Change{Kind: ChangeLoad})
}

// Reset 恢复为空默认文档，防止上一个会话的文档泄漏到下一个会话。
func (s *Store) Reset() {
	s.mu.Lock()
	s.doc = portfolio.NewDocument(0)
	s.notifyLocked(Change{Kind: ChangeReset})
}

// Document 返回工作副本的深拷贝。
func (s *Store) Document() *portfolio.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Snapshot 返回当前编辑面（标题、主题、区块、模板）的深拷贝。
func (s *Store) Snapshot() (string, portfolio.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.ID, s.doc.Snapshot()
}

// SetTitle 更新文档标题。
func (s *Store) SetTitle(title string) {
	s.mu.Lock()
	s.doc.Title = title
	s.notifyLocked(Change{Kind: ChangeEdit})
}

// SetTheme 将补丁合并进现有主题，而非整体替换。
func (s *Store) SetTheme(patch portfolio.ThemePatch) {
	s.mu.Lock()
	s.doc.Theme = s.doc.Theme.Merge(patch)
	s.notifyLocked(Change{Kind: ChangeEdit})
}

// SetTemplate 更新模板选择。
func (s *Store) SetTemplate(templateID string) {
	s.mu.Lock()
	s.doc.Template = templateID
	s.notifyLocked(Change{Kind: ChangeEdit})
}

// AddSection 将区块追加到有序列表末尾；调用方负责生成 ID。
func (s *Store) AddSection(sec portfolio.Section) {
	s.mu.Lock()
	s.doc.Sections = append(s.doc.Sections, sec.Clone())
	s.notifyLocked(Change{Kind: ChangeEdit})
}

// UpdateSection 将补丁合并进匹配 ID 的区块；无匹配时静默跳过。
// ID 与区块顺序不会被更新改变。
func (s *Store) UpdateSection(id string, patch portfolio.SectionPatch) {
	s.mu.Lock()
	for i := range s.doc.Sections {
		if s.doc.Sections[i].ID != id {
			continue
		}
		if patch.Data != nil {
			s.doc.Sections[i].Data = append([]byte(nil), patch.Data...)
		}
		if patch.Animation != nil {
			s.doc.Sections[i].Animation = append([]byte(nil), patch.Animation...)
		}
		s.notifyLocked(Change{Kind: ChangeEdit})
		return
	}
	s.mu.Unlock()
}

// RemoveSection 删除第一个匹配 ID 的区块，其余区块保持相对顺序；
// 无匹配时静默跳过。并发的删改操作可能合法地竞争同一个消失中的区块，
// 因此不视为错误。
func (s *Store) RemoveSection(id string) {
	s.mu.Lock()
	for i := range s.doc.Sections {
		if s.doc.Sections[i].ID != id {
			continue
		}
		s.doc.Sections = append(s.doc.Sections[:i], s.doc.Sections[i+1:]...)
		s.notifyLocked(Change{Kind: ChangeEdit})
		return
	}
	s.mu.Unlock()
}

// notifyLocked 在持锁状态下取出订阅者快照，解锁后再回调，
// 避免订阅者读取 Store 时死锁。调用方负责已持有 s.mu。
func (s *Store) notifyLocked(change Change) {
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
