package editor

import (
	"context"
	"sync"

	"phFolio/internal/metrics"
	"phFolio/internal/portfolio"
)

// Repository 是会话注册表依赖的外部存储读写口。
type Repository interface {
	Persister
	Load(ctx context.Context, documentID string) (*portfolio.Document, error)
}

// Session 绑定一份文档的工作副本与它的同步引擎。
type Session struct {
	DocumentID string
	Store      *Store
	Syncer     *Syncer
}

// Sessions 管理存活的编辑会话：每份打开的文档对应一个 Store + Syncer。
type Sessions struct {
	repo Repository
	opts SyncerOptions

	mu    sync.Mutex
	byDoc map[string]*Session
}

// NewSessions 创建会话注册表。
func NewSessions(repo Repository, opts SyncerOptions) *Sessions {
	return &Sessions{
		repo:  repo,
		opts:  opts,
		byDoc: make(map[string]*Session),
	}
}

// Open 打开（或复用）一份文档的编辑会话。新会话从外部存储载入文档；
// 载入本身不会触发保存。
func (m *Sessions) Open(ctx context.Context, documentID string) (*Session, error) {
	m.mu.Lock()
	if sess, ok := m.byDoc[documentID]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	doc, err := m.repo.Load(ctx, documentID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// 载入期间可能有并发 Open 先行建好会话
	if sess, ok := m.byDoc[documentID]; ok {
		return sess, nil
	}

	store := NewStore()
	store.Load(doc)
	sess := &Session{
		DocumentID: documentID,
		Store:      store,
		Syncer:     NewSyncer(store, m.repo, m.opts),
	}
	m.byDoc[documentID] = sess
	metrics.SessionOpened()
	return sess, nil
}

// Get 返回已打开的会话。
func (m *Sessions) Get(documentID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byDoc[documentID]
	return sess, ok
}

// Close 关闭会话：写出未保存的编辑、停止同步引擎并清空工作副本，
// 防止旧文档泄漏到下一个会话。
func (m *Sessions) Close(documentID string) {
	m.mu.Lock()
	sess, ok := m.byDoc[documentID]
	if ok {
		delete(m.byDoc, documentID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.Syncer.Flush()
	sess.Syncer.Close()
	sess.Store.Reset()
	metrics.SessionClosed()
}

// Discard 丢弃会话而不写出未保存的编辑，用于文档被删除时。
func (m *Sessions) Discard(documentID string) {
	m.mu.Lock()
	sess, ok := m.byDoc[documentID]
	if ok {
		delete(m.byDoc, documentID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	sess.Syncer.Close()
	sess.Store.Reset()
	metrics.SessionClosed()
}
