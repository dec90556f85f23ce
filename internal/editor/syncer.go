package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"phFolio/internal/metrics"
	"phFolio/internal/portfolio"
)

// Status 是保存管线对 UI 可见的状态机状态。
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Persister 是同步引擎依赖的外部存储写入口。
type Persister interface {
	Save(ctx context.Context, documentID string, snap portfolio.Snapshot) error
}

// Timer 抽象一个可取消的延迟回调。
type Timer interface {
	Stop() bool
}

// Clock 抽象计时器创建，测试中注入假时钟即可在无真实定时器的情况下
// 验证防抖与状态回落。
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (rt realTimer) Stop() bool { return rt.t.Stop() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// SyncerOptions 控制防抖窗口、状态展示窗口与保存超时。
type SyncerOptions struct {
	Debounce    time.Duration
	SavedWindow time.Duration
	ErrorWindow time.Duration
	SaveTimeout time.Duration
	Clock       Clock
	Logger      *slog.Logger
}

func (o SyncerOptions) withDefaults() SyncerOptions {
	if o.Debounce <= 0 {
		o.Debounce = 800 * time.Millisecond
	}
	if o.SavedWindow <= 0 {
		o.SavedWindow = 2 * time.Second
	}
	if o.ErrorWindow <= 0 {
		o.ErrorWindow = 3 * time.Second
	}
	if o.SaveTimeout <= 0 {
		o.SaveTimeout = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Syncer 观察 Store 的编辑变更，做防抖合并后把完整文档写入外部存储，
// 并向 UI 暴露保存状态机。规则：
//   - 载入/重置不触发保存，只有编辑触发；
//   - 防抖窗口内的连续编辑替换（而非排队）待执行的保存；
//   - 同一时刻至多一笔写入在途，防抖到期时若仍有在途写入则顺延到其返回后执行；
//   - 保存失败不回滚工作副本、不自动重试，下一次编辑或手动 Flush 会再次尝试。
type Syncer struct {
	store     *Store
	persister Persister
	opts      SyncerOptions
	log       *slog.Logger

	mu          sync.Mutex
	status      Status
	statusSubs  map[int]func(Status)
	nextSub     int
	debounce    Timer
	revert      Timer
	dirty       bool
	inflight    bool
	pending     bool
	closed      bool
	unsubscribe func()
}

// NewSyncer 创建同步引擎并立即开始观察 store。
// 首次观察（会话载入）不会触发保存。
func NewSyncer(store *Store, persister Persister, opts SyncerOptions) *Syncer {
	opts = opts.withDefaults()
	s := &Syncer{
		store:      store,
		persister:  persister,
		opts:       opts,
		log:        opts.Logger,
		status:     StatusIdle,
		statusSubs: make(map[int]func(Status)),
	}
	s.unsubscribe = store.Subscribe(s.onChange)
	return s
}

// Status 返回当前保存状态。
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SubscribeStatus 注册状态变更回调，返回取消函数。
// 回调在引擎内部锁下同步执行，不得再调用 Syncer 的方法。
func (s *Syncer) SubscribeStatus(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.statusSubs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.statusSubs, id)
		s.mu.Unlock()
	}
}

// Flush 立即执行一次保存（若有未保存的编辑），用于会话关闭或手动重试。
func (s *Syncer) Flush() {
	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.mu.Unlock()
	s.flush()
}

// Close 停止观察并取消所有计时器；未保存的编辑不会被写出。
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *Syncer) onChange(change Change) {
	if change.Kind != ChangeEdit {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dirty = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = s.opts.Clock.AfterFunc(s.opts.Debounce, s.flush)
}

func (s *Syncer) flush() {
	s.mu.Lock()
	if s.closed || !s.dirty {
		s.mu.Unlock()
		return
	}
	if s.inflight {
		// 在途写入尚未返回，顺延本次保存，保证写入串行。
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inflight = true
	s.dirty = false
	s.setStatusLocked(StatusSaving)
	s.mu.Unlock()

	documentID, snap := s.store.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
	start := time.Now()
	err := s.persister.Save(ctx, documentID, snap)
	cancel()

	s.mu.Lock()
	s.inflight = false
	if err != nil {
		// 不回滚工作副本：用户的编辑仍在 Store 中，下次编辑会重新触发保存。
		s.dirty = true
		metrics.ObserveAutosave("error", time.Since(start))
		s.log.Error("autosave failed",
			slog.String("document_id", documentID),
			slog.Any("error", err),
		)
		s.setStatusLocked(StatusError)
		s.scheduleRevertLocked(s.opts.ErrorWindow)
	} else {
		metrics.ObserveAutosave("ok", time.Since(start))
		s.setStatusLocked(StatusSaved)
		s.scheduleRevertLocked(s.opts.SavedWindow)
	}
	rerun := s.pending
	s.pending = false
	s.mu.Unlock()

	if rerun {
		s.flush()
	}
}

func (s *Syncer) setStatusLocked(status Status) {
	if s.revert != nil {
		s.revert.Stop()
		s.revert = nil
	}
	if s.status == status {
		return
	}
	s.status = status
	for _, fn := range s.statusSubs {
		fn(status)
	}
}

func (s *Syncer) scheduleRevertLocked(after time.Duration) {
	s.revert = s.opts.Clock.AfterFunc(after, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status == StatusSaved || s.status == StatusError {
			s.setStatusLocked(StatusIdle)
		}
	})
}
