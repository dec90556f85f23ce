package editor

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"phFolio/internal/portfolio"
)

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock 手动推进时间，按到期顺序触发回调。
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	remaining := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.when.After(c.now) {
			t.fired = true
			due = append(due, t)
			continue
		}
		if !t.stopped {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

type fakePersister struct {
	mu    sync.Mutex
	saves []portfolio.Snapshot
	ids   []string
	err   error
}

func (p *fakePersister) Save(_ context.Context, id string, snap portfolio.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	p.saves = append(p.saves, snap)
	return nil
}

func (p *fakePersister) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

func (p *fakePersister) lastSave() portfolio.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves[len(p.saves)-1]
}

func (p *fakePersister) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func newTestSyncer(t *testing.T) (*Store, *Syncer, *fakePersister, *fakeClock) {
	t.Helper()
	store := NewStore()
	clock := newFakeClock()
	persister := &fakePersister{}
	syncer := NewSyncer(store, persister, SyncerOptions{
		Debounce:    time.Second,
		SavedWindow: 2 * time.Second,
		ErrorWindow: 3 * time.Second,
		Clock:       clock,
	})
	t.Cleanup(syncer.Close)
	return store, syncer, persister, clock
}

func TestSyncer_LoadDoesNotTriggerSave(t *testing.T) {
	store, _, persister, clock := newTestSyncer(t)

	store.Load(portfolio.NewDocument(1))
	clock.Advance(10 * time.Second)

	if persister.saveCount() != 0 {
		t.Fatalf("load triggered %d saves", persister.saveCount())
	}
}

func TestSyncer_DebounceCollapsesRapidEdits(t *testing.T) {
	store, _, persister, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))

	store.SetTitle("A")
	clock.Advance(300 * time.Millisecond)
	store.SetTitle("AB")
	clock.Advance(300 * time.Millisecond)
	store.SetTitle("ABC")
	clock.Advance(time.Second)

	if persister.saveCount() != 1 {
		t.Fatalf("save count = %d, want 1", persister.saveCount())
	}
	if got := persister.lastSave().Title; got != "ABC" {
		t.Fatalf("saved title = %q, want ABC (last edit wins)", got)
	}
}

func TestSyncer_StatusSequenceOnSuccess(t *testing.T) {
	store, syncer, _, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))

	var seen []Status
	syncer.SubscribeStatus(func(s Status) { seen = append(seen, s) })

	store.SetTitle("hello")
	clock.Advance(time.Second) // 防抖到期，保存同步完成
	clock.Advance(2 * time.Second)

	want := []Status{StatusSaving, StatusSaved, StatusIdle}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("status sequence = %v, want %v", seen, want)
	}
	if syncer.Status() != StatusIdle {
		t.Fatalf("final status = %s", syncer.Status())
	}
}

func TestSyncer_StatusSequenceOnFailure(t *testing.T) {
	store, syncer, persister, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))
	persister.setErr(errors.New("store unavailable"))

	var seen []Status
	syncer.SubscribeStatus(func(s Status) { seen = append(seen, s) })

	store.SetTitle("hello")
	clock.Advance(time.Second)
	clock.Advance(3 * time.Second)

	want := []Status{StatusSaving, StatusError, StatusIdle}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("status sequence = %v, want %v", seen, want)
	}
}

func TestSyncer_FailureDoesNotRollBackOrLockOut(t *testing.T) {
	store, _, persister, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))

	persister.setErr(errors.New("network down"))
	store.SetTitle("unsaved")
	clock.Advance(time.Second)

	if got := store.Document().Title; got != "unsaved" {
		t.Fatalf("working copy rolled back to %q", got)
	}
	if persister.saveCount() != 0 {
		t.Fatalf("failed save recorded a snapshot")
	}

	// 后续编辑仍会触发新的保存尝试
	persister.setErr(nil)
	store.SetTitle("recovered")
	clock.Advance(time.Second)

	if persister.saveCount() != 1 {
		t.Fatalf("save count after recovery = %d, want 1", persister.saveCount())
	}
	if got := persister.lastSave().Title; got != "recovered" {
		t.Fatalf("saved title = %q", got)
	}
}

func TestSyncer_NoAutoRetryAfterFailure(t *testing.T) {
	store, _, persister, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))
	persister.setErr(errors.New("boom"))

	store.SetTitle("x")
	clock.Advance(time.Second)
	persister.setErr(nil)
	clock.Advance(time.Minute)

	if persister.saveCount() != 0 {
		t.Fatalf("failed save was retried without a new edit")
	}
}

func TestSyncer_FlushRetriesAfterFailure(t *testing.T) {
	store, syncer, persister, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))
	persister.setErr(errors.New("boom"))

	store.SetTitle("keep me")
	clock.Advance(time.Second)

	persister.setErr(nil)
	syncer.Flush()

	if persister.saveCount() != 1 {
		t.Fatalf("manual flush did not retry, saves = %d", persister.saveCount())
	}
	if got := persister.lastSave().Title; got != "keep me" {
		t.Fatalf("saved title = %q", got)
	}
}

func TestSyncer_FlushWithoutEditsIsNoop(t *testing.T) {
	store, syncer, persister, _ := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))

	syncer.Flush()

	if persister.saveCount() != 0 {
		t.Fatalf("flush without edits saved %d times", persister.saveCount())
	}
}

func TestSyncer_SavedStatusInterruptedByNewSave(t *testing.T) {
	store, syncer, _, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))

	store.SetTitle("one")
	clock.Advance(time.Second)
	if syncer.Status() != StatusSaved {
		t.Fatalf("status = %s, want saved", syncer.Status())
	}

	// saved 展示窗口未结束就有新编辑，回落计时器应被替换
	store.SetTitle("two")
	clock.Advance(time.Second)
	if syncer.Status() != StatusSaved {
		t.Fatalf("status = %s, want saved after second save", syncer.Status())
	}
	clock.Advance(2 * time.Second)
	if syncer.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle after display window", syncer.Status())
	}
}

func TestSyncer_CloseStopsObserving(t *testing.T) {
	store, syncer, persister, clock := newTestSyncer(t)
	store.Load(portfolio.NewDocument(1))

	syncer.Close()
	store.SetTitle("after close")
	clock.Advance(10 * time.Second)

	if persister.saveCount() != 0 {
		t.Fatalf("closed syncer still saved")
	}
}
