package editor

import (
	"encoding/json"
	"reflect"
	"testing"

	"phFolio/internal/portfolio"
)

func heroSection(id, subtitle string) portfolio.Section {
	return portfolio.Section{
		ID:   id,
		Type: portfolio.SectionHero,
		Data: json.RawMessage(`{"subtitle":"` + subtitle + `"}`),
	}
}

func sectionIDs(doc *portfolio.Document) []string {
	ids := make([]string, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestStore_SectionOrderPreserved(t *testing.T) {
	store := NewStore()
	store.AddSection(heroSection("a", "1"))
	store.AddSection(portfolio.Section{ID: "b", Type: portfolio.SectionSkills, Data: json.RawMessage(`{"skills":[]}`)})
	store.AddSection(heroSection("c", "3"))

	store.RemoveSection("b")

	got := sectionIDs(store.Document())
	if !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("sections after remove = %v", got)
	}
}

func TestStore_UpdateSectionMergesWithoutChangingID(t *testing.T) {
	store := NewStore()
	sec := heroSection("h1", "Engineer")
	sec.Animation = json.RawMessage(`{"reveal":"fade"}`)
	store.AddSection(sec)

	store.UpdateSection("h1", portfolio.SectionPatch{
		Data: json.RawMessage(`{"subtitle":"Designer"}`),
	})

	doc := store.Document()
	if len(doc.Sections) != 1 {
		t.Fatalf("section count = %d", len(doc.Sections))
	}
	updated := doc.Sections[0]
	if updated.ID != "h1" || updated.Type != portfolio.SectionHero {
		t.Errorf("identity changed: %+v", updated)
	}
	if got := portfolio.Extract(doc.Sections).HeroData().Subtitle; got != "Designer" {
		t.Errorf("subtitle = %q, want Designer", got)
	}
	if string(updated.Animation) != `{"reveal":"fade"}` {
		t.Errorf("animation lost: %s", updated.Animation)
	}
}

func TestStore_UpdateAndRemoveUnknownIDAreNoops(t *testing.T) {
	store := NewStore()
	store.AddSection(heroSection("h1", "x"))

	store.UpdateSection("missing", portfolio.SectionPatch{Data: json.RawMessage(`{}`)})
	store.RemoveSection("missing")

	doc := store.Document()
	if len(doc.Sections) != 1 || doc.Sections[0].ID != "h1" {
		t.Fatalf("store changed by unknown-id operations: %v", sectionIDs(doc))
	}
}

func TestStore_SetThemeMerges(t *testing.T) {
	store := NewStore()
	accent := "#112233"
	store.SetTheme(portfolio.ThemePatch{Primary: &accent})

	theme := store.Document().Theme
	if theme.Primary != accent {
		t.Errorf("primary = %q", theme.Primary)
	}
	if theme.Secondary != portfolio.DefaultTheme().Secondary {
		t.Errorf("secondary replaced: %q", theme.Secondary)
	}
}

func TestStore_ResetThenLoadEqualsLoad(t *testing.T) {
	doc := portfolio.NewDocument(1)
	doc.Title = "published work"
	doc.Sections = []portfolio.Section{heroSection("h1", "Engineer")}

	a := NewStore()
	a.SetTitle("leftover edits")
	a.AddSection(heroSection("junk", "junk"))
	a.Reset()
	a.Load(doc)

	b := NewStore()
	b.Load(doc)

	if !reflect.DeepEqual(a.Document().Snapshot(), b.Document().Snapshot()) {
		t.Fatalf("reset left observable residue:\n%+v\n%+v", a.Document(), b.Document())
	}
}

func TestStore_LoadReplacesAtomically(t *testing.T) {
	store := NewStore()
	store.SetTitle("old")
	store.AddSection(heroSection("old", "old"))

	doc := portfolio.NewDocument(2)
	doc.Title = "new"
	store.Load(doc)

	got := store.Document()
	if got.Title != "new" || len(got.Sections) != 0 {
		t.Fatalf("load did not replace working copy: %+v", got)
	}
}

func TestStore_NotifiesSubscribersSynchronously(t *testing.T) {
	store := NewStore()
	var changes []ChangeKind
	cancel := store.Subscribe(func(c Change) { changes = append(changes, c.Kind) })

	store.Load(portfolio.NewDocument(1))
	store.SetTitle("a")
	store.UpdateSection("missing", portfolio.SectionPatch{}) // no-op：不通知
	store.Reset()

	want := []ChangeKind{ChangeLoad, ChangeEdit, ChangeReset}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}

	cancel()
	store.SetTitle("b")
	if len(changes) != len(want) {
		t.Fatalf("subscriber still notified after cancel")
	}
}

func TestStore_DocumentReturnsCopy(t *testing.T) {
	store := NewStore()
	store.AddSection(heroSection("h1", "x"))

	doc := store.Document()
	doc.Title = "mutated outside"
	doc.Sections[0].ID = "hacked"

	fresh := store.Document()
	if fresh.Title == "mutated outside" || fresh.Sections[0].ID == "hacked" {
		t.Fatalf("working copy reachable from outside the store")
	}
}
