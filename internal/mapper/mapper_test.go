package mapper_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lsm/internal/mapper"
	"lsm/internal/store"
)

type category struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (category) TableName() string    { return "categories" }
func (category) PrimaryKey() []string { return []string{"id"} }

type series struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Slug      string    `db:"slug"`
	Status    bool      `db:"status,always"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (series) TableName() string    { return "series" }
func (series) PrimaryKey() []string { return []string{"id"} }

type privilege struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func (privilege) TableName() string    { return "privileges" }
func (privilege) PrimaryKey() []string { return []string{"id"} }

func newMapper(t *testing.T) *mapper.Mapper {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "lsm.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return mapper.New(s)
}

func TestSaveInsertsAndAssignsID(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()

	c := &category{Name: "News", Slug: "news", Description: "Daily"}
	if err := m.Save(ctx, c, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("expected auto-increment id to be copied back")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be stamped on insert")
	}

	var got category
	if err := m.Find(ctx, &got, c.ID); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Name != "News" || got.Slug != "news" || got.Description != "Daily" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestSaveUpdatesOnlySetFields(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()

	c := &category{Name: "News", Slug: "news", Description: "Daily"}
	if err := m.Save(ctx, c, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	created := c.CreatedAt

	partial := &category{ID: c.ID, Name: "Updates"}
	if err := m.Save(ctx, partial, false); err != nil {
		t.Fatalf("update: %v", err)
	}

	var got category
	if err := m.Find(ctx, &got, c.ID); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Name != "Updates" {
		t.Fatalf("expected name to change, got %q", got.Name)
	}
	if got.Description != "Daily" || got.Slug != "news" {
		t.Fatalf("unset fields must survive a partial update: %+v", got)
	}
	if got.CreatedAt.Sub(created).Abs() > time.Second {
		t.Fatalf("created_at must never be rewritten: before %v after %v", created, got.CreatedAt)
	}
}

func TestSaveOverrideNullWritesZeroValues(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()

	c := &category{Name: "News", Slug: "news", Description: "Daily"}
	if err := m.Save(ctx, c, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	c.Description = ""
	c.UpdatedAt = time.Time{}
	if err := m.Save(ctx, c, true); err != nil {
		t.Fatalf("update: %v", err)
	}

	var got category
	if err := m.Find(ctx, &got, c.ID); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Description != "" {
		t.Fatalf("expected description cleared, got %q", got.Description)
	}
}

func TestSaveWithExplicitUnknownIDInserts(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()

	p := &privilege{ID: 99, Name: "publish"}
	if err := m.Save(ctx, p, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	var got privilege
	if err := m.Find(ctx, &got, int64(99)); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Name != "publish" {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestSaveAlwaysFieldWritesFalse(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()

	s := &series{Title: "Intro", Slug: "intro", Status: true}
	if err := m.Save(ctx, s, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Save(ctx, &series{ID: s.ID, Status: false}, false); err != nil {
		t.Fatalf("update: %v", err)
	}
	var got series
	if err := m.Find(ctx, &got, s.ID); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Status {
		t.Fatal("expected status false after update")
	}
	if got.Title != "Intro" {
		t.Fatalf("title must survive, got %q", got.Title)
	}
}

func TestInsertWithoutDataFails(t *testing.T) {
	m := newMapper(t)
	err := m.Save(context.Background(), &privilege{}, false)
	if !errors.Is(err, mapper.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	m := newMapper(t)
	var c category
	if err := m.Find(context.Background(), &c, int64(404)); !errors.Is(err, mapper.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDestroyRequiresKey(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()

	if err := m.Destroy(ctx, &category{Name: "x"}); !errors.Is(err, mapper.ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}

	c := &category{Name: "Gone", Slug: "gone"}
	if err := m.Save(ctx, c, false); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.Destroy(ctx, &category{ID: c.ID}); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := m.Find(ctx, &category{}, c.ID); !errors.Is(err, mapper.ErrNotFound) {
		t.Fatalf("expected row gone, got %v", err)
	}
}

func TestSelectAndRawQuery(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()
	for _, name := range []string{"b", "a"} {
		if err := m.Save(ctx, &category{Name: name, Slug: name}, false); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	items, err := mapper.Select[category](ctx, m.Store(), "SELECT * FROM categories ORDER BY name")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(items) != 2 || items[0].Name != "a" || items[1].Name != "b" {
		t.Fatalf("unexpected items: %+v", items)
	}

	rows, err := m.RawQuery(ctx, "SELECT name, slug FROM categories WHERE name = ?", "a")
	if err != nil {
		t.Fatalf("RawQuery failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["slug"] != "a" {
		t.Fatalf("unexpected raw rows: %v", rows)
	}

	if _, err := mapper.Get[category](ctx, m.Store(), "SELECT * FROM categories WHERE name = ?", "zzz"); !errors.Is(err, mapper.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestBulkStatusIsAllOrNothing(t *testing.T) {
	m := newMapper(t)
	ctx := context.Background()

	a := &series{Title: "A", Slug: "a", Status: true}
	b := &series{Title: "B", Slug: "b", Status: true}
	for _, s := range []*series{a, b} {
		if err := m.Save(ctx, s, false); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	err := m.SetStatus(ctx, "series", []int64{a.ID, b.ID, 999}, false)
	if !errors.Is(err, mapper.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for partial match, got %v", err)
	}
	var got series
	if err := m.Find(ctx, &got, a.ID); err != nil || !got.Status {
		t.Fatalf("expected rollback to keep status, got %+v err=%v", got, err)
	}

	if err := m.SetStatus(ctx, "series", []int64{a.ID, b.ID, a.ID}, false); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	status, err := m.ToggleStatus(ctx, "series", a.ID)
	if err != nil {
		t.Fatalf("ToggleStatus failed: %v", err)
	}
	if !status {
		t.Fatal("expected toggle to re-activate")
	}

	if err := m.DeleteMany(ctx, "series", []int64{a.ID, b.ID}); err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if err := m.DeleteMany(ctx, "series; DROP TABLE users", []int64{1}); !errors.Is(err, mapper.ErrInvalidModel) {
		t.Fatalf("expected table name rejection, got %v", err)
	}
}
