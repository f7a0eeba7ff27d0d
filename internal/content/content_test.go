package content_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"lsm/internal/content"
	"lsm/internal/mapper"
	"lsm/internal/store"
)

type fixture struct {
	categories *content.CategoryMapper
	series     *content.SeriesMapper
	posts      *content.PostMapper
	images     *content.ImageMapper
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "lsm.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	m := mapper.New(s)
	return fixture{
		categories: content.NewCategoryMapper(m),
		series:     content.NewSeriesMapper(m),
		posts:      content.NewPostMapper(m),
		images:     content.NewImageMapper(m),
	}
}

func (f fixture) category(t *testing.T, name string) *content.Category {
	t.Helper()
	c := &content.Category{Name: name}
	if err := f.categories.Save(context.Background(), c); err != nil {
		t.Fatalf("save category %q: %v", name, err)
	}
	return c
}

func (f fixture) post(t *testing.T, categoryID int64, title string, status bool) *content.Post {
	t.Helper()
	p := &content.Post{CategoryID: categoryID, Title: title, Status: status}
	if err := f.posts.Save(context.Background(), p); err != nil {
		t.Fatalf("save post %q: %v", title, err)
	}
	return p
}

func TestCategorySlugsAreUnique(t *testing.T) {
	f := newFixture(t)
	a := f.category(t, "Go")
	b := f.category(t, "Go!")
	if a.Slug != "go" || b.Slug != "go-2" {
		t.Fatalf("unexpected slugs %q and %q", a.Slug, b.Slug)
	}

	// Re-saving keeps the row's own slug.
	if err := f.categories.Save(context.Background(), a); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if a.Slug != "go" {
		t.Fatalf("resave changed slug to %q", a.Slug)
	}

	taken, err := f.categories.NameTaken(context.Background(), "GO", b.ID)
	if err != nil || !taken {
		t.Fatalf("expected case-insensitive name clash, got %v err=%v", taken, err)
	}
}

func TestCategoryDeleteRefusesWhenInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	used := f.category(t, "Used")
	empty := f.category(t, "Empty")
	f.post(t, used.ID, "Hello", true)

	if err := f.categories.Destroy(ctx, used.ID); !errors.Is(err, content.ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}
	if err := f.categories.DeleteMany(ctx, []int64{empty.ID, used.ID}); !errors.Is(err, content.ErrCategoryInUse) {
		t.Fatalf("expected bulk delete refusal, got %v", err)
	}
	if _, err := f.categories.Find(ctx, empty.ID); err != nil {
		t.Fatalf("refused bulk delete must not remove anything: %v", err)
	}

	n, err := f.categories.CountPosts(ctx, used.ID)
	if err != nil || n != 1 {
		t.Fatalf("CountPosts = %d, err=%v", n, err)
	}
	if err := f.categories.Destroy(ctx, empty.ID); err != nil {
		t.Fatalf("Destroy empty category: %v", err)
	}
}

func TestCategoryIndexPaginates(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Delta", "Alpha", "Charlie", "Bravo"} {
		f.category(t, name)
	}
	items, p, err := f.categories.Index(context.Background(), mapper.NewPagination(2, 3))
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if p.Total != 4 || p.Pages() != 2 || len(items) != 1 || items[0].Name != "Delta" {
		t.Fatalf("unexpected page: total=%d pages=%d items=%+v", p.Total, p.Pages(), items)
	}
}

func TestSeriesStatusOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := &content.Series{Title: "Basics", Status: true}
	b := &content.Series{Title: "Advanced", Status: false}
	for _, s := range []*content.Series{a, b} {
		if err := f.series.Save(ctx, s); err != nil {
			t.Fatalf("save series: %v", err)
		}
	}

	active, err := f.series.Active(ctx)
	if err != nil || len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("expected only Basics active, got %+v err=%v", active, err)
	}

	if err := f.series.Activate(ctx, []int64{a.ID, b.ID}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	status, err := f.series.ToggleStatus(ctx, b.ID)
	if err != nil || status {
		t.Fatalf("expected toggle to deactivate, got %v err=%v", status, err)
	}
	if err := f.series.Deactivate(ctx, []int64{a.ID}); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, err := f.series.Find(ctx, a.ID)
	if err != nil || got.Status {
		t.Fatalf("expected Basics inactive, got %+v err=%v", got, err)
	}
	if err := f.series.DeleteMany(ctx, []int64{a.ID, b.ID}); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
}

func TestPostIndexFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	news := f.category(t, "News")
	other := f.category(t, "Other")
	f.post(t, news.ID, "Release notes", true)
	f.post(t, news.ID, "Draft idea", false)
	f.post(t, other.ID, "Release party", true)

	published := true
	items, p, err := f.posts.Index(ctx, mapper.NewPagination(1, 10), content.PostFilter{CategoryID: news.ID, Status: &published})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if p.Total != 1 || items[0].Title != "Release notes" || items[0].CategoryName != "News" {
		t.Fatalf("unexpected filtered posts: %+v", items)
	}

	items, _, err = f.posts.Index(ctx, mapper.NewPagination(1, 10), content.PostFilter{Search: "RELEASE"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected case-insensitive search hits, got %d", len(items))
	}

	got, err := f.posts.BySlug(ctx, "draft-idea")
	if err != nil || got.Status || got.SeriesTitle != nil {
		t.Fatalf("BySlug returned %+v err=%v", got, err)
	}
}

func TestPostSaveClearsSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.category(t, "News")
	s := &content.Series{Title: "Saga", Status: true}
	if err := f.series.Save(ctx, s); err != nil {
		t.Fatalf("save series: %v", err)
	}
	p := &content.Post{CategoryID: c.ID, SeriesID: &s.ID, Title: "Part one", Status: true}
	if err := f.posts.Save(ctx, p); err != nil {
		t.Fatalf("save post: %v", err)
	}

	p.SeriesID = nil
	if err := f.posts.Save(ctx, p); err != nil {
		t.Fatalf("update post: %v", err)
	}
	got, err := f.posts.Find(ctx, p.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.SeriesID != nil {
		t.Fatalf("expected series to be cleared, got %d", *got.SeriesID)
	}
}

func galleryOrder(t *testing.T, f fixture, postID int64) []int64 {
	t.Helper()
	images, err := f.images.Index(context.Background(), postID)
	if err != nil {
		t.Fatalf("Index images: %v", err)
	}
	ids := make([]int64, len(images))
	for i, img := range images {
		if img.Position != int64(i+1) {
			t.Fatalf("positions not dense: %+v", images)
		}
		ids[i] = img.ID
	}
	return ids
}

func TestImagePositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.category(t, "Photos")
	p := f.post(t, c.ID, "Trip", true)

	var ids []int64
	for _, ext := range []string{"jpg", "png", "gif", "webp"} {
		img := &content.Image{PostID: p.ID, Extension: ext}
		if err := f.images.Save(ctx, img); err != nil {
			t.Fatalf("save image: %v", err)
		}
		if img.Position != int64(len(ids)+1) {
			t.Fatalf("expected appended position %d, got %d", len(ids)+1, img.Position)
		}
		ids = append(ids, img.ID)
	}
	a, b, c2, d := ids[0], ids[1], ids[2], ids[3]

	// Move up: 4 -> 2.
	if err := f.images.SetPosition(ctx, p.ID, d, 4, 2); err != nil {
		t.Fatalf("move up: %v", err)
	}
	if got := galleryOrder(t, f, p.ID); !slices.Equal(got, []int64{a, d, b, c2}) {
		t.Fatalf("after move up: %v", got)
	}

	// Move down: 1 -> 3.
	if err := f.images.SetPosition(ctx, p.ID, a, 1, 3); err != nil {
		t.Fatalf("move down: %v", err)
	}
	if got := galleryOrder(t, f, p.ID); !slices.Equal(got, []int64{d, b, a, c2}) {
		t.Fatalf("after move down: %v", got)
	}

	for _, tc := range []struct{ id, from, to int64 }{
		{a, 3, 5},
		{a, 3, 0},
		{a, 1, 2},
	} {
		if err := f.images.SetPosition(ctx, p.ID, tc.id, tc.from, tc.to); !errors.Is(err, content.ErrInvalidPosition) {
			t.Fatalf("move %d->%d: expected ErrInvalidPosition, got %v", tc.from, tc.to, err)
		}
	}

	removed, err := f.images.Destroy(ctx, p.ID, b)
	if err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if removed.ID != b || removed.Extension != "png" {
		t.Fatalf("unexpected removed image %+v", removed)
	}
	if got := galleryOrder(t, f, p.ID); !slices.Equal(got, []int64{d, a, c2}) {
		t.Fatalf("after destroy: %v", got)
	}
	if _, err := f.images.Destroy(ctx, p.ID+1, a); !errors.Is(err, mapper.ErrNotFound) {
		t.Fatalf("destroy through wrong post must not match, got %v", err)
	}

	cover, err := f.images.FindByPost(ctx, p.ID)
	if err != nil || cover.ID != d {
		t.Fatalf("expected cover %d, got %+v err=%v", d, cover, err)
	}
	if err := f.images.UpdateCaption(ctx, p.ID, d, "Sunset"); err != nil {
		t.Fatalf("UpdateCaption: %v", err)
	}
	got, err := f.images.Find(ctx, p.ID, d)
	if err != nil || got.Caption != "Sunset" {
		t.Fatalf("caption not stored: %+v err=%v", got, err)
	}
}

func TestConcurrentImageSavesKeepPositionsDense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.category(t, "Photos")
	p := f.post(t, c.ID, "Trip", true)

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.images.Save(ctx, &content.Image{PostID: p.ID, Extension: "jpg"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("save image: %v", err)
		}
	}

	if got := galleryOrder(t, f, p.ID); len(got) != n {
		t.Fatalf("expected %d images, got %d", n, len(got))
	}
}

func TestImagesCascadeWithPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.category(t, "Photos")
	p := f.post(t, c.ID, "Trip", true)
	if err := f.images.Save(ctx, &content.Image{PostID: p.ID, Extension: "jpg"}); err != nil {
		t.Fatalf("save image: %v", err)
	}
	if err := f.posts.Destroy(ctx, p.ID); err != nil {
		t.Fatalf("Destroy post: %v", err)
	}
	n, err := f.images.Count(ctx, p.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected cascade, count=%d err=%v", n, err)
	}
}
