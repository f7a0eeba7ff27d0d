package content

import (
	"strconv"
	"time"

	"lsm/internal/validate"
)

// Table names used by bulk operations.
const (
	TableCategories = "categories"
	TableSeries     = "series"
	TablePosts      = "posts"
	TableImages     = "images"
)

// Category groups posts.
type Category struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	PostCount int64 `db:"post_count"`
}

func (Category) TableName() string    { return TableCategories }
func (Category) PrimaryKey() []string { return []string{"id"} }

// CategoryRules validates the category form.
var CategoryRules = validate.Rules{
	"name":        "required|min:2|max:80",
	"description": "max:2000",
}

// Series is an ordered run of posts.
type Series struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Slug      string    `db:"slug"`
	Status    bool      `db:"status,always"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	PostCount int64 `db:"post_count"`
}

func (Series) TableName() string    { return TableSeries }
func (Series) PrimaryKey() []string { return []string{"id"} }

// SeriesRules validates the series form.
var SeriesRules = validate.Rules{
	"title":  "required|min:2|max:120",
	"status": "in:0,1",
}

// Post is an article with an optional series and an image gallery.
type Post struct {
	ID         int64     `db:"id"`
	CategoryID int64     `db:"category_id"`
	SeriesID   *int64    `db:"series_id"`
	AuthorID   *int64    `db:"author_id"`
	Title      string    `db:"title"`
	Slug       string    `db:"slug"`
	Intro      string    `db:"intro"`
	Body       string    `db:"body"`
	Status     bool      `db:"status,always"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`

	CategoryName string  `db:"category_name"`
	SeriesTitle  *string `db:"series_title"`
	AuthorName   *string `db:"author_name"`
	ImageCount   int64   `db:"image_count"`
}

func (Post) TableName() string    { return TablePosts }
func (Post) PrimaryKey() []string { return []string{"id"} }

// PostRules validates the post form.
var PostRules = validate.Rules{
	"title":       "required|min:2|max:160",
	"category_id": "required|integer",
	"series_id":   "integer",
	"intro":       "max:1000",
	"status":      "in:0,1",
}

// Image is one picture in a post gallery. Position is 1-based and dense
// within the post.
type Image struct {
	ID        int64     `db:"id"`
	PostID    int64     `db:"post_id"`
	Position  int64     `db:"position"`
	Extension string    `db:"extension"`
	Caption   string    `db:"caption"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (Image) TableName() string    { return TableImages }
func (Image) PrimaryKey() []string { return []string{"id"} }

// FileName is the stored file name, e.g. "12.jpg".
func (i Image) FileName() string {
	return strconv.FormatInt(i.ID, 10) + "." + i.Extension
}

// ImageCaptionRules validates caption edits.
var ImageCaptionRules = validate.Rules{
	"caption": "max:255",
}
