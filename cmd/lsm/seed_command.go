package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"lsm/internal/auth"
	"lsm/internal/content"
	"lsm/internal/mapper"
	"lsm/internal/uploads"
	"lsm/internal/validate"
)

// seedFile is the YAML fixture layout. Entries that already exist, matched
// by category name, series title, user email or post title, are skipped.
type seedFile struct {
	Categories []seedCategory `yaml:"categories"`
	Series     []seedSeries   `yaml:"series"`
	Users      []seedUser     `yaml:"users"`
	Posts      []seedPost     `yaml:"posts"`
}

type seedCategory struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type seedSeries struct {
	Title  string `yaml:"title"`
	Status *bool  `yaml:"status"`
}

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
	Password string `yaml:"password"`
}

type seedPost struct {
	Title    string      `yaml:"title"`
	Category string      `yaml:"category"`
	Series   string      `yaml:"series"`
	Author   string      `yaml:"author"`
	Intro    string      `yaml:"intro"`
	Body     string      `yaml:"body"`
	Status   bool        `yaml:"status"`
	Images   []seedImage `yaml:"images"`
}

type seedImage struct {
	Path    string `yaml:"path"`
	Caption string `yaml:"caption"`
}

type seedCounts struct {
	categories, series, users, posts, images, skipped int
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load categories, series, users and posts from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read fixtures: %w", err)
			}
			var fixtures seedFile
			if err := yaml.Unmarshal(data, &fixtures); err != nil {
				return fmt.Errorf("parse fixtures: %w", err)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withMapper(func(m *mapper.Mapper) error {
				s := &seeder{
					m:       m,
					dir:     filepath.Dir(args[0]),
					uploads: uploads.New(cfg, ctx.cliLogger()),
				}
				counts, err := s.run(commandCtx(cmd), fixtures)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Seeded %d categories, %d series, %d users, %d posts, %d images (%d existing skipped)\n",
					counts.categories, counts.series, counts.users, counts.posts, counts.images, counts.skipped)
				return nil
			})
		},
	}
}

type seeder struct {
	m       *mapper.Mapper
	dir     string
	uploads *uploads.Store
	counts  seedCounts
}

func (s *seeder) run(ctx context.Context, f seedFile) (seedCounts, error) {
	steps := []func(context.Context, seedFile) error{
		s.seedCategories,
		s.seedSeries,
		s.seedUsers,
		s.seedPosts,
	}
	for _, step := range steps {
		if err := step(ctx, f); err != nil {
			return s.counts, err
		}
	}
	return s.counts, nil
}

func (s *seeder) seedCategories(ctx context.Context, f seedFile) error {
	categories := content.NewCategoryMapper(s.m)
	for _, c := range f.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return errors.New("category without a name")
		}
		taken, err := categories.NameTaken(ctx, name, 0)
		if err != nil {
			return err
		}
		if taken {
			s.counts.skipped++
			continue
		}
		if err := categories.Save(ctx, &content.Category{Name: name, Description: c.Description}); err != nil {
			return fmt.Errorf("seed category %q: %w", name, err)
		}
		s.counts.categories++
	}
	return nil
}

func (s *seeder) seedSeries(ctx context.Context, f seedFile) error {
	series := content.NewSeriesMapper(s.m)
	for _, sr := range f.Series {
		title := strings.TrimSpace(sr.Title)
		if title == "" {
			return errors.New("series without a title")
		}
		if _, err := s.seriesID(ctx, title); err == nil {
			s.counts.skipped++
			continue
		} else if !errors.Is(err, mapper.ErrNotFound) {
			return err
		}
		status := true
		if sr.Status != nil {
			status = *sr.Status
		}
		if err := series.Save(ctx, &content.Series{Title: title, Status: status}); err != nil {
			return fmt.Errorf("seed series %q: %w", title, err)
		}
		s.counts.series++
	}
	return nil
}

func (s *seeder) seedUsers(ctx context.Context, f seedFile) error {
	users := auth.NewUserMapper(s.m)
	for _, u := range f.Users {
		v := validate.New()
		if !v.Check(url.Values{"name": {u.Name}, "email": {u.Email}, "password": {u.Password}}, cliUserRules) {
			return fmt.Errorf("seed user %q: %s", u.Email, strings.Join(v.Messages(), "; "))
		}
		taken, err := users.EmailTaken(ctx, u.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			s.counts.skipped++
			continue
		}
		role := u.Role
		if role == "" {
			role = "author"
		}
		if _, err := users.Create(ctx, u.Name, u.Email, role, u.Password); err != nil {
			return fmt.Errorf("seed user %q: %w", u.Email, err)
		}
		s.counts.users++
	}
	return nil
}

func (s *seeder) seedPosts(ctx context.Context, f seedFile) error {
	posts := content.NewPostMapper(s.m)
	images := content.NewImageMapper(s.m)
	users := auth.NewUserMapper(s.m)
	st := s.m.Store()

	for _, p := range f.Posts {
		title := strings.TrimSpace(p.Title)
		n, err := mapper.Count(ctx, st, "SELECT COUNT(1) FROM posts WHERE title = ?", title)
		if err != nil {
			return err
		}
		if n > 0 {
			s.counts.skipped++
			continue
		}
		cat, err := mapper.Get[content.Category](ctx, st, "SELECT * FROM categories WHERE LOWER(name) = LOWER(?)", p.Category)
		if err != nil {
			return fmt.Errorf("post %q: category %q: %w", title, p.Category, err)
		}
		post := &content.Post{
			CategoryID: cat.ID,
			Title:      title,
			Intro:      p.Intro,
			Body:       p.Body,
			Status:     p.Status,
		}
		if p.Series != "" {
			id, err := s.seriesID(ctx, p.Series)
			if err != nil {
				return fmt.Errorf("post %q: series %q: %w", title, p.Series, err)
			}
			post.SeriesID = &id
		}
		if p.Author != "" {
			author, err := users.ByEmail(ctx, p.Author)
			if err != nil {
				return fmt.Errorf("post %q: author %q: %w", title, p.Author, err)
			}
			post.AuthorID = &author.ID
		}
		if err := posts.Save(ctx, post); err != nil {
			return fmt.Errorf("seed post %q: %w", title, err)
		}
		s.counts.posts++

		for _, img := range p.Images {
			if err := s.seedImage(ctx, images, post.ID, img); err != nil {
				return fmt.Errorf("post %q: %w", title, err)
			}
			s.counts.images++
		}
	}
	return nil
}

// seedImage runs a fixture file through the same checks as a browser
// upload before inserting its row and copying it into place.
func (s *seeder) seedImage(ctx context.Context, images *content.ImageMapper, postID int64, img seedImage) error {
	src := img.Path
	if !filepath.IsAbs(src) {
		src = filepath.Join(s.dir, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	ext, err := s.uploads.Inspect(src, info.Size(), f)
	if err != nil {
		return fmt.Errorf("image %s: %w", img.Path, err)
	}
	row := &content.Image{PostID: postID, Extension: ext, Caption: strings.TrimSpace(img.Caption)}
	if err := images.Save(ctx, row); err != nil {
		return err
	}
	if err := s.uploads.Import(postID, row.ID, ext, src); err != nil {
		if _, dErr := images.Destroy(ctx, postID, row.ID); dErr != nil {
			return errors.Join(err, dErr)
		}
		return err
	}
	return nil
}

func (s *seeder) seriesID(ctx context.Context, title string) (int64, error) {
	sr, err := mapper.Get[content.Series](ctx, s.m.Store(), "SELECT * FROM series WHERE LOWER(title) = LOWER(?)", strings.TrimSpace(title))
	if err != nil {
		return 0, err
	}
	return sr.ID, nil
}
