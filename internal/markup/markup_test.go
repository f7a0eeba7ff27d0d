package markup

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello World":            "hello-world",
		"  Programação em Go!  ": "programacao-em-go",
		"Çà et là -- ok":         "ca-et-la-ok",
		"日本語":                    "",
		"2024: a year":           "2024-a-year",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
	long := Slugify(strings.Repeat("word ", 40))
	if len(long) > maxSlugLength || strings.HasSuffix(long, "-") {
		t.Fatalf("slug not bounded: %q", long)
	}
}

func TestRenderSanitizes(t *testing.T) {
	out := string(Render("# Title\n\n<script>alert(1)</script>\n\n*emph* [link](javascript:alert(1))"))
	if !strings.Contains(out, "<h1") || !strings.Contains(out, "<em>emph</em>") {
		t.Fatalf("expected markdown rendering, got %q", out)
	}
	if strings.Contains(out, "<script") || strings.Contains(out, "javascript:") {
		t.Fatalf("unsafe markup survived: %q", out)
	}
	if Render("   ") != "" {
		t.Fatal("blank source should render empty")
	}
}

func TestExcerpt(t *testing.T) {
	got := Excerpt("**Bold** opening words and then some more text", 20)
	if got != "Bold opening words…" {
		t.Fatalf("Excerpt = %q", got)
	}
	if Excerpt("short", 20) != "short" {
		t.Fatal("short text should be returned untouched")
	}
}
