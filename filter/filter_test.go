package filter

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyFilterAdmitsAll(t *testing.T) {
	for _, f := range []*Filter{nil, New()} {
		if !f.Match(File{Path: "anything/at/all.bin"}) {
			t.Error("empty filter rejected a file")
		}
	}
}

func TestIncludeExclude(t *testing.T) {
	tests := []struct {
		name string
		f    *Filter
		path string
		want bool
	}{
		{"include by extension", New(Include("*.txt")), "notes.txt", true},
		{"include matches base name of nested file", New(Include("*.txt")), "deep/dir/notes.txt", true},
		{"include rejects others", New(Include("*.txt")), "image.png", false},
		{"exclude wins over include", New(Include("*.txt"), Exclude("draft*")), "draft-1.txt", false},
		{"exclude alone", New(Exclude("*.tmp")), "cache.tmp", false},
		{"exclude alone admits rest", New(Exclude("*.tmp")), "cache.dat", true},
		{"full path pattern", New(Include("en/*.txt")), "en/words.txt", true},
		{"full path pattern misses other dirs", New(Include("en/*.txt")), "fr/words.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Match(File{Path: tt.path}); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSizeBounds(t *testing.T) {
	f := New(MinSize(10), MaxSize(100))
	if f.Match(File{Path: "small", Size: 5}) {
		t.Error("file below MinSize admitted")
	}
	if f.Match(File{Path: "big", Size: 500}) {
		t.Error("file above MaxSize admitted")
	}
	if !f.Match(File{Path: "ok", Size: 50}) {
		t.Error("file within bounds rejected")
	}
}

func TestAgeBounds(t *testing.T) {
	now := time.Now()
	f := New(MinAge(time.Hour))
	if f.Match(File{Path: "fresh", ModTime: now}) {
		t.Error("file newer than MinAge admitted")
	}
	if !f.Match(File{Path: "settled", ModTime: now.Add(-2 * time.Hour)}) {
		t.Error("old enough file rejected")
	}

	f = New(MaxAge(time.Hour))
	if f.Match(File{Path: "stale", ModTime: now.Add(-2 * time.Hour)}) {
		t.Error("file older than MaxAge admitted")
	}
}

func TestMatchPathIgnoresBounds(t *testing.T) {
	f := New(Include("*.txt"), MinSize(1000))
	if !f.MatchPath("notes.txt") {
		t.Error("MatchPath applied the size bound")
	}
	if f.MatchPath("image.png") {
		t.Error("MatchPath ignored the pattern")
	}
}

func TestFromFile(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules")
	content := `
# corpora only
+ *.txt
- draft*
*.bak
`
	if err := os.WriteFile(rules, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	opt, err := FromFile(rules)
	if err != nil {
		t.Fatal(err)
	}
	f := New(opt)

	if !f.Match(File{Path: "words.txt"}) {
		t.Error("included file rejected")
	}
	if f.Match(File{Path: "draft.txt"}) {
		t.Error("excluded file admitted")
	}
	if f.Match(File{Path: "old.bak"}) {
		t.Error("bare-line exclude ignored")
	}
	if f.Match(File{Path: "image.png"}) {
		t.Error("file outside includes admitted")
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("expected an error for a missing rules file")
	}
}

func TestIsEmpty(t *testing.T) {
	if New(Include("*")).IsEmpty() {
		t.Error("filter with rules reported empty")
	}
	if !New().IsEmpty() {
		t.Error("zero filter reported non-empty")
	}
}
