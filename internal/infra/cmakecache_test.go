package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCache(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "CMakeCache.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCMakeCache_Parse(t *testing.T) {
	dir := t.TempDir()
	path := writeCache(t, dir, `# This is the CMakeCache file.
// For build in directory: /tmp/build

CMAKE_GENERATOR:INTERNAL=Ninja
CMAKE_CXX_FLAGS_DEBUG:STRING=-g
IDF_TARGET:STRING=esp32
EMPTY_VALUE:STRING=
not a cache line
IDF_TARGET:STRING=esp32s3
`)

	cache := NewCMakeCache()
	snapshot, err := cache.Parse(path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if v, _ := snapshot.Get("CMAKE_GENERATOR"); v != "Ninja" {
		t.Errorf("expected generator Ninja, got %q", v)
	}
	if v, _ := snapshot.Get("CMAKE_CXX_FLAGS_DEBUG"); v != "-g" {
		t.Errorf("expected -g, got %q", v)
	}
	// Last line for a duplicate key wins.
	if v, _ := snapshot.Get("IDF_TARGET"); v != "esp32s3" {
		t.Errorf("expected esp32s3, got %q", v)
	}
	if v, ok := snapshot.Get("EMPTY_VALUE"); !ok || v != "" {
		t.Errorf("expected empty value present, got %q ok=%v", v, ok)
	}
	if _, ok := snapshot.Get("not a cache line"); ok {
		t.Error("malformed line should be ignored")
	}
	if snapshot["CMAKE_GENERATOR"].Type != "INTERNAL" {
		t.Errorf("type tag should be carried through, got %q", snapshot["CMAKE_GENERATOR"].Type)
	}
}

func TestCMakeCache_ParseMissingFile(t *testing.T) {
	cache := NewCMakeCache()
	snapshot, err := cache.Parse(filepath.Join(t.TempDir(), "CMakeCache.txt"))
	if err != nil {
		t.Fatalf("missing file should yield empty snapshot, got %v", err)
	}
	if len(snapshot) != 0 {
		t.Errorf("expected empty snapshot, got %d entries", len(snapshot))
	}
}

func TestStripQuotes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{`plain`, "plain"},
		{`trailing   `, "trailing"},
		{`"inner 'quotes'"`, "inner 'quotes'"},
		{`""`, ""},
		{``, ""},
		{`"unbalanced`, `"unbalanced`},
	}
	for _, c := range cases {
		if got := StripQuotes(c.in); got != c.want {
			t.Errorf("StripQuotes(%q) = %q, want %q", c.in, got, c.want)
		}
		// De-quoting is idempotent.
		if got := StripQuotes(StripQuotes(c.in)); got != c.want {
			t.Errorf("StripQuotes not idempotent for %q: got %q", c.in, got)
		}
	}
}

func TestCMakeCache_WouldChange(t *testing.T) {
	dir := t.TempDir()
	path := writeCache(t, dir, `IDF_TARGET:STRING=esp32
CCACHE_ENABLE:UNINITIALIZED=1
HOME:PATH=/home/user
`)
	cache := NewCMakeCache()

	cases := []struct {
		name    string
		entries []string
		want    bool
	}{
		{"no entries", nil, false},
		{"matching entry", []string{"IDF_TARGET=esp32"}, false},
		{"matching quoted entry", []string{`IDF_TARGET="esp32"`}, false},
		{"all matching", []string{"IDF_TARGET=esp32", "CCACHE_ENABLE=1"}, false},
		{"changed value", []string{"IDF_TARGET=esp32s3"}, true},
		{"absent key", []string{"NEW_KEY=1"}, true},
		{"one differs among matches", []string{"IDF_TARGET=esp32", "CCACHE_ENABLE=0"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := cache.WouldChange(path, c.entries)
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("WouldChange(%v) = %v, want %v", c.entries, got, c.want)
			}
		})
	}
}

func TestCMakeCache_WouldChangeMissingCache(t *testing.T) {
	cache := NewCMakeCache()
	got, err := cache.WouldChange(filepath.Join(t.TempDir(), "CMakeCache.txt"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("missing cache must always report a change")
	}
}
