package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

func TestIsWildcardNameMatched(t *testing.T) {
	cases := []struct {
		wildcard, name string
		want           bool
	}{
		{"*", "anything.json", true},
		{"alice*", "alice.json", true},
		{"alice*", "alice_archive.json", true},
		{"alice*", "bob.json", false},
		{"*.json", "alice.json", true},
		{"*.json", "alice.txt", false},
		{"alice", "alice", true},
		{"alice", "alicia", false},
		{"a*c", "abc", true},
		{"a*c", "abbbc", true},
		{"a*c", "ab", false},
	}
	for _, c := range cases {
		got := isWildcardNameMatched(c.wildcard, c.name)
		if got != c.want {
			t.Errorf("isWildcardNameMatched(%q, %q) = %v, want %v", c.wildcard, c.name, got, c.want)
		}
	}
}

func writeSource(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".webm"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveSourcePathsLiteralAndWildcard(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "alice")
	writeSource(t, dir, "bob")

	paths, err := resolveSourcePaths(dir, []string{"alice.json"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "alice.json" {
		t.Errorf("got %v", paths)
	}

	paths, err = resolveSourcePaths(dir, []string{"*.json"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Errorf("got %v, want 2 entries", paths)
	}
}

func TestResolveSourcePathsExcluded(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "alice")
	writeSource(t, dir, "bob")

	paths, err := resolveSourcePaths(dir, []string{"*.json"}, []string{"bob.json"})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "alice.json" {
		t.Errorf("got %v", paths)
	}
}

func TestResolveSourcePathsRejectsEscapeFromBase(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSource(t, filepath.Dir(dir), "outside")

	_, err := resolveSourcePaths(sub, []string{"../../outside.json"}, nil)
	if err == nil {
		t.Fatal("expected an error for a path escaping the base dir")
	}
}

func TestResolveSourcePathsMissingMediaFileRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "orphan.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := resolveSourcePaths(dir, []string{"orphan.json"}, nil)
	if err == nil {
		t.Fatal("expected an error for a source json with no sibling media file")
	}
}

func TestResolveSourceAndMediaPathPairsProbes(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "alice")

	probe := func(mediaPath string) (domain.SourceInfo, error) {
		return domain.SourceInfo{ID: "alice"}, nil
	}
	infos, paths, err := ResolveSourceAndMediaPathPairs(dir, []string{"alice.json"}, nil, probe)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != "alice" || len(paths) != 1 {
		t.Errorf("got infos=%v paths=%v", infos, paths)
	}
}
