package taintfifo

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBootstrapFile(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "addresses.csv")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write bootstrap fixture: %v", err)
	}
	return path
}

func TestLoadBootstrapParsesLines(t *testing.T) {
	path := writeBootstrapFile(t, "aa11,red,100,blue,50")
	colors := NewColorRegistry()

	boot, err := LoadBootstrap(path, colors)
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	if boot.Len() != 1 {
		t.Fatalf("pending = %d, want 1", boot.Len())
	}

	q, ok := boot.Take("aa11")
	if !ok {
		t.Fatalf("expected txid aa11 to be present")
	}
	if q.Sum() != 150 {
		t.Fatalf("sum = %d, want 150", q.Sum())
	}
	if boot.Len() != 0 {
		t.Fatalf("Take should remove the entry, pending = %d", boot.Len())
	}
	if colors.IDFor("red") == CleanColor || colors.IDFor("blue") == CleanColor {
		t.Fatalf("red/blue must not collide with Clean")
	}
}

func TestLoadBootstrapSkipsMalformedLines(t *testing.T) {
	path := writeBootstrapFile(t,
		"aa11,red,100",
		"bad line with no commas",
		"bb22,red,notanumber",
		"cc33,red,1,blue", // odd token count
		"dd44,red,200",
	)
	colors := NewColorRegistry()

	boot, err := LoadBootstrap(path, colors)
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	if boot.Len() != 2 {
		t.Fatalf("pending = %d, want 2 (only aa11 and dd44 well-formed)", boot.Len())
	}
	if _, ok := boot.Take("aa11"); !ok {
		t.Fatalf("expected aa11 to load")
	}
	if _, ok := boot.Take("dd44"); !ok {
		t.Fatalf("expected dd44 to load")
	}
}

func TestLoadBootstrapFirstDuplicateWins(t *testing.T) {
	path := writeBootstrapFile(t,
		"aa11,red,100",
		"aa11,blue,999",
	)
	colors := NewColorRegistry()

	boot, err := LoadBootstrap(path, colors)
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	q, ok := boot.Take("aa11")
	if !ok {
		t.Fatalf("expected aa11 to load")
	}
	if q.Sum() != 100 {
		t.Fatalf("sum = %d, want 100 (first occurrence should win)", q.Sum())
	}
}

func TestLoadBootstrapLowercasesTxid(t *testing.T) {
	path := writeBootstrapFile(t, "AABB,red,10")
	colors := NewColorRegistry()

	boot, err := LoadBootstrap(path, colors)
	if err != nil {
		t.Fatalf("LoadBootstrap: %v", err)
	}
	if _, ok := boot.Take("aabb"); !ok {
		t.Fatalf("expected txid to be normalized to lowercase")
	}
}
