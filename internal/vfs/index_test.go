package vfs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFolderDescent(t *testing.T) {
	root := newFolder()

	created, err := root.folder("a/b/c", true, false)
	if err != nil {
		t.Fatalf("folder(create) failed: %v", err)
	}
	if created.Type != TypeFolder {
		t.Fatalf("created entry is %q", created.Type)
	}

	again, err := root.folder("a/b/c", false, false)
	if err != nil {
		t.Fatalf("folder(resolve) failed: %v", err)
	}
	if again != created {
		t.Error("resolve returned a different node")
	}

	if _, err := root.folder("a/missing", false, false); !errors.Is(err, ErrMissingFolder) {
		t.Errorf("missing folder = %v, want ErrMissingFolder", err)
	}
	soft, err := root.folder("a/missing", false, true)
	if err != nil || soft != nil {
		t.Errorf("soft fail = (%v, %v), want (nil, nil)", soft, err)
	}

	created.Contents["file.txt"] = newFile("h1")
	if _, err := root.folder("a/b/c/file.txt", false, false); !errors.Is(err, ErrFolderIsFile) {
		t.Errorf("descent through file = %v, want ErrFolderIsFile", err)
	}
	if _, err := root.folder("a/b/c/file.txt/deeper", true, false); !errors.Is(err, ErrFolderIsFile) {
		t.Errorf("create through file = %v, want ErrFolderIsFile", err)
	}
}

func TestFindByHash(t *testing.T) {
	root := newFolder()
	sub, _ := root.folder("docs", true, false)
	root.Contents["a.txt"] = newFile("h1")
	sub.Contents["b.txt"] = newFile("h1")
	sub.Contents["c.txt"] = newFile("h2")

	if _, ok := root.findByHash("h2", "", nil); !ok {
		t.Error("h2 not found")
	}
	if _, ok := root.findByHash("h3", "", nil); ok {
		t.Error("phantom hash found")
	}

	// Both references excluded: the hash is effectively orphaned.
	if _, ok := root.findByHash("h1", "", []string{"a.txt", "docs/b.txt"}); ok {
		t.Error("excluded paths still matched")
	}
	if p, ok := root.findByHash("h2", "", nil); !ok || p != "docs/c.txt" {
		t.Errorf("findByHash(h2) = (%q, %v), want docs/c.txt", p, ok)
	}
}

func TestNormalizeRepairsDecodedFolders(t *testing.T) {
	raw := `{"type":"folder","contents":{"empty":{"type":"folder"},"f":{"type":"file","hash":"h"}}}`
	index := &Entry{}
	if err := json.Unmarshal([]byte(raw), index); err != nil {
		t.Fatal(err)
	}
	index.normalize()
	if index.Contents["empty"].Contents == nil {
		t.Error("nested empty folder has nil contents after normalize")
	}
}

func TestSplitParent(t *testing.T) {
	cases := []struct{ in, parent, leaf string }{
		{"a.txt", "", "a.txt"},
		{"dir/a.txt", "dir", "a.txt"},
		{"a/b/c.txt", "a/b", "c.txt"},
	}
	for _, c := range cases {
		parent, leaf := splitParent(c.in)
		if parent != c.parent || leaf != c.leaf {
			t.Errorf("splitParent(%q) = (%q, %q), want (%q, %q)", c.in, parent, leaf, c.parent, c.leaf)
		}
	}
}

func TestJoinPaths(t *testing.T) {
	if got := JoinPaths("a", "", "b", "c"); got != "a/b/c" {
		t.Errorf("JoinPaths = %q, want a/b/c", got)
	}
	if got := JoinPaths(); got != "" {
		t.Errorf("JoinPaths() = %q, want empty", got)
	}
}
