package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := map[string]any{"run_id": "20250101_120000", "readyList": []any{"a/b", "c/d"}}
	if err := s.Write("20250101_120000", "00_ready.json", in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out map[string]any
	if err := s.Read("20250101_120000", "00_ready.json", &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out["run_id"] != "20250101_120000" {
		t.Fatalf("run_id: %v", out["run_id"])
	}
	list, ok := out["readyList"].([]any)
	if !ok || len(list) != 2 || list[0] != "a/b" {
		t.Fatalf("readyList: %v", out["readyList"])
	}
}

func TestStore_ReadMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	var out map[string]any
	err := s.Read("20250101_120000", "01_inputs.json", &out)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound should be true")
	}
}

func TestStore_ReadCorruptJSON(t *testing.T) {
	s := newTestStore(t)
	dir, err := s.EnsureDir("run1")
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stats.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string]any
	err = s.Read("run1", "stats.json", &out)
	var ce *CorruptError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptError, got %v", err)
	}
}

func TestStore_BuildDirRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"../etc", "a/b", "", "a b", "run\x00id", ".."} {
		if _, err := s.BuildDir(id); err == nil {
			t.Fatalf("BuildDir(%q) should fail", id)
		} else {
			var bad *BadRunIDError
			if !errors.As(err, &bad) {
				t.Fatalf("BuildDir(%q): expected BadRunIDError, got %v", id, err)
			}
		}
	}
}

func TestStore_BuildDirAcceptsSafeIDs(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"20250101_120000", "api_speedy_20250101_120000", "run-1_A"} {
		dir, err := s.BuildDir(id)
		if err != nil {
			t.Fatalf("BuildDir(%q): %v", id, err)
		}
		if !strings.HasPrefix(dir, s.Root()) {
			t.Fatalf("dir %q escapes root %q", dir, s.Root())
		}
	}
}

func TestStore_WriteRejectsBadArtifactName(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "../x.json", "sub/x.json", ".hidden"} {
		if err := s.Write("run1", name, map[string]any{}); err == nil {
			t.Fatalf("Write(%q) should fail", name)
		}
	}
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write("run1", "01_inputs.json", map[string]string{"QUERY": "q"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	names, err := s.List("run1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "01_inputs.json" {
		t.Fatalf("List: %v", names)
	}
}

func TestStore_WriteOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)
	if err := s.Write("run1", "status.json", map[string]int{"progress": 10}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write("run1", "status.json", map[string]int{"progress": 50}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	var out map[string]int
	if err := s.Read("run1", "status.json", &out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out["progress"] != 50 {
		t.Fatalf("progress: %d", out["progress"])
	}
}

func TestStore_ListSorted(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"04_meta.json", "00_ready.json", "stats.json", "01_inputs.json"} {
		if err := s.Write("run1", name, map[string]any{}); err != nil {
			t.Fatalf("Write %s: %v", name, err)
		}
	}
	names, err := s.List("run1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"00_ready.json", "01_inputs.json", "04_meta.json", "stats.json"}
	if len(names) != len(want) {
		t.Fatalf("List: %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("List[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
