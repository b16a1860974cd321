package spaces

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	file, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if file.Version != 1 || file.Spaces == nil {
		t.Errorf("file = %+v", file)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spaces.json")
	in := File{Spaces: map[string]string{"trading": "ca8b447a-4d33-4936-a3e5-a9d31b789cb3"}}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.Version != 1 {
		t.Errorf("version = %d", out.Version)
	}
	if out.Spaces["trading"] != "ca8b447a-4d33-4936-a3e5-a9d31b789cb3" {
		t.Errorf("spaces = %v", out.Spaces)
	}

	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("no backup written: %v", err)
	}
}

func TestLoadUnparseableDegrades(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spaces.json")
	if err := os.WriteFile(path, []byte("{{{{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	file, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(file.Spaces) != 0 {
		t.Errorf("spaces = %v", file.Spaces)
	}
}

func TestResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spaces.json")
	if err := Add(path, "research", "d2b9558b-1111-4222-8333-444455556666"); err != nil {
		t.Fatal(err)
	}

	if got, ok := Resolve(path, "research"); !ok || got != "d2b9558b-1111-4222-8333-444455556666" {
		t.Errorf("Resolve(name) = (%q, %v)", got, ok)
	}
	if got, ok := Resolve(path, "ca8b447a-4d33-4936-a3e5-a9d31b789cb3"); !ok || got != "ca8b447a-4d33-4936-a3e5-a9d31b789cb3" {
		t.Errorf("Resolve(uuid) = (%q, %v)", got, ok)
	}
	if _, ok := Resolve(path, "unknown"); ok {
		t.Error("unknown name resolved")
	}
	if _, ok := Resolve(path, ""); ok {
		t.Error("empty identifier resolved")
	}
}

func TestNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spaces.json")
	Add(path, "zeta", "ca8b447a-4d33-4936-a3e5-a9d31b789cb3")
	Add(path, "alpha", "d2b9558b-1111-4222-8333-444455556666")
	names := Names(path)
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("names = %v", names)
	}
}
