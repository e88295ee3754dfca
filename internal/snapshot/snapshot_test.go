package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"ScriptForge/internal/state"
)

func TestFileSinkWrite(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	project := state.NewProject()
	project.Plan = "step one"
	project.AppendChunk("print('hi')")

	if err := sink.Write(project); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var decoded state.Project
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("snapshot is not valid json: %v", err)
	}
	if decoded.Plan != "step one" {
		t.Fatalf("unexpected plan: %q", decoded.Plan)
	}
	if decoded.CodeChunks["chunk_1"] != "print('hi')" {
		t.Fatalf("chunk missing from snapshot: %+v", decoded.CodeChunks)
	}
}

func TestFileSinkOverwrites(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	project := state.NewProject()
	project.Plan = "first"
	if err := sink.Write(project); err != nil {
		t.Fatal(err)
	}
	project.Plan = "second"
	if err := sink.Write(project); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(sink.Path())
	if err != nil {
		t.Fatal(err)
	}
	var decoded state.Project
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Plan != "second" {
		t.Fatalf("snapshot not overwritten: %q", decoded.Plan)
	}
}

func TestNewFileSinkCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := sink.Write(state.NewProject()); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestNewFileSinkEmptyDir(t *testing.T) {
	if _, err := NewFileSink(""); err == nil {
		t.Fatal("expected error for empty directory")
	}
}
