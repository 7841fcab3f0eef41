package debate

import (
	"os"
	"path/filepath"
	"testing"
)

func writePromptFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestPromptLibrary_LoadsAndDescribes(t *testing.T) {
	dir := t.TempDir()
	writePromptFile(t, dir, "optimist.txt", "Always looks on the bright side.\nFull system prompt body follows.")
	writePromptFile(t, dir, "consensus_check.txt", "Judges whether the debate has converged.")
	writePromptFile(t, dir, "synthesizer.txt", "Synthesizes the final answer.")
	writePromptFile(t, dir, "README.md", "not a prompt")

	lib := NewPromptLibrary(dir)

	prompt, ok := lib.Prompt("optimist")
	if !ok {
		t.Fatal("expected optimist prompt to be found")
	}
	if prompt != "Always looks on the bright side.\nFull system prompt body follows." {
		t.Errorf("unexpected prompt body: %q", prompt)
	}

	all := lib.List(false)
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3 (README.md must be ignored)", len(all))
	}

	debateOnly := lib.List(true)
	if len(debateOnly) != 1 {
		t.Fatalf("len(debateOnly) = %d, want 1", len(debateOnly))
	}
	if debateOnly[0].Name != "optimist" {
		t.Errorf("debateOnly[0].Name = %q, want optimist", debateOnly[0].Name)
	}
}

func TestPromptLibrary_MissingDirectoryIsEmpty(t *testing.T) {
	lib := NewPromptLibrary(filepath.Join(t.TempDir(), "does-not-exist"))

	if _, ok := lib.Prompt("anything"); ok {
		t.Error("expected no prompt from a missing directory")
	}
	if got := lib.List(false); len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}

func TestPromptLibrary_DescriptionTruncation(t *testing.T) {
	dir := t.TempDir()
	long := ""
	for i := 0; i < 250; i++ {
		long += "x"
	}
	writePromptFile(t, dir, "verbose.txt", long+"\nrest of prompt")

	lib := NewPromptLibrary(dir)
	infos := lib.List(false)
	if len(infos) != 1 {
		t.Fatalf("expected 1 personality, got %d", len(infos))
	}
	if len(infos[0].Description) != descriptionTruncation+len("...") {
		t.Errorf("Description length = %d, want %d", len(infos[0].Description), descriptionTruncation+len("..."))
	}
}
