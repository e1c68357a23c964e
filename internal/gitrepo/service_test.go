package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"ptedit/api/internal/pt"
)

func textBlock(key, text string) *pt.TextBlock {
	return &pt.TextBlock{
		Key: key, Type: "block", Style: "normal", MarkDefs: []pt.MarkDef{},
		Children: []pt.Child{&pt.Span{Key: key + "0", Type: "span", Text: text, Marks: []string{}}},
	}
}

func TestDocumentRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir, pt.DefaultTypes())

	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "Doc"}, "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	next := Snapshot{Title: "Doc", Revision: 3, Blocks: []pt.Block{textBlock("a", "hello"), textBlock("b", "world")}}
	commit, changed, err := svc.CommitSnapshot("doc-1", next, "Avery", "Close session")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if !changed || commit.Hash == "" {
		t.Fatalf("commit = %+v changed=%v", commit, changed)
	}
	if commit.Added != 2 || commit.Revision != 3 {
		t.Fatalf("commit stats = %+v", commit)
	}

	history, err := svc.History("doc-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != commit.Hash {
		t.Fatalf("history = %+v", history)
	}

	got, err := svc.SnapshotAt("doc-1", commit.Hash)
	if err != nil {
		t.Fatalf("SnapshotAt() error = %v", err)
	}
	if !reflect.DeepEqual(pt.BlocksValue(got.Blocks), pt.BlocksValue(next.Blocks)) {
		t.Fatalf("blocks mismatch after round-trip: %#v", pt.BlocksValue(got.Blocks))
	}

	initial, err := svc.SnapshotAt("doc-1", history[1].Hash)
	if err != nil {
		t.Fatalf("SnapshotAt(initial) error = %v", err)
	}
	if initial.Blocks != nil {
		t.Fatalf("initial snapshot blocks = %#v, want undefined", initial.Blocks)
	}
}

func TestUnchangedSnapshotIsNotCommitted(t *testing.T) {
	svc := New(t.TempDir(), pt.DefaultTypes())
	snap := Snapshot{Title: "Doc", Revision: 1, Blocks: []pt.Block{textBlock("a", "same")}}
	if err := svc.EnsureDocumentRepo("doc-1", snap, "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}
	snap.Revision = 2
	_, changed, err := svc.CommitSnapshot("doc-1", snap, "Avery", "No-op")
	if err != nil {
		t.Fatalf("CommitSnapshot() error = %v", err)
	}
	if changed {
		t.Fatal("revision-only change was committed")
	}
	history, _ := svc.History("doc-1", 0)
	if len(history) != 1 {
		t.Fatalf("history has %d commits, want 1", len(history))
	}
}

func TestMissingRepo(t *testing.T) {
	svc := New(t.TempDir(), pt.DefaultTypes())
	if _, err := svc.History("nope", 10); !errors.Is(err, ErrNoRepo) {
		t.Fatalf("History() error = %v, want ErrNoRepo", err)
	}
}

func TestDiffBlocks(t *testing.T) {
	from := []pt.Block{textBlock("a", "one"), textBlock("b", "two"), textBlock("c", "three")}
	to := []pt.Block{textBlock("a", "one"), textBlock("b", "2"), textBlock("d", "four")}
	added, removed, changed := DiffBlocks(from, to)
	if added != 1 || removed != 1 || changed != 1 {
		t.Fatalf("DiffBlocks = %d/%d/%d, want 1/1/1", added, removed, changed)
	}
}

func TestConcurrentCommitSnapshot(t *testing.T) {
	svc := New(t.TempDir(), pt.DefaultTypes())
	if err := svc.EnsureDocumentRepo("doc-1", Snapshot{Title: "Doc"}, "Avery"); err != nil {
		t.Fatalf("EnsureDocumentRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			snap := Snapshot{Title: "Doc", Revision: int64(idx + 1), Blocks: []pt.Block{textBlock("a", fmt.Sprintf("text-%02d", idx))}}
			if _, _, err := svc.CommitSnapshot("doc-1", snap, "Avery", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("CommitSnapshot() concurrent error = %v", err)
	}

	history, err := svc.History("doc-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits in history, got %d", writers+1, len(history))
	}
}
