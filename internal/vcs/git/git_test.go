package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spoolhq/spool/internal/vcs"
)

// setupTestRepo creates a temporary git repository for testing.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init", "-b", "main")
	run(t, dir, "config", "user.name", "Test User")
	run(t, dir, "config", "user.email", "test@example.com")
	return dir
}

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
	return string(out)
}

func writeAndCommit(t *testing.T, dir, path, content, message string) {
	t.Helper()
	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", path)
	run(t, dir, "commit", "-m", message)
}

func TestNew(t *testing.T) {
	dir := setupTestRepo(t)
	repo, err := New(dir)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if repo.Root() == "" {
		t.Error("Root() is empty")
	}
	if filepath.Base(repo.CommonDir()) != ".git" {
		t.Errorf("CommonDir() = %q, want a .git directory", repo.CommonDir())
	}
}

func TestNewOutsideRepo(t *testing.T) {
	if _, err := New(t.TempDir()); err == nil {
		t.Error("New() outside a repository succeeded")
	}
}

func TestBranchLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "README.md", "hello\n", "initial")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	if repo.BranchExists(ctx, "feature") {
		t.Fatal("branch exists before creation")
	}
	if err := repo.CreateBranch(ctx, "feature", ""); err != nil {
		t.Fatalf("CreateBranch() failed: %v", err)
	}
	if !repo.BranchExists(ctx, "feature") {
		t.Fatal("branch missing after creation")
	}

	branches, err := repo.ListBranches(ctx)
	if err != nil {
		t.Fatalf("ListBranches() failed: %v", err)
	}
	if len(branches) != 2 {
		t.Errorf("ListBranches() = %v, want 2 branches", branches)
	}

	if err := repo.DeleteBranch(ctx, "feature", false); err != nil {
		t.Fatalf("DeleteBranch() failed: %v", err)
	}
	if repo.BranchExists(ctx, "feature") {
		t.Error("branch still exists after deletion")
	}
}

func TestReadAtRevision(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "notes/a.md", "version one\n", "first")
	writeAndCommit(t, dir, "notes/a.md", "version two\n", "second")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	data, err := repo.ReadAtRevision(ctx, "HEAD~1", "notes/a.md")
	if err != nil {
		t.Fatalf("ReadAtRevision() failed: %v", err)
	}
	if string(data) != "version one\n" {
		t.Errorf("content at HEAD~1 = %q", data)
	}

	_, err = repo.ReadAtRevision(ctx, "HEAD", "notes/missing.md")
	if !errors.Is(err, vcs.ErrAbsent) {
		t.Errorf("missing path: err = %v, want ErrAbsent", err)
	}
}

func TestListAtRevision(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "notes/a.md", "a\n", "add a")
	writeAndCommit(t, dir, "notes/b.md", "b\n", "add b")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	paths, err := repo.ListAtRevision(ctx, "HEAD", "notes")
	if err != nil {
		t.Fatalf("ListAtRevision() failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("paths = %v, want 2 entries", paths)
	}

	empty, err := repo.ListAtRevision(ctx, "HEAD", "nonexistent")
	if err != nil {
		t.Fatalf("ListAtRevision() on absent dir failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("absent dir listed %v", empty)
	}
}

func TestCommitWithIsolatedIndex(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "README.md", "hello\n", "initial")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Stage something in the primary index but do not commit it.
	if err := os.WriteFile(filepath.Join(dir, "staged.txt"), []byte("staged\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", "staged.txt")

	// Commit a different file through an isolated index.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("other\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	idx, err := vcs.NewIndexHandle(repo.IndexDir())
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Release()
	if err := repo.AddAll(ctx, idx); err != nil {
		t.Fatalf("AddAll() failed: %v", err)
	}
	hash, err := repo.Commit(ctx, idx, "isolated commit")
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if hash == "" {
		t.Fatal("Commit() reported nothing to commit")
	}

	// The primary index must still hold the staged-but-uncommitted file.
	out := run(t, dir, "ls-files", "--", "staged.txt")
	if out == "" {
		t.Error("primary index was disturbed by the isolated commit")
	}
}

func TestCommitNothingToCommit(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "README.md", "hello\n", "initial")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	idx, err := vcs.NewIndexHandle(repo.IndexDir())
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Release()
	if err := repo.AddAll(ctx, idx); err != nil {
		t.Fatal(err)
	}
	hash, err := repo.Commit(ctx, idx, "noop")
	if err != nil {
		t.Fatalf("Commit() on clean tree failed: %v", err)
	}
	if hash != "" {
		t.Errorf("Commit() = %q, want empty hash for clean tree", hash)
	}
}

func TestMergeBaseUnrelatedHistories(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "README.md", "hello\n", "initial")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	seed, err := repo.CommitEmptyTree(ctx, "orphan seed")
	if err != nil {
		t.Fatalf("CommitEmptyTree() failed: %v", err)
	}
	base, err := repo.MergeBase(ctx, "HEAD", seed)
	if err != nil {
		t.Fatalf("MergeBase() failed: %v", err)
	}
	if base != "" {
		t.Errorf("MergeBase() = %q, want empty for unrelated histories", base)
	}
}

func TestRevListCounts(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "README.md", "hello\n", "initial")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.CreateBranch(ctx, "other", ""); err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, dir, "README.md", "hello again\n", "advance main")

	ahead, behind, err := repo.RevListCounts(ctx, "HEAD", "other")
	if err != nil {
		t.Fatalf("RevListCounts() failed: %v", err)
	}
	if ahead != 1 || behind != 0 {
		t.Errorf("RevListCounts() = (%d, %d), want (1, 0)", ahead, behind)
	}
}

func TestPushClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "README.md", "hello\n", "initial")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	// A remote whose pre-receive hook rejects with a permission message.
	remoteDir := t.TempDir()
	run(t, remoteDir, "init", "--bare")
	hook := filepath.Join(remoteDir, "hooks", "pre-receive")
	script := "#!/bin/sh\necho 'permission denied' >&2\nexit 1\n"
	if err := os.WriteFile(hook, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "remote", "add", "origin", remoteDir)

	err = repo.Push(ctx, "origin", "main")
	if err == nil {
		t.Fatal("Push() against rejecting remote succeeded")
	}
	var pe *vcs.PushError
	if !errors.As(err, &pe) {
		t.Fatalf("Push() error = %T, want *vcs.PushError", err)
	}
	if pe.Class != vcs.ClassPermanent {
		t.Errorf("failure class = %v, want permanent\noutput:\n%s", pe.Class, pe.Output)
	}
}

func TestWorktreeLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := setupTestRepo(t)
	writeAndCommit(t, dir, "README.md", "hello\n", "initial")
	repo, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	wtPath := filepath.Join(repo.CommonDir(), "spool", "worktrees", "side")
	if err := repo.AddWorktreeNewBranch(ctx, wtPath, "side", ""); err != nil {
		t.Fatalf("AddWorktreeNewBranch() failed: %v", err)
	}

	infos, err := repo.ListWorktrees(ctx)
	if err != nil {
		t.Fatalf("ListWorktrees() failed: %v", err)
	}
	found := false
	for _, info := range infos {
		if info.Branch == "side" {
			found = true
		}
	}
	if !found {
		t.Errorf("worktree for side branch not listed: %+v", infos)
	}

	if err := repo.RemoveWorktree(ctx, wtPath, true); err != nil {
		t.Fatalf("RemoveWorktree() failed: %v", err)
	}
}
