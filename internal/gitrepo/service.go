// Package gitrepo keeps a git history of each document's confirmed snapshots,
// one repository per document with the blocks stored as blocks.json.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"ptedit/api/internal/pt"
)

const (
	contentFile = "blocks.json"
	mainBranch  = "main"
)

// ErrNoRepo reports a document without a history repository.
var ErrNoRepo = errors.New("document repository not found")

// Snapshot is the committed state of a document.
type Snapshot struct {
	Title    string     `json:"title"`
	Revision int64      `json:"revision"`
	Blocks   []pt.Block `json:"-"`
}

type wireSnapshot struct {
	Title    string          `json:"title"`
	Revision int64           `json:"revision"`
	Blocks   json.RawMessage `json:"blocks"`
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Revision  int64     `json:"revision"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
	Changed   int       `json:"changed"`
}

type Service struct {
	baseDir string
	types   pt.Types
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string, types pt.Types) *Service {
	return &Service{
		baseDir: baseDir,
		types:   types,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureDocumentRepo creates the repository for documentID with initial as
// its first commit. An existing repository is left alone.
func (s *Service) EnsureDocumentRepo(documentID string, initial Snapshot, author string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(documentID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	if _, err := s.commit(repo, initial, author, "Create document"); err != nil {
		return err
	}
	return nil
}

// CommitSnapshot records snap on the main branch. changed is false, and no
// commit is made, when the blocks and title equal the head snapshot.
func (s *Service) CommitSnapshot(documentID string, snap Snapshot, author, message string) (info CommitInfo, changed bool, err error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return CommitInfo{}, false, err
	}
	head, err := repo.Head()
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("resolve head: %w", err)
	}
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("load head commit: %w", err)
	}
	prev, err := s.readSnapshot(headCommit)
	if err != nil {
		return CommitInfo{}, false, err
	}
	if !HasChanges(prev, snap) {
		return s.toCommitInfo(headCommit, nil), false, nil
	}

	hash, err := s.commit(repo, snap, author, message)
	if err != nil {
		return CommitInfo{}, false, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return s.toCommitInfo(commitObj, &prev), true, nil
}

// History lists commits from the head back, newest first.
func (s *Service) History(documentID string, limit int) ([]CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		var parent *Snapshot
		if commitObj.NumParents() > 0 {
			p, err := commitObj.Parent(0)
			if err != nil {
				return fmt.Errorf("read parent of %s: %w", commitObj.Hash, err)
			}
			snap, err := s.readSnapshot(p)
			if err != nil {
				return err
			}
			parent = &snap
		}
		items = append(items, s.toCommitInfo(commitObj, parent))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// SnapshotAt returns the snapshot committed at hash, which may be abbreviated.
func (s *Service) SnapshotAt(documentID, hash string) (Snapshot, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Snapshot{}, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return s.readSnapshot(commitObj)
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNoRepo, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, snap Snapshot, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), contentFile), payload, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add snapshot: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@users.ptedit.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit snapshot: %w", err)
	}
	return hash, nil
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	blocks, err := pt.MarshalBlocks(snap.Blocks)
	if err != nil {
		return nil, fmt.Errorf("marshal blocks: %w", err)
	}
	payload, err := json.MarshalIndent(wireSnapshot{Title: snap.Title, Revision: snap.Revision, Blocks: blocks}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(payload, '\n'), nil
}

func (s *Service) readSnapshot(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var wire wireSnapshot
	if err := json.Unmarshal([]byte(contents), &wire); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	blocks, err := pt.UnmarshalBlocks(wire.Blocks, s.types)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot blocks: %w", err)
	}
	return Snapshot{Title: wire.Title, Revision: wire.Revision, Blocks: blocks}, nil
}

// HasChanges reports whether to differs from from in title or content. The
// revision alone does not count.
func HasChanges(from, to Snapshot) bool {
	if from.Title != to.Title {
		return true
	}
	return !reflect.DeepEqual(pt.BlocksValue(from.Blocks), pt.BlocksValue(to.Blocks))
}

// DiffBlocks counts blocks added, removed and changed between two snapshots,
// matching blocks by key.
func DiffBlocks(from, to []pt.Block) (added, removed, changed int) {
	before := make(map[string]pt.Block, len(from))
	for _, block := range from {
		before[block.BlockKey()] = block
	}
	seen := make(map[string]bool, len(to))
	for _, block := range to {
		seen[block.BlockKey()] = true
		prev, ok := before[block.BlockKey()]
		switch {
		case !ok:
			added++
		case !reflect.DeepEqual(prev.Value(), block.Value()):
			changed++
		}
	}
	for key := range before {
		if !seen[key] {
			removed++
		}
	}
	return added, removed, changed
}

func (s *Service) toCommitInfo(commitObj *object.Commit, parent *Snapshot) CommitInfo {
	info := CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
	snap, err := s.readSnapshot(commitObj)
	if err != nil {
		return info
	}
	info.Revision = snap.Revision
	var prev []pt.Block
	if parent != nil {
		prev = parent.Blocks
	}
	info.Added, info.Removed, info.Changed = DiffBlocks(prev, snap.Blocks)
	return info
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
