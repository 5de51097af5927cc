// Package testutil provides in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yhlac/wallsyncd/internal/archive"
)

// ErrNonFastForward is returned by UpdateRef when the commit's parent is not
// the current branch head.
var ErrNonFastForward = errors.New("update is not a fast forward")

type commitObject struct {
	tree    string
	parent  string
	message string
}

// ArchiveStore is a content-addressed, in-memory archive.Store. Trees are
// flat path to blob maps.
type ArchiveStore struct {
	mu sync.Mutex

	blobs   map[string][]byte
	trees   map[string]map[string]string
	commits map[string]commitObject
	refs    map[string]string

	// Calls records mutating operations in order: blob, tree, commit, ref
	calls []string
	reads int

	// Fail* inject errors into the matching operation
	FailHead         error
	FailReadFile     error
	FailCreateBlob   error
	FailCreateTree   error
	FailCreateCommit error
	FailUpdateRef    error

	// BeforeUpdateRef runs before the ref is checked, without the lock held
	BeforeUpdateRef func()
}

// NewArchiveStore creates a store whose branch points at an empty root commit
func NewArchiveStore(branch string) *ArchiveStore {
	s := &ArchiveStore{
		blobs:   make(map[string][]byte),
		trees:   make(map[string]map[string]string),
		commits: make(map[string]commitObject),
		refs:    make(map[string]string),
	}
	tree := s.putTree(map[string]string{})
	s.refs[branch] = s.putCommit(commitObject{tree: tree, message: "initial commit"})
	return s
}

// Seed commits files to branch directly, bypassing counters and failure injection
func (s *ArchiveStore) Seed(branch string, files map[string][]byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := s.refs[branch]
	paths := s.copyTree(s.commits[parent].tree)
	for p, content := range files {
		paths[p] = s.putBlob(content)
	}
	sha := s.putCommit(commitObject{tree: s.putTree(paths), parent: parent, message: "seed"})
	s.refs[branch] = sha
	return sha
}

// HeadSHA returns the commit the branch points at
func (s *ArchiveStore) HeadSHA(branch string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[branch]
}

// FileAt returns the content of path as seen from the branch head
func (s *ArchiveStore) FileAt(branch, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.trees[s.commits[s.refs[branch]].tree][path]
	if !ok {
		return nil, false
	}
	return s.blobs[blob], true
}

// CommitMessage returns the message of a commit
func (s *ArchiveStore) CommitMessage(sha string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[sha].message
}

// Calls returns the mutating operations performed so far
func (s *ArchiveStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many times a mutating operation was performed
func (s *ArchiveStore) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Reads returns the number of ReadFile calls
func (s *ArchiveStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// ResetCalls clears the recorded operations
func (s *ArchiveStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.reads = 0
}

func (s *ArchiveStore) Head(_ context.Context, branch string) (archive.Head, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailHead != nil {
		return archive.Head{}, s.FailHead
	}
	sha, ok := s.refs[branch]
	if !ok {
		return archive.Head{}, fmt.Errorf("branch %s not found", branch)
	}
	return archive.Head{CommitSHA: sha, TreeSHA: s.commits[sha].tree}, nil
}

func (s *ArchiveStore) ReadFile(_ context.Context, path, ref string) (*archive.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	if s.FailReadFile != nil {
		return nil, s.FailReadFile
	}
	commit, ok := s.commits[ref]
	if !ok {
		if sha, isBranch := s.refs[ref]; isBranch {
			commit = s.commits[sha]
		} else {
			return nil, fmt.Errorf("ref %s not found", ref)
		}
	}
	blob, ok := s.trees[commit.tree][path]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return &archive.File{Content: append([]byte(nil), s.blobs[blob]...), SHA: blob}, nil
}

func (s *ArchiveStore) CreateBlob(_ context.Context, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "blob")
	if s.FailCreateBlob != nil {
		return "", s.FailCreateBlob
	}
	return s.putBlob(content), nil
}

func (s *ArchiveStore) CreateTree(_ context.Context, baseTreeSHA string, entries []archive.TreeEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "tree")
	if s.FailCreateTree != nil {
		return "", s.FailCreateTree
	}
	if _, ok := s.trees[baseTreeSHA]; !ok {
		return "", fmt.Errorf("base tree %s not found", baseTreeSHA)
	}
	paths := s.copyTree(baseTreeSHA)
	for _, e := range entries {
		if _, ok := s.blobs[e.BlobSHA]; !ok {
			return "", fmt.Errorf("blob %s not found", e.BlobSHA)
		}
		paths[e.Path] = e.BlobSHA
	}
	return s.putTree(paths), nil
}

func (s *ArchiveStore) CreateCommit(_ context.Context, treeSHA, parentSHA, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "commit")
	if s.FailCreateCommit != nil {
		return "", s.FailCreateCommit
	}
	if _, ok := s.trees[treeSHA]; !ok {
		return "", fmt.Errorf("tree %s not found", treeSHA)
	}
	if _, ok := s.commits[parentSHA]; !ok {
		return "", fmt.Errorf("parent %s not found", parentSHA)
	}
	return s.putCommit(commitObject{tree: treeSHA, parent: parentSHA, message: message}), nil
}

func (s *ArchiveStore) UpdateRef(_ context.Context, branch, commitSHA string) error {
	if s.BeforeUpdateRef != nil {
		s.BeforeUpdateRef()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, "ref")
	if s.FailUpdateRef != nil {
		return s.FailUpdateRef
	}
	commit, ok := s.commits[commitSHA]
	if !ok {
		return fmt.Errorf("commit %s not found", commitSHA)
	}
	if commit.parent != s.refs[branch] {
		return ErrNonFastForward
	}
	s.refs[branch] = commitSHA
	return nil
}

func (s *ArchiveStore) copyTree(sha string) map[string]string {
	paths := make(map[string]string, len(s.trees[sha]))
	for p, b := range s.trees[sha] {
		paths[p] = b
	}
	return paths
}

func (s *ArchiveStore) putBlob(content []byte) string {
	sha := hash("blob", content)
	s.blobs[sha] = append([]byte(nil), content...)
	return sha
}

func (s *ArchiveStore) putTree(paths map[string]string) string {
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, p := range keys {
		fmt.Fprintf(&b, "%s %s\n", paths[p], p)
	}
	sha := hash("tree", []byte(b.String()))
	s.trees[sha] = paths
	return sha
}

func (s *ArchiveStore) putCommit(c commitObject) string {
	sha := hash("commit", []byte(c.tree+"\n"+c.parent+"\n"+c.message))
	s.commits[sha] = c
	return sha
}

func hash(kind string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
