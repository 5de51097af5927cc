// Package archive commits wallpaper artifacts to a content-addressed,
// version-controlled store as a single atomic ref move.
package archive

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.ReadFile when no file exists at the path.
var ErrNotFound = errors.New("file not found")

// Head is the current state of a branch
type Head struct {
	CommitSHA string
	TreeSHA   string
}

// File is the content currently stored at a path
type File struct {
	Content []byte
	SHA     string
}

// TreeEntry places a blob at a path in a new tree
type TreeEntry struct {
	Path    string
	BlobSHA string
}

// Store is the low-level content-addressed API the committer builds on.
// Objects created by CreateBlob, CreateTree and CreateCommit are invisible
// to readers until UpdateRef moves the branch.
type Store interface {
	// Head resolves a branch to its commit and root tree
	Head(ctx context.Context, branch string) (Head, error)
	// ReadFile reads the file at path as of ref, or returns ErrNotFound
	ReadFile(ctx context.Context, path, ref string) (*File, error)
	// CreateBlob stores content and returns its sha
	CreateBlob(ctx context.Context, content []byte) (string, error)
	// CreateTree creates a tree on top of baseTreeSHA replacing only the given paths
	CreateTree(ctx context.Context, baseTreeSHA string, entries []TreeEntry) (string, error)
	// CreateCommit creates a commit with a single parent
	CreateCommit(ctx context.Context, treeSHA, parentSHA, message string) (string, error)
	// UpdateRef moves the branch to commitSHA; it must refuse non-fast-forward moves
	UpdateRef(ctx context.Context, branch, commitSHA string) error
}
