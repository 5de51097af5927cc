package archive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const githubAPIVersion = "2022-11-28"

// GitHubStore implements Store with the GitHub REST git-data API
type GitHubStore struct {
	apiURL string
	owner  string
	repo   string
	http   *http.Client
}

// NewGitHubStore creates a store for owner/repo authenticated with a bearer token
func NewGitHubStore(ctx context.Context, apiURL, owner, repo, token string, timeout time.Duration) *GitHubStore {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpClient.Timeout = timeout

	return &GitHubStore{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		owner:  owner,
		repo:   repo,
		http:   httpClient,
	}
}

// apiError is a non-2xx response from the API
type apiError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github %s %s returned HTTP %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type shaResponse struct {
	SHA string `json:"sha"`
}

// Head resolves the branch ref and its commit's tree
func (s *GitHubStore) Head(ctx context.Context, branch string) (Head, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := s.do(ctx, http.MethodGet, "/git/ref/heads/"+branch, nil, &ref); err != nil {
		return Head{}, fmt.Errorf("get ref %s: %w", branch, err)
	}

	var commit struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	if err := s.do(ctx, http.MethodGet, "/git/commits/"+ref.Object.SHA, nil, &commit); err != nil {
		return Head{}, fmt.Errorf("get commit %s: %w", ref.Object.SHA, err)
	}

	return Head{CommitSHA: ref.Object.SHA, TreeSHA: commit.Tree.SHA}, nil
}

// ReadFile reads a file through the contents API, falling back to the blobs
// API for files too large to be inlined
func (s *GitHubStore) ReadFile(ctx context.Context, path, ref string) (*File, error) {
	var contents struct {
		Type     string `json:"type"`
		SHA      string `json:"sha"`
		Size     int    `json:"size"`
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	p := "/contents/" + escapePath(path) + "?ref=" + url.QueryEscape(ref)
	if err := s.do(ctx, http.MethodGet, p, nil, &contents); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get contents %s: %w", path, err)
	}
	if contents.Type != "" && contents.Type != "file" {
		return nil, fmt.Errorf("get contents %s: not a file (%s)", path, contents.Type)
	}

	if contents.Encoding == "base64" && (contents.Content != "" || contents.Size == 0) {
		data, err := decodeBase64(contents.Content)
		if err != nil {
			return nil, fmt.Errorf("decode contents %s: %w", path, err)
		}
		return &File{Content: data, SHA: contents.SHA}, nil
	}

	data, err := s.readBlob(ctx, contents.SHA)
	if err != nil {
		return nil, fmt.Errorf("get blob for %s: %w", path, err)
	}
	return &File{Content: data, SHA: contents.SHA}, nil
}

func (s *GitHubStore) readBlob(ctx context.Context, sha string) ([]byte, error) {
	var blob struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := s.do(ctx, http.MethodGet, "/git/blobs/"+sha, nil, &blob); err != nil {
		return nil, err
	}
	if blob.Encoding != "base64" {
		return []byte(blob.Content), nil
	}
	return decodeBase64(blob.Content)
}

// CreateBlob uploads content as a base64 blob
func (s *GitHubStore) CreateBlob(ctx context.Context, content []byte) (string, error) {
	req := map[string]string{
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	}
	var resp shaResponse
	if err := s.do(ctx, http.MethodPost, "/git/blobs", req, &resp); err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	return resp.SHA, nil
}

// CreateTree creates a tree that replaces the given paths in baseTreeSHA
func (s *GitHubStore) CreateTree(ctx context.Context, baseTreeSHA string, entries []TreeEntry) (string, error) {
	type treeItem struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	items := make([]treeItem, len(entries))
	for i, e := range entries {
		items[i] = treeItem{Path: e.Path, Mode: "100644", Type: "blob", SHA: e.BlobSHA}
	}

	req := struct {
		BaseTree string     `json:"base_tree"`
		Tree     []treeItem `json:"tree"`
	}{BaseTree: baseTreeSHA, Tree: items}

	var resp shaResponse
	if err := s.do(ctx, http.MethodPost, "/git/trees", req, &resp); err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}
	return resp.SHA, nil
}

// CreateCommit creates a commit with one parent
func (s *GitHubStore) CreateCommit(ctx context.Context, treeSHA, parentSHA, message string) (string, error) {
	req := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{Message: message, Tree: treeSHA, Parents: []string{parentSHA}}

	var resp shaResponse
	if err := s.do(ctx, http.MethodPost, "/git/commits", req, &resp); err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}
	return resp.SHA, nil
}

// UpdateRef fast-forwards the branch; GitHub rejects the move with 422 when
// the branch no longer contains the commit's parent
func (s *GitHubStore) UpdateRef(ctx context.Context, branch, commitSHA string) error {
	req := struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}{SHA: commitSHA, Force: false}

	if err := s.do(ctx, http.MethodPatch, "/git/refs/heads/"+branch, req, nil); err != nil {
		return fmt.Errorf("update ref %s: %w", branch, err)
	}
	return nil
}

// do sends a request to /repos/{owner}/{repo}{path} and decodes the JSON response into out
func (s *GitHubStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s%s", s.apiURL, s.owner, s.repo, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeBase64 decodes GitHub's line-wrapped base64
func decodeBase64(s string) ([]byte, error) {
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	return base64.StdEncoding.DecodeString(s)
}

// escapePath escapes each segment of a repository path
func escapePath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
