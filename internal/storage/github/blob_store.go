// Package github stores batch artifacts as files in a GitHub repository via
// the contents API.
package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	ghapi "github.com/JakeFAU/kgr-crawler/internal/github"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// Config selects the branch artifacts are committed to.
type Config struct {
	Branch        string `mapstructure:"branch"`
	CommitMessage string `mapstructure:"commit_message"`
}

// BlobStore reads and writes repository files.
type BlobStore struct {
	client *ghapi.Client
	branch string
	msg    string
}

type contentFile struct {
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
	HTMLURL     string `json:"html_url"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content contentFile `json:"content"`
}

// New wraps a GitHub client.
func New(client *ghapi.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("github client is required")
	}
	msg := cfg.CommitMessage
	if msg == "" {
		msg = "Add keyword results"
	}
	return &BlobStore{client: client, branch: cfg.Branch, msg: msg}, nil
}

// PutObject creates or replaces a file and returns its download URL.
func (s *BlobStore) PutObject(ctx context.Context, path string, _ string, body io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	req := putRequest{
		Message: s.msg + ": " + path,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  s.branch,
	}
	existing, err := s.stat(ctx, path)
	switch {
	case err == nil:
		req.SHA = existing.SHA
	case !errors.Is(err, keyword.ErrArtifactNotFound):
		return "", err
	}
	var resp putResponse
	if err := s.client.Do(ctx, http.MethodPut, s.contentsPath(path, false), req, &resp); err != nil {
		return "", fmt.Errorf("put contents: %w", err)
	}
	return resp.Content.DownloadURL, nil
}

// GetObject downloads a file. A 404 maps to keyword.ErrArtifactNotFound.
func (s *BlobStore) GetObject(ctx context.Context, path string) (keyword.Artifact, error) {
	file, err := s.stat(ctx, path)
	if err != nil {
		return keyword.Artifact{}, err
	}
	if file.Encoding != "base64" {
		return keyword.Artifact{}, fmt.Errorf("unsupported content encoding %q", file.Encoding)
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return keyword.Artifact{}, fmt.Errorf("decode content: %w", err)
	}
	return keyword.Artifact{Data: data, URL: file.DownloadURL}, nil
}

func (s *BlobStore) stat(ctx context.Context, path string) (contentFile, error) {
	var file contentFile
	err := s.client.Do(ctx, http.MethodGet, s.contentsPath(path, true), nil, &file)
	var apiErr *ghapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return contentFile{}, keyword.ErrArtifactNotFound
	}
	if err != nil {
		return contentFile{}, fmt.Errorf("get contents: %w", err)
	}
	return file, nil
}

func (s *BlobStore) contentsPath(path string, withRef bool) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	p := s.client.RepoPath("contents/" + strings.Join(segments, "/"))
	if withRef && s.branch != "" {
		p += "?ref=" + url.QueryEscape(s.branch)
	}
	return p
}
