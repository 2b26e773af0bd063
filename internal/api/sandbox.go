package api

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"apex-client/pkg/models"
)

// FileTree lists a sandbox directory.
func (c *Client) FileTree(ctx context.Context, sandboxID, path string) ([]models.FileNode, error) {
	var out struct {
		Files []models.FileNode `json:"files"`
	}
	p := "/sandboxes/" + url.PathEscape(sandboxID) + "/files?path=" + url.QueryEscape(path)
	if err := c.do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// ReadFile returns the raw content of one sandbox file.
func (c *Client) ReadFile(ctx context.Context, sandboxID, path string) ([]byte, error) {
	p := "/sandboxes/" + url.PathEscape(sandboxID) + "/files/content?path=" + url.QueryEscape(path)
	body, err := c.stream(ctx, p)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// DownloadArchive writes the project's file archive (zip) to w.
func (c *Client) DownloadArchive(ctx context.Context, sandboxID string, w io.Writer) (int64, error) {
	p := "/sandboxes/" + url.PathEscape(sandboxID) + "/archive"
	body, err := c.stream(ctx, p)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	return io.Copy(w, body)
}
