package panel

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// ListFiles returns the entries of dir in the order the panel reports them.
func (c *Client) ListFiles(ctx context.Context, dir string) ([]File, error) {
	var resp listResponse
	target := c.endpoint("/files/list", url.Values{"directory": {dir}})
	if err := c.doJSON(ctx, "panel.listFiles", http.MethodGet, target, nil, &resp); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(resp.Data))
	for _, d := range resp.Data {
		files = append(files, d.Attributes)
	}

	slog.Debug("Listed remote files", "directory", dir, "count", len(files))
	return files, nil
}

// DeleteFiles removes names from root in a single request.
func (c *Client) DeleteFiles(ctx context.Context, root string, names []string) error {
	body := deleteRequest{Root: root, Files: names}
	if err := c.doJSON(ctx, "panel.deleteFiles", http.MethodPost, c.endpoint("/files/delete", nil), body, nil); err != nil {
		return err
	}

	slog.Debug("Deleted remote files", "root", root, "count", len(names))
	return nil
}
