package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"paneldeploy/internal/apperrors"
	"path/filepath"
)

// FormField is the multipart field every artifact is attached under.
const FormField = "files"

// UploadURL requests a signed upload URL for dir.
func (c *Client) UploadURL(ctx context.Context, dir string) (UploadTarget, error) {
	const op = "panel.uploadURL"

	var resp signedURLResponse
	if err := c.doJSON(ctx, op, http.MethodGet, c.endpoint("/files/upload", nil), nil, &resp); err != nil {
		return UploadTarget{}, err
	}
	if resp.Attributes.URL == "" {
		return UploadTarget{}, apperrors.Transport(op, errors.New("malformed response: missing attributes.url"))
	}

	return UploadTarget{URL: resp.Attributes.URL, Directory: dir}, nil
}

// Upload sends every file in paths to target in one multipart POST. Files are
// streamed in order, each under FormField.
func (c *Client) Upload(ctx context.Context, target UploadTarget, paths []string) error {
	const op = "panel.upload"

	// Open everything up front so a missing file fails before the request starts.
	files := make([]*os.File, 0, len(paths))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return apperrors.Resolution(fmt.Sprintf("failed to open artifact: %v", err))
		}
		files = append(files, f)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint(), pr)
	if err != nil {
		return apperrors.Transport(op, fmt.Errorf("failed to create request: %w", err))
	}
	c.headers.apply(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	go func() {
		pw.CloseWithError(writeParts(mw, files))
	}()

	if err := c.send(op, req, nil); err != nil {
		return err
	}

	slog.Debug("Uploaded artifacts", "directory", target.Directory, "count", len(paths))
	return nil
}

func writeParts(mw *multipart.Writer, files []*os.File) error {
	for _, f := range files {
		part, err := mw.CreateFormFile(FormField, filepath.Base(f.Name()))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f); err != nil {
			return fmt.Errorf("failed to stream %s: %w", f.Name(), err)
		}
	}
	return mw.Close()
}
