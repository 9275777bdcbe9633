package panel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// File is one entry of a remote directory listing.
type File struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	IsFile bool   `json:"is_file"`
}

// UploadTarget is a signed, single-use upload URL scoped to a directory.
type UploadTarget struct {
	URL       string
	Directory string
}

// Endpoint returns the signed URL with the target directory appended as a
// percent-encoded query parameter.
func (t UploadTarget) Endpoint() string {
	sep := "&"
	if !strings.Contains(t.URL, "?") {
		sep = "?"
	}
	return t.URL + sep + "directory=" + encodeURIComponent(t.Directory)
}

// encodeURIComponent escapes s for a query value, spaces as %20.
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// envelope is decoded from every response to check for an error payload
// before the success shape is read.
type envelope struct {
	Errors json.RawMessage `json:"errors"`
}

func (e *envelope) hasErrors() bool {
	return len(e.Errors) > 0 && string(e.Errors) != "null"
}

type listResponse struct {
	Data []struct {
		Attributes File `json:"attributes"`
	} `json:"data"`
}

type signedURLResponse struct {
	Attributes struct {
		URL string `json:"url"`
	} `json:"attributes"`
}

type deleteRequest struct {
	Root  string   `json:"root"`
	Files []string `json:"files"`
}

// ErrorDetail is one entry of the panel's error list.
type ErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// String renders "detail (code)", or whichever of the two is present.
func (d ErrorDetail) String() string {
	switch {
	case d.Detail != "" && d.Code != "":
		return fmt.Sprintf("%s (%s)", d.Detail, d.Code)
	case d.Detail != "":
		return d.Detail
	default:
		return d.Code
	}
}

// APIError is an error payload returned by the panel.
type APIError struct {
	StatusCode int
	Details    []ErrorDetail   // Decoded when the payload has the usual list shape
	Raw        json.RawMessage // The errors field exactly as received
}

func newAPIError(statusCode int, raw json.RawMessage) *APIError {
	e := &APIError{StatusCode: statusCode, Raw: raw}
	var details []ErrorDetail
	if err := json.Unmarshal(raw, &details); err == nil {
		e.Details = details
	}
	return e
}

// Error returns the details joined, or the raw payload when it has no
// recognizable shape.
func (e *APIError) Error() string {
	var parts []string
	for _, d := range e.Details {
		if s := d.String(); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "panel api error: " + string(e.Raw)
	}
	return strings.Join(parts, "; ")
}

// HTTPError is a non-2xx response without an error payload.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
