// Package testutil provides an in-process fake of the panel file API.
package testutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Endpoint names used for request inspection and failure injection.
const (
	EndpointList      = "list"
	EndpointDelete    = "delete"
	EndpointUploadURL = "upload-url"
	EndpointUpload    = "upload"
)

// UploadToken is the token embedded in signed upload URLs.
const UploadToken = "signed-token"

// Part is one multipart part received by the upload endpoint.
type Part struct {
	Field    string
	Filename string
	Content  []byte
}

// Request is a recorded request.
type Request struct {
	Endpoint string
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     []byte
	Parts    []Part
}

type failure struct {
	status int
	body   string
}

// Panel is a fake panel serving one server's file endpoints.
type Panel struct {
	Server   *httptest.Server
	ServerID string
	APIKey   string

	mu       sync.Mutex
	files    []string
	requests []Request
	failures map[string]failure
}

// NewPanel starts a fake panel whose upload directory holds files.
// The server is closed when the test ends.
func NewPanel(tb testing.TB, serverID, apiKey string, files ...string) *Panel {
	tb.Helper()

	p := &Panel{
		ServerID: serverID,
		APIKey:   apiKey,
		files:    append([]string(nil), files...),
		failures: make(map[string]failure),
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	tb.Cleanup(p.Server.Close)
	return p
}

// URL returns the panel's API base URL.
func (p *Panel) URL() string {
	return p.Server.URL + "/api"
}

// FailWith makes endpoint answer with status and body.
func (p *Panel) FailWith(endpoint string, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[endpoint] = failure{status: status, body: body}
}

// Requests returns every request received, in order.
func (p *Panel) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

// RequestsTo returns the requests received by endpoint.
func (p *Panel) RequestsTo(endpoint string) []Request {
	var out []Request
	for _, r := range p.Requests() {
		if r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

// Files returns the current remote listing.
func (p *Panel) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

func (p *Panel) handle(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/client/servers/" + p.ServerID + "/files"

	var endpoint string
	switch {
	case r.Method == http.MethodGet && r.URL.Path == prefix+"/list":
		endpoint = EndpointList
	case r.Method == http.MethodPost && r.URL.Path == prefix+"/delete":
		endpoint = EndpointDelete
	case r.Method == http.MethodGet && r.URL.Path == prefix+"/upload":
		endpoint = EndpointUploadURL
	case r.Method == http.MethodPost && r.URL.Path == "/upload":
		endpoint = EndpointUpload
	default:
		http.NotFound(w, r)
		return
	}

	rec := Request{
		Endpoint: endpoint,
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.Query(),
		Header:   r.Header.Clone(),
	}
	if endpoint == EndpointUpload {
		parts, err := readParts(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec.Parts = parts
	} else {
		rec.Body, _ = io.ReadAll(r.Body)
	}

	p.mu.Lock()
	p.requests = append(p.requests, rec)
	fail, failing := p.failures[endpoint]
	p.mu.Unlock()

	if failing {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fail.status)
		io.WriteString(w, fail.body)
		return
	}

	if endpoint == EndpointUpload {
		if r.URL.Query().Get("token") != UploadToken {
			writeError(w, http.StatusForbidden, "InvalidSignature", "invalid upload token")
			return
		}
	} else if r.Header.Get("Authorization") != "Bearer "+p.APIKey {
		writeError(w, http.StatusUnauthorized, "InvalidCredentialsException", "invalid api key")
		return
	}

	switch endpoint {
	case EndpointList:
		p.serveList(w)
	case EndpointDelete:
		p.serveDelete(w, rec.Body)
	case EndpointUploadURL:
		writeJSON(w, http.StatusOK, map[string]any{
			"object": "signed_url",
			"attributes": map[string]any{
				"url": p.Server.URL + "/upload?token=" + UploadToken,
			},
		})
	case EndpointUpload:
		p.mu.Lock()
		for _, part := range rec.Parts {
			p.files = append(p.files, part.Filename)
		}
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (p *Panel) serveList(w http.ResponseWriter) {
	p.mu.Lock()
	data := make([]map[string]any, 0, len(p.files))
	for _, name := range p.files {
		data = append(data, map[string]any{
			"object": "file_object",
			"attributes": map[string]any{
				"name":    name,
				"size":    len(name),
				"is_file": true,
			},
		})
	}
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func (p *Panel) serveDelete(w http.ResponseWriter, body []byte) {
	var req struct {
		Root  string   `json:"root"`
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "ValidationException", err.Error())
		return
	}

	remove := make(map[string]bool, len(req.Files))
	for _, f := range req.Files {
		remove[f] = true
	}

	p.mu.Lock()
	kept := p.files[:0]
	for _, f := range p.files {
		if !remove[f] {
			kept = append(kept, f)
		}
	}
	p.files = kept
	p.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func readParts(r *http.Request) ([]Part, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return nil, errors.New("expected multipart/form-data")
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}

	var parts []Part
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{
			Field:    part.FormName(),
			Filename: part.FileName(),
			Content:  content,
		})
	}
}

// ErrorBody returns a panel error payload with a single entry.
func ErrorBody(code, status, detail string) string {
	data, _ := json.Marshal(map[string]any{
		"errors": []map[string]string{{"code": code, "status": status, "detail": detail}},
	})
	return string(data)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, ErrorBody(code, strconv.Itoa(status), detail))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
