package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"paneldeploy/internal/apperrors"
	"paneldeploy/internal/observability"
	"paneldeploy/internal/panel"
	"paneldeploy/internal/testutil"
	"path/filepath"
	"reflect"
	"testing"
)

const (
	testServerID = "srv1"
	testAPIKey   = "ptlc_test"
)

func writeArtifacts(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte("content of "+name), 0o644); err != nil {
			t.Fatalf("Failed to write artifact: %v", err)
		}
	}
}

func newRunner(t *testing.T, p *testutil.Panel, opts Options) *Runner {
	t.Helper()
	client := panel.NewClient(p.URL(), p.ServerID, panel.NewHeaders(p.APIKey), p.Server.Client())
	opts.APIURL = p.URL()
	if opts.UploadPath == "" {
		opts.UploadPath = "/plugins"
	}
	return NewRunner(opts, client, nil)
}

func endpoints(reqs []testutil.Request) []string {
	var out []string
	for _, r := range reqs {
		out = append(out, r.Endpoint)
	}
	return out
}

func TestRun_DeletesMatchingAndUploads(t *testing.T) {
	workDir := t.TempDir()
	writeArtifacts(t, workDir, "build.zip")
	p := testutil.NewPanel(t, testServerID, testAPIKey, "build.zip", "readme.txt")

	res, err := newRunner(t, p, Options{Artifact: "*.zip", WorkDir: workDir}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{testutil.EndpointList, testutil.EndpointDelete, testutil.EndpointUploadURL, testutil.EndpointUpload}
	if got := endpoints(p.Requests()); !reflect.DeepEqual(got, want) {
		t.Fatalf("requests = %v, want %v", got, want)
	}

	var body map[string]any
	if err := json.Unmarshal(p.RequestsTo(testutil.EndpointDelete)[0].Body, &body); err != nil {
		t.Fatalf("invalid delete body: %v", err)
	}
	wantBody := map[string]any{"root": "/plugins", "files": []any{"build.zip"}}
	if !reflect.DeepEqual(body, wantBody) {
		t.Errorf("delete body = %v, want %v", body, wantBody)
	}

	upload := p.RequestsTo(testutil.EndpointUpload)[0]
	if len(upload.Parts) != 1 || upload.Parts[0].Filename != "build.zip" {
		t.Errorf("upload parts = %+v", upload.Parts)
	}

	if !reflect.DeepEqual(res.Deleted, []string{"build.zip"}) {
		t.Errorf("Deleted = %v", res.Deleted)
	}
	if res.Pattern != `build\.zip` || res.PatternSource != PatternFromArtifacts {
		t.Errorf("Pattern = %q (%s)", res.Pattern, res.PatternSource)
	}
	if res.UploadedBytes != int64(len("content of build.zip")) {
		t.Errorf("UploadedBytes = %d", res.UploadedBytes)
	}
	if got := p.Files(); !reflect.DeepEqual(got, []string{"readme.txt", "build.zip"}) {
		t.Errorf("remote files = %v", got)
	}
}

func TestRun_NoStaleFilesSkipsDelete(t *testing.T) {
	workDir := t.TempDir()
	writeArtifacts(t, workDir, "build.zip")
	p := testutil.NewPanel(t, testServerID, testAPIKey, "readme.txt")

	res, err := newRunner(t, p, Options{Artifact: "*.zip", WorkDir: workDir}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{testutil.EndpointList, testutil.EndpointUploadURL, testutil.EndpointUpload}
	if got := endpoints(p.Requests()); !reflect.DeepEqual(got, want) {
		t.Errorf("requests = %v, want %v", got, want)
	}
	if len(res.Deleted) != 0 {
		t.Errorf("Deleted = %v, want none", res.Deleted)
	}
}

func TestRun_SingleDeleteForManyMatches(t *testing.T) {
	workDir := t.TempDir()
	writeArtifacts(t, workDir, "a.jar", "b.jar", "c.jar")
	p := testutil.NewPanel(t, testServerID, testAPIKey, "c.jar", "x.txt", "a.jar", "b.jar")

	res, err := newRunner(t, p, Options{Artifact: "*.jar", WorkDir: workDir}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	deletes := p.RequestsTo(testutil.EndpointDelete)
	if len(deletes) != 1 {
		t.Fatalf("expected exactly 1 delete request, got %d", len(deletes))
	}
	var body struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(deletes[0].Body, &body); err != nil {
		t.Fatalf("invalid delete body: %v", err)
	}
	if !reflect.DeepEqual(body.Files, []string{"c.jar", "a.jar", "b.jar"}) {
		t.Errorf("delete files = %v, want server order", body.Files)
	}
	if !reflect.DeepEqual(res.Deleted, body.Files) {
		t.Errorf("Deleted = %v", res.Deleted)
	}

	if n := len(p.RequestsTo(testutil.EndpointUploadURL)); n != 1 {
		t.Errorf("expected 1 upload URL request, got %d", n)
	}
	uploads := p.RequestsTo(testutil.EndpointUpload)
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload request, got %d", len(uploads))
	}
	if len(uploads[0].Parts) != 3 {
		t.Errorf("expected 3 parts in one request, got %d", len(uploads[0].Parts))
	}
}

func TestRun_OldArtifactOverride(t *testing.T) {
	workDir := t.TempDir()
	writeArtifacts(t, workDir, "build.zip")
	p := testutil.NewPanel(t, testServerID, testAPIKey, "build.zip", "old-1.zip", "old-2.zip", "other.txt")

	res, err := newRunner(t, p, Options{
		Artifact:    "*.zip",
		OldArtifact: `old-.*\.zip`,
		WorkDir:     workDir,
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !reflect.DeepEqual(res.Deleted, []string{"old-1.zip", "old-2.zip"}) {
		t.Errorf("Deleted = %v", res.Deleted)
	}
	if res.PatternSource != PatternFromInput || res.Pattern != `old-.*\.zip` {
		t.Errorf("Pattern = %q (%s)", res.Pattern, res.PatternSource)
	}
}

func TestRun_NoArtifactsMakesNoRequests(t *testing.T) {
	p := testutil.NewPanel(t, testServerID, testAPIKey, "build.zip")

	_, err := newRunner(t, p, Options{Artifact: "*.zip", WorkDir: t.TempDir()}).Run(context.Background())
	if !errors.Is(err, apperrors.ErrResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if err.Error() != "no artifacts found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if n := len(p.Requests()); n != 0 {
		t.Errorf("expected zero network calls, got %d", n)
	}
}

func TestRun_InvalidOverrideMakesNoRequests(t *testing.T) {
	workDir := t.TempDir()
	writeArtifacts(t, workDir, "build.zip")
	p := testutil.NewPanel(t, testServerID, testAPIKey)

	_, err := newRunner(t, p, Options{Artifact: "*.zip", OldArtifact: "(", WorkDir: workDir}).Run(context.Background())
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if n := len(p.Requests()); n != 0 {
		t.Errorf("expected zero network calls, got %d", n)
	}
}

func TestRun_ErrorPayloadHaltsPipeline(t *testing.T) {
	tests := []struct {
		name     string
		failAt   string
		expected []string
	}{
		{"list", testutil.EndpointList, []string{testutil.EndpointList}},
		{"delete", testutil.EndpointDelete, []string{testutil.EndpointList, testutil.EndpointDelete}},
		{"upload url", testutil.EndpointUploadURL, []string{testutil.EndpointList, testutil.EndpointDelete, testutil.EndpointUploadURL}},
		{"upload", testutil.EndpointUpload, []string{testutil.EndpointList, testutil.EndpointDelete, testutil.EndpointUploadURL, testutil.EndpointUpload}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workDir := t.TempDir()
			writeArtifacts(t, workDir, "build.zip")
			p := testutil.NewPanel(t, testServerID, testAPIKey, "build.zip")
			p.FailWith(tt.failAt, http.StatusOK, testutil.ErrorBody("DaemonConnectionException", "502", "node unreachable"))

			_, err := newRunner(t, p, Options{Artifact: "*.zip", WorkDir: workDir}).Run(context.Background())
			if !errors.Is(err, apperrors.ErrRemote) {
				t.Fatalf("expected remote error, got %v", err)
			}
			if got := endpoints(p.Requests()); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("requests = %v, want %v", got, tt.expected)
			}
		})
	}
}

type recordingPanel struct {
	calls   []string
	files   []panel.File
	listErr error
}

func (f *recordingPanel) ListFiles(ctx context.Context, dir string) ([]panel.File, error) {
	f.calls = append(f.calls, "list:"+dir)
	return f.files, f.listErr
}

func (f *recordingPanel) DeleteFiles(ctx context.Context, root string, names []string) error {
	f.calls = append(f.calls, "delete:"+root)
	return nil
}

func (f *recordingPanel) UploadURL(ctx context.Context, dir string) (panel.UploadTarget, error) {
	f.calls = append(f.calls, "upload_url:"+dir)
	return panel.UploadTarget{URL: "https://node/upload?token=t", Directory: dir}, nil
}

func (f *recordingPanel) Upload(ctx context.Context, target panel.UploadTarget, paths []string) error {
	f.calls = append(f.calls, "upload:"+target.Directory)
	return nil
}

func TestRun_TransportErrorIsTerminal(t *testing.T) {
	workDir := t.TempDir()
	writeArtifacts(t, workDir, "build.zip")
	fake := &recordingPanel{listErr: apperrors.Transport("panel.listFiles", errors.New("connection reset"))}

	_, err := NewRunner(Options{Artifact: "*.zip", WorkDir: workDir, UploadPath: "/"}, fake, nil).Run(context.Background())
	if !errors.Is(err, apperrors.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !reflect.DeepEqual(fake.calls, []string{"list:/"}) {
		t.Errorf("calls = %v", fake.calls)
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	workDir := t.TempDir()
	writeArtifacts(t, workDir, "a.zip", "b.zip")
	fake := &recordingPanel{files: []panel.File{{Name: "a.zip", IsFile: true}}}

	metrics, gatherer, err := observability.NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if _, err := NewRunner(Options{Artifact: "*.zip", WorkDir: workDir, UploadPath: "/srv"}, fake, metrics).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"list:/srv", "delete:/srv", "upload_url:/srv", "upload:/srv"}
	if !reflect.DeepEqual(fake.calls, want) {
		t.Errorf("calls = %v, want %v", fake.calls, want)
	}

	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "deploy_steps_total" {
			found = true
			if n := len(f.GetMetric()); n != 6 {
				t.Errorf("expected 6 step series, got %d", n)
			}
		}
	}
	if !found {
		t.Error("deploy_steps_total not gathered")
	}
}
