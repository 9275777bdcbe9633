// Package deploy runs the artifact deploy pipeline:
// resolve, match, list, delete, get upload URL, upload.
package deploy

import (
	"context"
	"log/slog"
	"paneldeploy/internal/artifact"
	"paneldeploy/internal/observability"
	"paneldeploy/internal/panel"
	"paneldeploy/internal/stale"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Pipeline step names, used in logs, metrics and spans.
const (
	StepResolve   = "resolve"
	StepMatch     = "match"
	StepList      = "list"
	StepDelete    = "delete"
	StepUploadURL = "upload_url"
	StepUpload    = "upload"
)

// Pattern sources reported in Result.
const (
	PatternFromInput     = "input"
	PatternFromArtifacts = "artifacts"
)

// Panel is the part of the panel API a run uses.
type Panel interface {
	ListFiles(ctx context.Context, dir string) ([]panel.File, error)
	DeleteFiles(ctx context.Context, root string, names []string) error
	UploadURL(ctx context.Context, dir string) (panel.UploadTarget, error)
	Upload(ctx context.Context, target panel.UploadTarget, paths []string) error
}

// Options configures a run.
type Options struct {
	APIURL      string // Only logged
	UploadPath  string
	Artifact    string
	OldArtifact string
	WorkDir     string
}

// Result summarizes a successful run.
type Result struct {
	Artifacts     artifact.Set
	Pattern       string
	PatternSource string
	Deleted       []string
	UploadedBytes int64
}

// Runner executes one deploy. Steps run strictly in order and the first
// failure ends the run.
type Runner struct {
	opts    Options
	panel   Panel
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewRunner creates a runner. metrics may be nil.
func NewRunner(opts Options, p Panel, metrics *observability.Metrics) *Runner {
	return &Runner{
		opts:    opts,
		panel:   p,
		metrics: metrics,
		tracer:  observability.Tracer(),
	}
}

// Run executes the pipeline. Errors are returned unchanged so callers can
// classify them with apperrors.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	logger := slog.With("uploadPath", r.opts.UploadPath)
	logger.Info("Deploy starting", "apiUrl", r.opts.APIURL)

	ctx, span := r.tracer.Start(ctx, "deploy")
	defer span.End()

	res := &Result{}

	err := r.step(ctx, StepResolve, func(ctx context.Context) error {
		set, err := artifact.Resolve(r.opts.Artifact, r.opts.WorkDir)
		res.Artifacts = set
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}
	logger.Info("Resolved artifacts", "count", len(res.Artifacts), "artifacts", []string(res.Artifacts))

	var pattern *regexp.Regexp
	err = r.step(ctx, StepMatch, func(ctx context.Context) error {
		var err error
		pattern, err = stale.Pattern(r.opts.OldArtifact, res.Artifacts)
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}
	res.Pattern = pattern.String()
	res.PatternSource = PatternFromArtifacts
	if r.opts.OldArtifact != "" {
		res.PatternSource = PatternFromInput
	}
	logger.Info("Using old artifact pattern", "pattern", res.Pattern, "source", res.PatternSource)

	logger.Info("Listing files")
	err = r.step(ctx, StepList, func(ctx context.Context) error {
		files, err := r.panel.ListFiles(ctx, r.opts.UploadPath)
		if err != nil {
			return err
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Name
		}
		res.Deleted = stale.Filter(pattern, names)
		return nil
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	if len(res.Deleted) > 0 {
		logger.Info("Deleting stale files", "count", len(res.Deleted), "files", res.Deleted)
		err = r.step(ctx, StepDelete, func(ctx context.Context) error {
			return r.panel.DeleteFiles(ctx, r.opts.UploadPath, res.Deleted)
		})
		if err != nil {
			return nil, r.fail(span, err)
		}
		if r.metrics != nil {
			r.metrics.RecordDeleted(ctx, len(res.Deleted))
		}
	} else {
		logger.Info("No stale files to delete")
	}

	logger.Info("Getting upload URL")
	var target panel.UploadTarget
	err = r.step(ctx, StepUploadURL, func(ctx context.Context) error {
		var err error
		target, err = r.panel.UploadURL(ctx, r.opts.UploadPath)
		return err
	})
	if err != nil {
		return nil, r.fail(span, err)
	}

	logger.Info("Uploading artifacts", "count", len(res.Artifacts))
	err = r.step(ctx, StepUpload, func(ctx context.Context) error {
		return r.panel.Upload(ctx, target, res.Artifacts)
	})
	if err != nil {
		return nil, r.fail(span, err)
	}
	res.UploadedBytes = res.Artifacts.TotalSize()
	if r.metrics != nil {
		r.metrics.RecordUploaded(ctx, len(res.Artifacts), res.UploadedBytes)
	}

	logger.Info("Uploaded artifacts", "count", len(res.Artifacts), "bytes", res.UploadedBytes)
	return res, nil
}

// step runs fn inside a span and records its duration and outcome.
func (r *Runner) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("deploy.step", name)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if r.metrics != nil {
		r.metrics.RecordStep(ctx, name, err, duration.Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Debug("Step failed", "step", name, "duration", duration, "error", err)
		return err
	}

	slog.Debug("Step completed", "step", name, "duration", duration)
	return nil
}

func (r *Runner) fail(span trace.Span, err error) error {
	span.SetStatus(codes.Error, err.Error())
	return err
}
