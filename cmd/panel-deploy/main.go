// panel-deploy uploads build artifacts to a game server through the panel
// client API, deleting the previous build's files first.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"paneldeploy/internal/actions"
	"paneldeploy/internal/apperrors"
	"paneldeploy/internal/config"
	"paneldeploy/internal/deploy"
	"paneldeploy/internal/observability"
	"paneldeploy/internal/panel"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

const serviceName = "panel-deploy"

func main() {
	// Local runs may keep inputs in a .env file
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stdout, envconfig.OsLookuper(), os.Getenv)
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// flags mirror the action inputs and win over the environment when set.
type flags struct {
	apiURL      string
	apiKey      string
	serverID    string
	uploadPath  string
	artifact    string
	oldArtifact string
	workDir     string
	metricsFile string
	debug       bool
}

func newRootCommand(out io.Writer, lookuper envconfig.Lookuper, getenv func(string) string) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "panel-deploy",
		Short:         "Replace a server's old build artifacts with freshly built ones",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			reporter := actions.NewReporter(out, getenv)

			cfg, err := config.Load(ctx, lookuper)
			if err != nil {
				reporter.Fail(err)
				return err
			}
			f.apply(cmd, cfg)

			setupLogging(out, cfg.Debug)
			reporter.Mask(cfg.APIKey)

			if err := run(ctx, cfg, reporter); err != nil {
				slog.Error("Deploy failed", "error", err, "class", apperrors.Class(err))
				reporter.Fail(err)
				return err
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.apiURL, "api-url", "", "Base URL of the panel API (INPUT_APIURL)")
	fs.StringVar(&f.apiKey, "api-key", "", "Client API key (INPUT_APIKEY)")
	fs.StringVar(&f.serverID, "server-id", "", "Server identifier (INPUT_SERVERID)")
	fs.StringVar(&f.uploadPath, "upload-path", "", "Remote directory to deploy into (INPUT_UPLOADPATH)")
	fs.StringVar(&f.artifact, "artifact", "", "Glob selecting local artifacts (INPUT_ARTIFACT)")
	fs.StringVar(&f.oldArtifact, "old-artifact", "", "Regex selecting stale remote files (INPUT_OLDARTIFACT)")
	fs.StringVar(&f.workDir, "workdir", "", "Directory relative globs resolve against (INPUT_WORKDIR)")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file (INPUT_METRICSFILE)")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	return cmd
}

func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	override("api-url", &cfg.APIURL, f.apiURL)
	override("api-key", &cfg.APIKey, f.apiKey)
	override("server-id", &cfg.ServerID, f.serverID)
	override("upload-path", &cfg.UploadPath, f.uploadPath)
	override("artifact", &cfg.Artifact, f.artifact)
	override("old-artifact", &cfg.OldArtifact, f.oldArtifact)
	override("workdir", &cfg.WorkDir, f.workDir)
	override("metrics-file", &cfg.MetricsFile, f.metricsFile)
	if fs.Changed("debug") {
		cfg.Debug = f.debug
	}
}

func setupLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func run(ctx context.Context, cfg *config.Config, reporter *actions.Reporter) error {
	// Missing inputs fail before any network activity
	if err := cfg.Validate(); err != nil {
		return err
	}

	workDir, err := cfg.ResolveWorkDir()
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	metrics, gatherer, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := observability.WriteTextfile(cfg.MetricsFile, gatherer); err != nil {
			slog.Warn("Failed to write metrics", "error", err)
		}
	}()

	client := panel.NewClient(cfg.APIURL, cfg.ServerID, panel.NewHeaders(cfg.APIKey), panel.NewHTTPClient())
	runner := deploy.NewRunner(deploy.Options{
		APIURL:      cfg.APIURL,
		UploadPath:  cfg.UploadPath,
		Artifact:    cfg.Artifact,
		OldArtifact: cfg.OldArtifact,
		WorkDir:     workDir,
	}, client, metrics)

	endGroup := reporter.Group("Deploying to " + cfg.UploadPath)
	res, err := runner.Run(ctx)
	endGroup()
	if err != nil {
		return err
	}

	return reporter.Publish(res)
}
