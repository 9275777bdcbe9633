package observability

import (
	"fmt"
	"log/slog"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes everything g gathers to path in the Prometheus text
// format, for the node_exporter textfile collector or a CI artifact.
// An empty path is a no-op.
func WriteTextfile(path string, g promclient.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := promclient.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	slog.Debug("Wrote metrics file", "path", path)
	return nil
}
