// Package artifact resolves the local build outputs selected for upload.
package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"paneldeploy/internal/apperrors"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is the ordered list of local files selected for upload.
// It is never empty once returned by Resolve.
type Set []string

// Names returns the base name of every artifact, in order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = filepath.Base(p)
	}
	return names
}

// Resolve expands pattern into the files it matches under workDir.
//
// The pattern may span several lines. Blank lines and lines starting with
// '#' are ignored, lines starting with '!' exclude files matched by the
// other lines. Matches keep pattern order, then walk order, and each file
// appears once.
func Resolve(pattern, workDir string) (Set, error) {
	includes, excludes := parsePatterns(pattern)
	if len(includes) == 0 {
		return nil, apperrors.Configuration("artifact", "artifact pattern is empty")
	}

	seen := make(map[string]bool)
	var files Set
	for _, p := range includes {
		matches, err := expand(p, workDir)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m] || isExcluded(m, workDir, excludes) {
				continue
			}
			seen[m] = true
			files = append(files, m)
		}
	}

	if len(files) == 0 {
		return nil, apperrors.Resolution("no artifacts found")
	}

	slog.Debug("Resolved artifacts", "pattern", pattern, "workDir", workDir, "count", len(files))
	return files, nil
}

func parsePatterns(pattern string) (includes, excludes []string) {
	for _, line := range strings.Split(pattern, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "!") {
			if ex := strings.TrimSpace(line[1:]); ex != "" {
				excludes = append(excludes, ex)
			}
			continue
		}
		includes = append(includes, line)
	}
	return includes, excludes
}

// expand globs a single pattern. The static prefix of the pattern becomes the
// walk root so metacharacters in workDir are never interpreted.
func expand(pattern, workDir string) ([]string, error) {
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))

	root := filepath.FromSlash(base)
	if !filepath.IsAbs(root) {
		root = filepath.Join(workDir, root)
	}

	matches, err := doublestar.Glob(os.DirFS(root), rest, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, doublestar.ErrBadPattern) {
			return nil, apperrors.Configuration("artifact", fmt.Sprintf("invalid artifact pattern %q", pattern))
		}
		return nil, apperrors.Resolution(fmt.Sprintf("failed to glob %q: %v", pattern, err))
	}

	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(root, filepath.FromSlash(m))
	}
	return files, nil
}

func isExcluded(file, workDir string, excludes []string) bool {
	rel, err := filepath.Rel(workDir, file)
	if err != nil {
		rel = file
	}
	for _, ex := range excludes {
		target := rel
		if filepath.IsAbs(ex) {
			target = file
		}
		if matched, _ := doublestar.PathMatch(filepath.Clean(ex), target); matched {
			return true
		}
	}
	return false
}

// TotalSize returns the combined size of the artifacts. Files that can no
// longer be read count as zero.
func (s Set) TotalSize() int64 {
	var total int64
	for _, p := range s {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
