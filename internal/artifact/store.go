// Package artifact captures declared job outputs into a local store.
//
// Collection runs for every terminal job status, including failure and
// cancellation: the artifacts of a failed job are usually the ones worth
// reading. Missing declared paths are a warning, never a pipeline failure.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// Store writes collected artifacts under a root directory, keyed by job
// identity and the human-readable artifact label.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact store at %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// Collect copies each declared path into the store under
// <root>/<job-id>/<label>/. It never fails the caller: unreadable or missing
// paths are recorded on the returned entries and logged as warnings.
func (s *Store) Collect(ctx context.Context, jobID string, specs []pipeline.ArtifactSpec) []pipeline.CollectedArtifact {
	logger := ctxlog.FromContext(ctx).With("job", jobID)

	collected := make([]pipeline.CollectedArtifact, 0, len(specs))
	for _, spec := range specs {
		entry := pipeline.CollectedArtifact{Label: spec.Label}

		info, err := os.Stat(spec.Path)
		if err != nil {
			logger.Warn("Declared artifact path is missing.", "label", spec.Label, "path", spec.Path)
			entry.Missing = true
			collected = append(collected, entry)
			continue
		}

		dest := filepath.Join(s.root, sanitize(jobID), spec.Label)
		var copyErr error
		if info.IsDir() {
			copyErr = copyDir(spec.Path, dest)
		} else {
			copyErr = copyFile(spec.Path, filepath.Join(dest, filepath.Base(spec.Path)))
		}
		if copyErr != nil {
			logger.Warn("Failed to collect artifact.", "label", spec.Label, "error", copyErr)
			entry.Missing = true
			collected = append(collected, entry)
			continue
		}

		entry.StorePath = dest
		logger.Info("📦 Artifact collected", "label", spec.Label, "dest", dest)
		collected = append(collected, entry)
	}
	return collected
}

// WriteSummary writes the machine-readable pipeline result into the store
// root as result.json.
func (s *Store) WriteSummary(results map[string]pipeline.JobResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pipeline summary: %w", err)
	}
	path := filepath.Join(s.root, "result.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write pipeline summary: %w", err)
	}
	return nil
}

// sanitize makes a job identity usable as a directory name.
func sanitize(id string) string {
	return strings.ReplaceAll(id, string(os.PathSeparator), "_")
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
