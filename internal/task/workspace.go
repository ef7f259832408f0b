package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"videotrans/log"
)

// EnsureWorkspace creates the task's cache and target directories. The cache
// dir lives until Cleanup; the target dir holds the persisted artifacts.
func (t *Task) EnsureWorkspace() error {
	for _, dir := range []string{t.CacheDir(), filepath.Join(t.CacheDir(), "tts"), t.TargetDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("workspace mkdir %s: %w", dir, err)
		}
	}
	return nil
}

// Cleanup tears down the cache directory. It is safe to call on every exit
// path, including cancellation, and never fails the task.
func (t *Task) Cleanup() {
	if err := os.RemoveAll(t.CacheDir()); err != nil {
		log.GetLogger().Warn("cache cleanup failed",
			zap.String("taskId", t.Uuid), zap.String("dir", t.CacheDir()), zap.Error(err))
		return
	}
	log.GetLogger().Debug("cache removed", zap.String("taskId", t.Uuid))
}

// ManifestEntry describes one persisted artifact and why it exists.
type ManifestEntry struct {
	Name   string
	Reason string
}

// WriteManifest writes the human-readable manifest into the target dir.
func (t *Task) WriteManifest(entries []ManifestEntry) error {
	entries = lo.Filter(entries, func(e ManifestEntry, _ int) bool { return e.Name != "" })
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("task: %s\n", t.Uuid))
	sb.WriteString(fmt.Sprintf("source: %s\n", t.Config.SourcePath))
	sb.WriteString(fmt.Sprintf("generated: %s\n\n", time.Now().Format(time.RFC3339)))
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%s\t%s\n", e.Name, e.Reason))
	}
	return os.WriteFile(t.ManifestPath(), []byte(sb.String()), 0o644)
}
