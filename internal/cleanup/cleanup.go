// Package cleanup removes stale staging files left behind by crashed or
// interrupted transfers.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/restricted_saver/internal/logctx"
)

// SweepStagingDir deletes regular files in dir whose modification time is
// older than retention. Errors on individual files are logged and skipped;
// the sweep is best effort.
func SweepStagingDir(ctx context.Context, dir string, retention time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to stat staging file", "file", path, "err", err)

			continue
		}

		if now.Sub(info.ModTime()) <= retention {
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete stale staging file", "file", path, "err", err)

			continue
		}

		logger.Info("deleted stale staging file", "file", path)
	}

	return nil
}
