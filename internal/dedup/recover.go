// Package dedup holds helpers shared by the registry backends.
package dedup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// hexHashLen is the length of a hex SHA-256 digest.
const hexHashLen = 64

// RecoverFromDir scans the download directory and pre-registers every
// hash-named PDF, so a run resumed after a crash neither re-extracts nor
// double-counts documents already on disk. Leftover temporary files from an
// interrupted download are removed. Returns the number of recovered docs.
func RecoverFromDir(ctx context.Context, store harvest.DedupStore, dir string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read download dir %s: %w", dir, err)
	}

	recovered := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "tmp-") && strings.HasSuffix(name, ".part") {
			stale := filepath.Join(dir, name)
			if err := os.Remove(stale); err != nil {
				logger.Warn("could not remove stale temp file", zap.String("path", stale), zap.Error(err))
			}
			continue
		}
		hash, ok := hashFromName(name)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.Warn("could not stat recovered file", zap.String("name", name), zap.Error(err))
			continue
		}
		doc := &harvest.FetchedDocument{
			ContentHash: hash,
			LocalPath:   filepath.Join(dir, name),
			ByteSize:    info.Size(),
		}
		inserted, _, err := store.Register(ctx, hash, doc)
		if err != nil {
			return recovered, fmt.Errorf("register recovered doc %s: %w", hash, err)
		}
		if inserted {
			recovered++
		}
	}
	if recovered > 0 {
		logger.Info("recovered documents from download dir",
			zap.String("dir", dir),
			zap.Int("count", recovered),
		)
	}
	return recovered, nil
}

func hashFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, ".pdf") {
		return "", false
	}
	hash := strings.TrimSuffix(name, ".pdf")
	if len(hash) != hexHashLen {
		return "", false
	}
	for _, r := range hash {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
		if !isHex {
			return "", false
		}
	}
	return hash, true
}
