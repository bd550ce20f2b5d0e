package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"solarcore/internal/domain"
)

// FileSource watches a directory for dropped recordings. Each file is
// consumed once and renamed with a .processed suffix. A .txt file carries a
// typed utterance instead of audio.
type FileSource struct {
	dir    string
	poll   time.Duration
	logger *slog.Logger

	mu        sync.Mutex
	processed map[string]bool
}

var audioExts = map[string]bool{".wav": true, ".mp3": true, ".m4a": true, ".webm": true}

func NewFileSource(dir string, logger *slog.Logger) *FileSource {
	return &FileSource{
		dir:       dir,
		poll:      500 * time.Millisecond,
		logger:    logger,
		processed: make(map[string]bool),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating audio dir: %w", err)
	}
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

func (f *FileSource) NextCommand(ctx context.Context) ([]byte, error) {
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for {
		if data, err := f.checkForNewFile(); err != nil || data != nil {
			return data, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *FileSource) checkForNewFile() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !audioExts[ext] && ext != ".txt" {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		if f.processed[path] {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", path, err)
		}

		if err := os.Rename(path, path+".processed"); err != nil {
			f.processed[path] = true
			f.logger.Warn("could not mark file processed", "path", path, "error", err)
		}

		if ext == ".txt" {
			return []byte(domain.TextCommandPrefix + strings.TrimSpace(string(data))), nil
		}
		return data, nil
	}

	return nil, nil
}
