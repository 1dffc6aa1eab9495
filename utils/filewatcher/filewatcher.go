package filewatcher

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

const DefaultInterval = 1 * time.Second

type FileWatcher struct {
	Filepath          string        // File to watch for changes.
	Interval          time.Duration // How often the file is stat'ed.
	ChangeTriggerChan chan uint64   // Receives a change counter; closed when the watcher stops.
	logger            *zap.Logger
}

func watchFile(ctx context.Context, fw *FileWatcher, initialStat os.FileInfo) {
	defer close(fw.ChangeTriggerChan)

	changeCounter := uint64(0)

	ticker := time.NewTicker(fw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stat, err := os.Stat(fw.Filepath)
		if err != nil {
			// Editors replace files by rename; wait for it to reappear.
			fw.logger.Warn("failed to stat watched file", zap.String("path", fw.Filepath), zap.Error(err))
			continue
		}

		if stat.Size() != initialStat.Size() || !stat.ModTime().Equal(initialStat.ModTime()) {
			changeCounter++
			initialStat = stat
			select {
			case fw.ChangeTriggerChan <- changeCounter:
			case <-ctx.Done():
				return
			}
		}
	}
}

// NewFileWatcher polls filepath every interval until ctx is done. A
// non-positive interval falls back to DefaultInterval.
func NewFileWatcher(ctx context.Context, filepath string, interval time.Duration, logger *zap.Logger) *FileWatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fw := &FileWatcher{
		Filepath:          filepath,
		Interval:          interval,
		ChangeTriggerChan: make(chan uint64),
		logger:            logger,
	}

	// The baseline is taken before returning so that no write after this call
	// goes unnoticed.
	initialStat, err := os.Stat(filepath)
	if err != nil {
		logger.Error("failed to watch file", zap.String("path", filepath), zap.Error(err))
		close(fw.ChangeTriggerChan)
		return fw
	}

	go watchFile(ctx, fw, initialStat)
	return fw
}
