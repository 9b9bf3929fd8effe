package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const filePrefix = "analyzer-"

var numberedFileRe = regexp.MustCompile(`^analyzer-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingLogger writes to one file per ISO week, splitting a week into
// numbered parts once maxFileSize is reached.
type RotatingLogger struct {
	logDir      string
	currentFile *os.File
	currentWeek string
	retention   time.Duration
	maxFileSize int64
	currentSize atomic.Int64
	mu          sync.Mutex
	cancel      context.CancelFunc
	cleanupDone chan struct{}
	now         func() time.Time
}

// NewRotatingLogger creates the log directory, opens the file for the current
// week and starts the daily retention sweep.
func NewRotatingLogger(logDir string, retentionWeeks int, maxFileSize int64) (*RotatingLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rl := &RotatingLogger{
		logDir:      logDir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
		now:         time.Now,
	}

	rl.mu.Lock()
	err := rl.rotate(weekKey(rl.now()), false)
	rl.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	go rl.sweepLoop(ctx)
	return rl, nil
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// rotate switches to the file for week (caller must hold mu)
func (rl *RotatingLogger) rotate(week string, full bool) error {
	if rl.currentFile != nil {
		if err := rl.currentFile.Close(); err != nil {
			slog.Warn("Failed to close log file during rotation", "error", err)
		}
		rl.currentFile = nil
	}

	name := rl.pickFile(week, full)
	path := filepath.Join(rl.logDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	rl.currentFile = file
	rl.currentWeek = week
	rl.currentSize.Store(0)
	if info, err := file.Stat(); err == nil {
		rl.currentSize.Store(info.Size())
	}
	return nil
}

// pickFile returns the base week file while it has room, otherwise the
// highest numbered part with room, otherwise a new numbered part.
func (rl *RotatingLogger) pickFile(week string, full bool) string {
	base := fmt.Sprintf("%s%s.log", filePrefix, week)
	if !full {
		info, err := os.Stat(filepath.Join(rl.logDir, base))
		if err != nil || rl.maxFileSize == 0 || info.Size() < rl.maxFileSize {
			return base
		}
	}

	matches, _ := filepath.Glob(filepath.Join(rl.logDir, fmt.Sprintf("%s%s_??.log", filePrefix, week)))
	highest := 0
	var lastSize int64
	for _, match := range matches {
		m := numberedFileRe.FindStringSubmatch(filepath.Base(match))
		if len(m) < 2 {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		if num > highest {
			highest = num
			lastSize = 0
			if info, err := os.Stat(match); err == nil {
				lastSize = info.Size()
			}
		}
	}

	if highest > 0 && !full && lastSize < rl.maxFileSize {
		return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, highest)
	}
	return fmt.Sprintf("%s%s_%02d.log", filePrefix, week, highest+1)
}

// Write implements io.Writer
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := weekKey(rl.now())
	if week != rl.currentWeek {
		if err := rl.rotate(week, false); err != nil {
			return 0, err
		}
	} else if rl.maxFileSize > 0 && rl.currentSize.Load()+int64(len(p)) > rl.maxFileSize && rl.currentSize.Load() > 0 {
		if err := rl.rotate(week, true); err != nil {
			return 0, err
		}
	}

	if rl.currentFile == nil {
		return 0, fmt.Errorf("no log file available")
	}

	n, err := rl.currentFile.Write(p)
	rl.currentSize.Add(int64(n))
	return n, err
}

func (rl *RotatingLogger) sweepLoop(ctx context.Context) {
	defer close(rl.cleanupDone)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rl.cleanupOldLogs(); err != nil {
				slog.Warn("Failed to cleanup old logs", "error", err)
			}
		}
	}
}

// cleanupOldLogs removes log files older than the retention period and
// returns how many were deleted.
func (rl *RotatingLogger) cleanupOldLogs() (int, error) {
	entries, err := os.ReadDir(rl.logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := rl.now().Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(rl.logDir, name)); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// Close stops the retention sweep and closes the current file
func (rl *RotatingLogger) Close() error {
	rl.cancel()
	select {
	case <-rl.cleanupDone:
	case <-time.After(time.Second):
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.currentFile != nil {
		err := rl.currentFile.Close()
		rl.currentFile = nil
		return err
	}
	return nil
}

// multiHandler fans a record out to every handler that accepts its level
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
