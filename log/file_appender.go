package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileAppender writes records to LogPath and rotates the file once it grows
// past FileSplitMB. Rotated files get a timestamp suffix.
type FileAppender struct {
	lock     sync.Mutex
	fileName string
	splitMB  int
	fileFd   *os.File
	size     int64
}

// NewFileAppender opens (or creates) cfg.LogPath for appending.
func NewFileAppender(cfg *LogCfg) (*FileAppender, error) {
	a := &FileAppender{
		fileName: cfg.LogPath,
		splitMB:  cfg.FileSplitMB,
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *FileAppender) open() error {
	if dir := filepath.Dir(a.fileName); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	fd, err := os.OpenFile(a.fileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	a.fileFd = fd
	a.size = st.Size()
	return nil
}

func (a *FileAppender) Write(buf []byte) (int, error) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.fileFd == nil {
		return 0, os.ErrClosed
	}
	if a.splitMB > 0 && a.size+int64(len(buf)) > int64(a.splitMB)<<20 {
		if err := a.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := a.fileFd.Write(buf)
	a.size += int64(n)
	return n, err
}

// rotate must be called with lock held.
func (a *FileAppender) rotate() error {
	if err := a.fileFd.Close(); err != nil {
		return err
	}
	a.fileFd = nil
	rotated := fmt.Sprintf("%s.%s", a.fileName, time.Now().Format("20060102-150405.000"))
	if err := os.Rename(a.fileName, rotated); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return a.open()
}

// Refresh flushes the file to stable storage.
func (a *FileAppender) Refresh() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fileFd == nil {
		return nil
	}
	return a.fileFd.Sync()
}

func (a *FileAppender) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fileFd == nil {
		return nil
	}
	err := a.fileFd.Close()
	a.fileFd = nil
	return err
}
