// Package logging provides a size- and day-based rotating log writer for the
// marketplace daemon.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingWriter appends to a dated log file and rolls over on UTC day change
// or when a write would push the file past MaxBytes.
//
// Given base path logs/agenthub.log, output files are named
// agenthub-2026-08-31.log, agenthub-2026-08-31-2.log and so on. The base path
// itself is kept as a symlink to the active file when the platform allows it.
type RotatingWriter struct {
	base     string
	maxBytes int64

	mu    sync.Mutex
	day   string
	index int
	file  *os.File
	size  int64
}

// NewRotatingWriter opens a rotating writer for base. Passing "-" disables
// file output entirely.
func NewRotatingWriter(base string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(base) == "-" {
		return discardCloser{}, nil
	}
	w := &RotatingWriter{base: base, maxBytes: maxBytes}
	if err := w.roll(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

func (w *RotatingWriter) roll(incoming int64) error {
	today := time.Now().UTC().Format("2006-01-02")
	switch {
	case w.file == nil || w.day != today:
		w.day = today
		w.index = 1
	case w.maxBytes > 0 && w.size+incoming > w.maxBytes:
		w.index++
	default:
		return nil
	}
	return w.open()
}

func (w *RotatingWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
	}
	dir, name := filepath.Split(w.base)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	dated := fmt.Sprintf("%s-%s%s", stem, w.day, ext)
	if w.index > 1 {
		dated = fmt.Sprintf("%s-%s-%d%s", stem, w.day, w.index, ext)
	}
	path := filepath.Join(dir, dated)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file = f
	w.size = 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	w.link(path)
	return nil
}

// link points the base path at the active dated file so tail -F keeps working
// across rotations.
func (w *RotatingWriter) link(target string) {
	if info, err := os.Lstat(w.base); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, err := os.Readlink(w.base); err == nil && dest == target {
				return
			}
		}
		_ = os.Remove(w.base)
	}
	_ = os.Symlink(target, w.base)
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
