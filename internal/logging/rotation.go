package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig bounds the log file's size and retention.
type RotationConfig struct {
	// Filename is the file to write to; set by the logging setup.
	Filename string `yaml:"-"`

	// MaxSizeMB rotates when the file would exceed this size. 0 disables
	// size-based rotation.
	MaxSizeMB int64 `yaml:"max_size_mb"`

	// MaxAgeDays rotates a file older than this. 0 disables.
	MaxAgeDays int `yaml:"max_age_days"`

	// MaxBackups is the number of rotated files to retain. 0 retains all.
	MaxBackups int `yaml:"max_backups"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// Rotator is an io.Writer that rotates its file by size and age.
type Rotator struct {
	mu sync.Mutex

	config   *RotationConfig
	file     *os.File
	size     int64
	openTime time.Time
}

// NewRotator opens the log file and returns the rotating writer.
func NewRotator(config *RotationConfig) (*Rotator, error) {
	if config == nil || config.Filename == "" {
		return nil, fmt.Errorf("rotation requires a filename")
	}
	r := &Rotator{config: config}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

// Write implements io.Writer.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shouldRotate(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Sync flushes the current file.
func (r *Rotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// Close closes the current file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Rotate forces an immediate rotation.
func (r *Rotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate()
}

func (r *Rotator) shouldRotate(writeSize int64) bool {
	if r.config.MaxSizeMB > 0 && r.size+writeSize >= r.config.MaxSizeMB*1024*1024 {
		return true
	}
	if r.config.MaxAgeDays > 0 {
		maxAge := time.Duration(r.config.MaxAgeDays) * 24 * time.Hour
		if time.Since(r.openTime) >= maxAge {
			return true
		}
	}
	return false
}

func (r *Rotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close current log file: %w", err)
		}
		r.file = nil
	}

	backup := r.backupName(time.Now().UTC())
	if err := os.Rename(r.config.Filename, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if r.config.Compress {
		if err := compressFile(backup); err != nil {
			fmt.Fprintf(os.Stderr, "compress rotated log %s: %v\n", backup, err)
		}
	}

	if err := r.cleanupBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "cleanup rotated logs: %v\n", err)
	}

	return r.openFile()
}

func (r *Rotator) openFile() error {
	dir := filepath.Dir(r.config.Filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(r.config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	r.file = f
	r.size = info.Size()
	r.openTime = time.Now()
	return nil
}

func (r *Rotator) backupName(ts time.Time) string {
	dir := filepath.Dir(r.config.Filename)
	base := filepath.Base(r.config.Filename)
	ext := filepath.Ext(base)
	prefix := base[:len(base)-len(ext)]
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", prefix, ts.Format("2006-01-02T15-04-05"), ext))
}

func (r *Rotator) cleanupBackups() error {
	backups, err := r.backupFiles()
	if err != nil {
		return err
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModTime().Before(backups[j].ModTime())
	})

	var doomed []string
	if r.config.MaxBackups > 0 && len(backups) > r.config.MaxBackups {
		excess := len(backups) - r.config.MaxBackups
		for i := 0; i < excess; i++ {
			doomed = append(doomed, backups[i].Name())
		}
		backups = backups[excess:]
	}
	if r.config.MaxAgeDays > 0 {
		cutoff := time.Now().Add(-time.Duration(r.config.MaxAgeDays) * 24 * time.Hour)
		for _, b := range backups {
			if b.ModTime().Before(cutoff) {
				doomed = append(doomed, b.Name())
			}
		}
	}

	dir := filepath.Dir(r.config.Filename)
	for _, name := range doomed {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			fmt.Fprintf(os.Stderr, "remove rotated log %s: %v\n", name, err)
		}
	}
	return nil
}

func (r *Rotator) backupFiles() ([]os.FileInfo, error) {
	dir := filepath.Dir(r.config.Filename)
	base := filepath.Base(r.config.Filename)
	ext := filepath.Ext(base)
	prefix := base[:len(base)-len(ext)]

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var backups []os.FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if name == base || !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if !strings.HasSuffix(name, ext) && !strings.HasSuffix(name, ext+".gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, info)
	}
	return backups, nil
}

func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	defer func() { _ = dst.Close() }()

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(filename)
}
