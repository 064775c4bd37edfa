package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"slack-logger/internal/model"
)

// RotationSuffix is the date layout appended to rotated log files.
const RotationSuffix = "2006-01-02"

// FileRecorder appends records as JSON lines to a file that is rotated daily.
type FileRecorder struct {
	path string
	mu   sync.Mutex
}

func NewFileRecorder(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to init log file: %w", err)
	}
	_ = f.Close()
	return &FileRecorder{path: path}, nil
}

func (r *FileRecorder) Path() string { return r.path }

func (r *FileRecorder) Append(rec model.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open append: %w", err)
	}
	defer f.Close()
	if err := encodeLine(f, rec); err != nil {
		return fmt.Errorf("encode append: %w", err)
	}
	return nil
}

// Load reads the active file. Lines that do not decode are skipped.
func (r *FileRecorder) Load() ([]model.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return LoadFile(r.path)
}

// Rotate moves the active file aside with the date of the day that ended
// before now, e.g. slack-log.2021-01-06 when called at midnight of the 7th.
// An existing file with that name is appended to rather than overwritten.
func (r *FileRecorder) Rotate(now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := now.Add(-time.Second).Format(RotationSuffix)
	target := r.path + "." + day

	st, err := os.Stat(r.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && st.Size() == 0) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat log: %w", err)
	}

	if _, err := os.Stat(target); err == nil {
		if err := appendFile(target, r.path); err != nil {
			return "", err
		}
		if err := os.Truncate(r.path, 0); err != nil {
			return "", fmt.Errorf("truncate log: %w", err)
		}
		return target, nil
	}

	if err := os.Rename(r.path, target); err != nil {
		return "", fmt.Errorf("rotate log: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE, 0o644)
	if err != nil {
		return "", fmt.Errorf("recreate log: %w", err)
	}
	_ = f.Close()
	return target, nil
}

// LoadFile decodes a JSON-lines record file.
func LoadFile(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open read: %w", err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 10*1024*1024)
	var records []model.Record
	for s.Scan() {
		line := s.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return records, nil
}

func encodeLine(f *os.File, rec model.Record) error {
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return enc.Encode(rec)
}

func appendFile(dst, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	f, err := os.OpenFile(dst, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open rotated log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append rotated log: %w", err)
	}
	return nil
}
