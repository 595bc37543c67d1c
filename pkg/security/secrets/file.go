package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider loads secrets from individual files in a directory, one file
// per secret. Files must be mode 0600 or 0400.
//
// With watching enabled, any write, create, rename or removal in the
// directory drops the provider's cached values so rotated secrets are read
// on next use.
type FileProvider struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewFileProvider creates a file-based secret provider rooted at dir.
func NewFileProvider(dir string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secrets directory: %w", err)
	}

	p := &FileProvider{
		dir:    abs,
		logger: slog.Default().With("component", "secrets.file"),
		values: make(map[string]string),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := w.Add(abs); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch secrets directory: %w", err)
		}
		p.watcher = w
		p.stopCh = make(chan struct{})
		p.done = make(chan struct{})
		go p.watchLoop()
	}

	p.logger.Info("file secret provider started", "path", abs, "watch", watch)
	return p, nil
}

// GetSecret reads <dir>/<name>, trimming surrounding whitespace.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	value, ok := p.values[name]
	p.mu.RUnlock()
	if ok {
		return value, nil
	}

	path := filepath.Join(p.dir, name)
	if !strings.HasPrefix(path, p.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid secret name %q: path escapes secrets directory", name)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", name)
	}
	if mode := info.Mode().Perm(); mode != 0600 && mode != 0400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - path is confined to the secrets directory above
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.values[name] = value
	p.mu.Unlock()

	return value, nil
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}

// Refresh drops every cached value.
func (p *FileProvider) Refresh(context.Context) error {
	p.mu.Lock()
	p.values = make(map[string]string)
	p.mu.Unlock()
	return nil
}

// Close stops the watcher, if any.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.stopCh)
	<-p.done
	return p.watcher.Close()
}

func (p *FileProvider) watchLoop() {
	defer close(p.done)
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			p.logger.Debug("secret file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			_ = p.Refresh(context.Background())

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("secret watcher error", "error", err)

		case <-p.stopCh:
			return
		}
	}
}
