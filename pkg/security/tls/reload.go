package tls

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader serves a certificate pair from disk and reloads it when either
// file changes. A failed reload keeps the previous certificate.
type Reloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewReloader loads the pair and starts watching the directories holding
// them. Directories are watched rather than the files so renames done by
// certificate managers are seen.
func NewReloader(certFile, keyFile string) (*Reloader, error) {
	r := &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default().With("component", "tls"),
		done:     make(chan struct{}),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate watcher: %w", err)
	}
	for _, dir := range watchDirs(certFile, keyFile) {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	r.watcher = w
	go r.watchLoop()

	return r, nil
}

// Reload reads the pair from disk and swaps it in if it validates.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	leaf, err := ValidateCertificate(&cert, time.Now())
	if err != nil {
		return fmt.Errorf("certificate validation failed: %w", err)
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()

	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if ExpiresSoon(leaf, time.Now()) {
		r.logger.Warn("certificate expiring soon", attrs...)
	} else {
		r.logger.Info("certificate loaded", attrs...)
	}
	return nil
}

// GetCertificate is installed as tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// Close stops watching. The last certificate stays served.
func (r *Reloader) Close() error {
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	<-r.done
	return err
}

func (r *Reloader) watchLoop() {
	defer close(r.done)

	targets := map[string]bool{
		filepath.Clean(r.certFile): true,
		filepath.Clean(r.keyFile):  true,
	}
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !targets[filepath.Clean(event.Name)] || event.Op == fsnotify.Chmod {
				continue
			}
			if err := r.Reload(); err != nil {
				// the pair may be mid-rotation; the next event retries
				r.logger.Warn("certificate reload failed", "file", event.Name, "error", err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("certificate watcher error", "error", err)
		}
	}
}

func watchDirs(files ...string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		dir := filepath.Dir(f)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
