// Package certwatch serves a TLS key pair from disk and reloads it when the
// files change, so renewed certificates are used without a restart.
package certwatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"esp32-testserver/internal/logger"
)

type Watcher struct {
	certPath string
	keyPath  string

	mu   sync.RWMutex
	cert *tls.Certificate

	watcher *fsnotify.Watcher
}

// New loads the key pair and starts watching the directories that hold it.
// Call Run to process change events and Close (or cancel Run) to release the
// watcher.
func New(certPath, keyPath string) (*Watcher, error) {
	w := &Watcher{certPath: filepath.Clean(certPath), keyPath: filepath.Clean(keyPath)}
	if err := w.Reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	// Watch directories rather than files: atomic renames replace the inode.
	dirs := map[string]bool{filepath.Dir(w.certPath): true, filepath.Dir(w.keyPath): true}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	w.watcher = fw

	return w, nil
}

// Reload reads the key pair from disk. On failure the previous pair stays in use.
func (w *Watcher) Reload() error {
	for _, p := range []string{w.certPath, w.keyPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("certificate file not found: %w", err)
		}
	}

	cert, err := tls.LoadX509KeyPair(w.certPath, w.keyPath)
	if err != nil {
		return fmt.Errorf("loading TLS certificate: %w", err)
	}

	w.mu.Lock()
	w.cert = &cert
	w.mu.Unlock()
	return nil
}

// Certificate returns the key pair currently in use.
func (w *Watcher) Certificate() *tls.Certificate {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.Certificate(), nil
}

// TLSConfig returns a server TLS config backed by the watcher.
func (w *Watcher) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: w.GetCertificate,
	}
}

// Run reloads the key pair whenever one of its files is written, created or
// renamed into place. It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if err := w.Reload(); err != nil {
				// Usually the other half of the pair has not been written yet.
				logger.Debugf("Certificate reload after %s skipped: %v", event, err)
				continue
			}
			logger.Infof("Reloaded TLS certificate from %s", w.certPath)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Certificate watcher error: %v", err)
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.certPath || name == w.keyPath
}
