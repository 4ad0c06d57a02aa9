package certwatch

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esp32-testserver/internal/certs"
)

func writePair(t *testing.T, dir string) certs.Paths {
	t.Helper()
	p := certs.Paths{
		Fs:       afero.NewOsFs(),
		CertPath: filepath.Join(dir, "cert.pem"),
		KeyPath:  filepath.Join(dir, "key.pem"),
	}
	require.NoError(t, certs.GenerateSelfSigned(p, []string{"localhost"}))
	return p
}

func TestNewMissingFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := New(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"))
	assert.Error(t, err)
}

func TestNewLoadsPair(t *testing.T) {
	p := writePair(t, t.TempDir())

	w, err := New(p.CertPath, p.KeyPath)
	require.NoError(t, err)
	defer w.Close()

	cert, err := w.GetCertificate(nil)
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.NotEmpty(t, cert.Certificate)

	cfg := w.TLSConfig()
	assert.NotNil(t, cfg.GetCertificate)
}

func TestReloadKeepsPreviousOnFailure(t *testing.T) {
	p := writePair(t, t.TempDir())

	w, err := New(p.CertPath, p.KeyPath)
	require.NoError(t, err)
	defer w.Close()

	before := w.Certificate()

	require.NoError(t, afero.WriteFile(p.Fs, p.CertPath, []byte("broken"), 0644))
	assert.Error(t, w.Reload())
	assert.Same(t, before, w.Certificate())
}

func TestRunReloadsOnChange(t *testing.T) {
	p := writePair(t, t.TempDir())

	w, err := New(p.CertPath, p.KeyPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	original := w.Certificate().Certificate[0]

	require.NoError(t, certs.GenerateSelfSigned(p, []string{"localhost"}))

	require.Eventually(t, func() bool {
		return !bytes.Equal(original, w.Certificate().Certificate[0])
	}, 5*time.Second, 20*time.Millisecond, "certificate was not reloaded")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRelevant(t *testing.T) {
	w := &Watcher{certPath: "/certs/cert.pem", keyPath: "/certs/key.pem"}

	assert.True(t, w.relevant(fsnotify.Event{Name: "/certs/cert.pem", Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/certs/key.pem", Op: fsnotify.Create}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/certs/./cert.pem", Op: fsnotify.Rename}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/certs/cert.pem.tmp", Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/certs/cert.pem", Op: fsnotify.Chmod}))
}
