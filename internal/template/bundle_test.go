package template

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeBundle(t *testing.T, appRoot, id, manifest, composeBody string) {
	t.Helper()
	root := filepath.Join(appRoot, id)
	tmplDir := filepath.Join(root, "template")
	require.NoError(t, os.MkdirAll(tmplDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "application.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmplDir, "docker-compose.yaml"), []byte(composeBody), 0o644))
}

func TestNewStore_LoadsExistingBundles(t *testing.T) {
	appRoot := t.TempDir()
	writeBundle(t, appRoot, "web", "name: web\nversion: \"1\"\n", "image: nginx\n")

	store, err := NewStore(appRoot, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	b := store.Get("web")
	require.NotNil(t, b)
	require.Equal(t, "web", b.Info().Name)
	require.Equal(t, []string{"docker-compose.yaml"}, b.Templates())
}

func TestNewStore_MissingAppRootIsNotAnError(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.Empty(t, store.List())
}

func TestNewStore_SkipsBundleMissingManifest(t *testing.T) {
	appRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(appRoot, "broken"), 0o755))
	writeBundle(t, appRoot, "web", "name: web\n", "image: nginx\n")

	store, err := NewStore(appRoot, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.Nil(t, store.Get("broken"))
	require.NotNil(t, store.Get("web"))
}

func TestBundle_ReloadPicksUpManifestChange(t *testing.T) {
	appRoot := t.TempDir()
	writeBundle(t, appRoot, "web", "name: web\nversion: \"1\"\n", "image: nginx\n")

	store, err := NewStore(appRoot, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	b := store.Get("web")
	require.Equal(t, "1", b.Info().Version)

	manifestPath := filepath.Join(appRoot, "web", "application.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte("name: web\nversion: \"2\"\n"), 0o644))

	require.Eventually(t, func() bool {
		return b.Info().Version == "2"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBundle_ProjectDir(t *testing.T) {
	appRoot := t.TempDir()
	writeBundle(t, appRoot, "web", "name: web\n", "image: nginx\n")

	store, err := NewStore(appRoot, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	b := store.Get("web")
	require.Equal(t, "", b.ProjectDir())

	require.NoError(t, os.MkdirAll(filepath.Join(appRoot, "web", "project"), 0o755))
	require.Equal(t, filepath.Join(appRoot, "web", "project"), b.ProjectDir())
}
