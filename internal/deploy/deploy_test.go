package deploy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rekcod/rekcod/internal/kvs"
	"github.com/stretchr/testify/require"
)

func newTestDeployer(t *testing.T) *Deployer {
	t.Helper()
	store, err := kvs.Open(context.Background(), filepath.Join(t.TempDir(), "rekcod.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil, nil, nil, nil)
}

func TestPickComposeFile_FindsComposeFile(t *testing.T) {
	rendered := map[string]string{
		"README.md":          "ignore me",
		"docker-compose.yaml": "image: nginx",
	}
	text, name, err := pickComposeFile(rendered)
	require.NoError(t, err)
	require.Equal(t, "image: nginx", text)
	require.Equal(t, "docker-compose.yaml", name)
}

func TestPickComposeFile_ErrorsWhenMissing(t *testing.T) {
	_, _, err := pickComposeFile(map[string]string{"README.md": "x"})
	require.Error(t, err)
}

func TestSaveInfoThenLoadInfo_RoundTrips(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	info := Info{Name: "web1", NodeName: "n1", Values: "tag: 1.27", Build: true}
	require.NoError(t, d.saveInfo(ctx, info, true))

	loaded, err := d.loadInfo(ctx, "web1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, info, *loaded)
}

func TestSaveInfo_ConcurrentFirstDeployIsRejected(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	require.NoError(t, d.saveInfo(ctx, Info{Name: "web1", NodeName: "n1"}, true))
	err := d.saveInfo(ctx, Info{Name: "web1", NodeName: "n2"}, true)
	require.Error(t, err)

	loaded, loadErr := d.loadInfo(ctx, "web1")
	require.NoError(t, loadErr)
	require.Equal(t, "n1", loaded.NodeName)
}

func TestSaveInfo_RedeployUpdatesExisting(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	require.NoError(t, d.saveInfo(ctx, Info{Name: "web1", NodeName: "n1"}, true))
	require.NoError(t, d.saveInfo(ctx, Info{Name: "web1", NodeName: "n2"}, false))

	loaded, err := d.loadInfo(ctx, "web1")
	require.NoError(t, err)
	require.Equal(t, "n2", loaded.NodeName)
}

func TestLoadInfo_NilWhenNotFound(t *testing.T) {
	d := newTestDeployer(t)
	loaded, err := d.loadInfo(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestDelete_RemovesRow(t *testing.T) {
	d := newTestDeployer(t)
	ctx := context.Background()

	require.NoError(t, d.saveInfo(ctx, Info{Name: "web1", NodeName: "n1"}, true))
	require.NoError(t, d.Delete(ctx, "web1"))

	loaded, err := d.loadInfo(ctx, "web1")
	require.NoError(t, err)
	require.Nil(t, loaded)
}
