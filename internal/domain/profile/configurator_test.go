package profile

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firedesk/firedesk/internal/shared/types"
)

func testInstance(t *testing.T, proxy *types.Proxy) *types.Instance {
	t.Helper()
	return &types.Instance{
		ID:          "inst_test",
		Name:        "test",
		ProfilePath: filepath.Join(t.TempDir(), "inst_test"),
		Proxy:       proxy,
	}
}

func readUserJS(t *testing.T, inst *types.Instance) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(inst.ProfilePath, "user.js"))
	require.NoError(t, err)
	return string(data)
}

func TestProvisionCreatesProfileDir(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, nil)

	require.NoError(t, c.Provision(inst))

	info, err := os.Stat(inst.ProfilePath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	content := readUserJS(t, inst)
	assert.Contains(t, content, `user_pref("network.proxy.type", 0);`)
}

func TestApplyProxySocks5(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, &types.Proxy{
		Type: types.ProxySOCKS5,
		Host: "10.0.0.5",
		Port: 1080,
	})

	require.NoError(t, c.Provision(inst))
	content := readUserJS(t, inst)

	assert.Contains(t, content, `user_pref("network.proxy.type", 1);`)
	assert.Contains(t, content, `user_pref("network.proxy.socks", "10.0.0.5");`)
	assert.Contains(t, content, `user_pref("network.proxy.socks_port", 1080);`)
	assert.Contains(t, content, `user_pref("network.proxy.socks_version", 5);`)
	assert.Contains(t, content, `user_pref("network.proxy.socks_remote_dns", true);`)
}

func TestApplyProxyHTTPCoversSSL(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, &types.Proxy{
		Type: types.ProxyHTTP,
		Host: "proxy.local",
		Port: 3128,
	})

	require.NoError(t, c.Provision(inst))
	content := readUserJS(t, inst)

	assert.Contains(t, content, `user_pref("network.proxy.http", "proxy.local");`)
	assert.Contains(t, content, `user_pref("network.proxy.http_port", 3128);`)
	assert.Contains(t, content, `user_pref("network.proxy.ssl", "proxy.local");`)
	assert.Contains(t, content, `user_pref("network.proxy.ssl_port", 3128);`)
}

func TestApplyProxyIdempotent(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, &types.Proxy{
		Type: types.ProxySOCKS5,
		Host: "10.0.0.5",
		Port: 1080,
	})

	require.NoError(t, c.Provision(inst))
	first, err := os.ReadFile(filepath.Join(inst.ProfilePath, "user.js"))
	require.NoError(t, err)

	require.NoError(t, c.ApplyProxy(inst))
	second, err := os.ReadFile(filepath.Join(inst.ProfilePath, "user.js"))
	require.NoError(t, err)

	assert.Equal(t, first, second, "reapplying the same proxy must be byte-identical")
}

func TestApplyProxyClearsOnNone(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, &types.Proxy{
		Type: types.ProxySOCKS5,
		Host: "10.0.0.5",
		Port: 1080,
	})
	require.NoError(t, c.Provision(inst))

	inst.Proxy = &types.Proxy{Type: types.ProxyNone}
	require.NoError(t, c.ApplyProxy(inst))

	content := readUserJS(t, inst)
	assert.Contains(t, content, `user_pref("network.proxy.type", 0);`)
	assert.NotContains(t, content, "network.proxy.socks")
}

func TestApplyProxyLeavesOtherFilesAlone(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, nil)
	require.NoError(t, c.Provision(inst))

	prefs := filepath.Join(inst.ProfilePath, "prefs.js")
	require.NoError(t, os.WriteFile(prefs, []byte("// firefox-owned\n"), 0o644))

	inst.Proxy = &types.Proxy{Type: types.ProxyHTTP, Host: "p", Port: 80}
	require.NoError(t, c.ApplyProxy(inst))

	data, err := os.ReadFile(prefs)
	require.NoError(t, err)
	assert.Equal(t, "// firefox-owned\n", string(data))
}

func TestRemove(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, nil)
	require.NoError(t, c.Provision(inst))

	require.NoError(t, c.Remove(inst))
	_, err := os.Stat(inst.ProfilePath)
	assert.True(t, os.IsNotExist(err))

	// Removing an already-absent profile is not an error.
	assert.NoError(t, c.Remove(inst))
}

func TestArchive(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, &types.Proxy{Type: types.ProxyHTTP, Host: "p", Port: 80})
	require.NoError(t, c.Provision(inst))
	require.NoError(t, os.MkdirAll(filepath.Join(inst.ProfilePath, "chrome"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inst.ProfilePath, "chrome", "userChrome.css"), []byte("body{}"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, c.Archive(inst, &buf))

	gzReader, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	tarReader := tar.NewReader(gzReader)

	names := map[string]bool{}
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names[header.Name] = true
	}

	assert.True(t, names["inst_test/user.js"])
	assert.True(t, names["inst_test/chrome/userChrome.css"])
}

func TestArchiveMissingProfile(t *testing.T) {
	c := New(nil)
	inst := testInstance(t, nil)

	var buf bytes.Buffer
	assert.Error(t, c.Archive(inst, &buf))
}
