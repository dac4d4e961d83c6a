package python

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex serves package metadata and a pure-Python wheel the way a real
// index would.
func fakeIndex(t *testing.T, pkgName string, wheel []byte, wheelName string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + pkgName + "/json":
			resp := indexResponse{}
			resp.Info.Name = pkgName
			resp.Info.Version = "1.0.0"
			resp.Urls = []indexRelease{
				{PackageType: "sdist", Filename: pkgName + "-1.0.0.tar.gz", URL: srv.URL + "/sdist"},
				{PackageType: "bdist_wheel", Filename: wheelName, URL: srv.URL + "/wheel"},
			}
			json.NewEncoder(w).Encode(resp)
		case "/wheel":
			w.Write(wheel)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildWheel(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestInstallExtractsWheel(t *testing.T) {
	wheel := buildWheel(t, map[string]string{
		"demo/__init__.py":            "VERSION = '1.0.0'\n",
		"demo/core.py":                "def hi():\n    return 'hi'\n",
		"demo-1.0.0.dist-info/RECORD": "metadata",
	})
	srv := fakeIndex(t, "demo", wheel, "demo-1.0.0-py3-none-any.whl")

	dir := t.TempDir()
	in := newInstaller(srv.URL, dir, srv.Client())

	require.NoError(t, in.Install(context.Background(), "demo"))
	assert.True(t, in.Installed("demo"))

	data, err := os.ReadFile(filepath.Join(dir, "demo", "core.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "def hi()")

	// dist-info metadata is not extracted
	_, err = os.Stat(filepath.Join(dir, "demo-1.0.0.dist-info"))
	assert.True(t, os.IsNotExist(err))
}

func TestInstallIdempotent(t *testing.T) {
	var metaHits int
	var srv *httptest.Server
	wheel := buildWheel(t, map[string]string{"demo/__init__.py": ""})
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/demo/json" {
			metaHits++
			resp := indexResponse{}
			resp.Info.Name = "demo"
			resp.Urls = []indexRelease{{PackageType: "bdist_wheel", Filename: "demo-1.0.0-py3-none-any.whl", URL: srv.URL + "/wheel"}}
			json.NewEncoder(w).Encode(resp)
			return
		}
		w.Write(wheel)
	}))
	defer srv.Close()

	in := newInstaller(srv.URL, t.TempDir(), srv.Client())
	require.NoError(t, in.Install(context.Background(), "demo"))
	require.NoError(t, in.Install(context.Background(), "demo"))
	assert.Equal(t, 1, metaHits)
}

func TestInstallUnknownPackage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	in := newInstaller(srv.URL, t.TempDir(), srv.Client())
	err := in.Install(context.Background(), "nosuchpkg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, in.Installed("nosuchpkg"))
}

func TestInstallRejectsNativeWheel(t *testing.T) {
	wheel := buildWheel(t, map[string]string{
		"fast/__init__.py": "",
		"fast/_speed.so":   "\x7fELF",
	})
	srv := fakeIndex(t, "fast", wheel, "fast-1.0.0-py3-none-any.whl")

	in := newInstaller(srv.URL, t.TempDir(), srv.Client())
	err := in.Install(context.Background(), "fast")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "native extension")
}

func TestInstallNoPureWheelAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := indexResponse{}
		resp.Info.Name = "cext"
		resp.Urls = []indexRelease{
			{PackageType: "bdist_wheel", Filename: "cext-1.0.0-cp312-cp312-linux_x86_64.whl", URL: "http://unused.invalid"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	in := newInstaller(srv.URL, t.TempDir(), srv.Client())
	err := in.Install(context.Background(), "cext")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pure-Python wheel")
}

func TestFindWheelPrefersPureWheels(t *testing.T) {
	urls := []indexRelease{
		{PackageType: "sdist", Filename: "a-1.tar.gz", URL: "u1"},
		{PackageType: "bdist_wheel", Filename: "a-1-cp312-cp312-linux_x86_64.whl", URL: "u2"},
		{PackageType: "bdist_wheel", Filename: "a-1-py2.py3-none-any.whl", URL: "u3"},
	}
	assert.Equal(t, "u3", findWheel(urls))
	assert.Equal(t, "", findWheel(urls[:2]))
}

func TestExtractWheelRejectsPathEscape(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("../escape.py")
	require.NoError(t, err)
	fmt.Fprint(f, "evil")
	require.NoError(t, zw.Close())

	tmp := filepath.Join(t.TempDir(), "evil.whl")
	require.NoError(t, os.WriteFile(tmp, buf.Bytes(), 0o644))

	err = extractWheel(tmp, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}
