package python_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runboxd/runbox/language/python"
)

func TestFactoryFailsWhenNoMirrorReachable(t *testing.T) {
	bad := httptest.NewServer(http.NotFoundHandler())
	defer bad.Close()

	factory := python.NewFactory(
		python.WithMirrors([]string{bad.URL + "/python.wasm"}),
		python.WithCacheDir(t.TempDir()),
	)
	_, err := factory(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve interpreter mirror")
}

func TestFactoryFailsOnMissingLocalBundle(t *testing.T) {
	factory := python.NewFactory(
		python.WithBundlePath("/nonexistent/python.wasm"),
		python.WithCacheDir(t.TempDir()),
	)
	_, err := factory(context.Background())
	require.Error(t, err)
}

func TestFactoryFailsOnCorruptBundle(t *testing.T) {
	// A reachable mirror serving garbage must fail at compile, not at run.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a wasm module"))
	}))
	defer srv.Close()

	factory := python.NewFactory(
		python.WithMirrors([]string{srv.URL + "/python.wasm"}),
		python.WithCacheDir(t.TempDir()),
	)
	_, err := factory(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile interpreter")
}

// Integration tests below need a real interpreter bundle; point
// RUNBOX_PYTHON_BUNDLE at one to enable them.

func integrationEngine(t *testing.T) *python.Engine {
	t.Helper()
	bundle := os.Getenv("RUNBOX_PYTHON_BUNDLE")
	if bundle == "" {
		t.Skip("RUNBOX_PYTHON_BUNDLE not set")
	}

	factory := python.NewFactory(
		python.WithBundlePath(bundle),
		python.WithCacheDir(t.TempDir()),
	)
	eng, err := factory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { eng.(*python.Engine).Close(context.Background()) })
	return eng.(*python.Engine)
}

func TestIntegrationPrint(t *testing.T) {
	eng := integrationEngine(t)

	result := eng.Execute(context.Background(), `print('hi')`)
	require.NoError(t, result.Err)
	assert.Equal(t, "hi\n", result.Output)
}

func TestIntegrationRaisedErrorCaptured(t *testing.T) {
	eng := integrationEngine(t)

	result := eng.Execute(context.Background(), `1/0`)
	require.Error(t, result.Err)
	assert.Empty(t, result.Output)
	assert.Contains(t, strings.ToLower(result.Err.Error()), "division")
}

func TestIntegrationPreloadedImport(t *testing.T) {
	eng := integrationEngine(t)

	result := eng.Execute(context.Background(), "import json\nprint(json.dumps([1, 2]))")
	require.NoError(t, result.Err)
	assert.Equal(t, "[1, 2]\n", result.Output)
}

func TestIntegrationRunsAreIsolated(t *testing.T) {
	eng := integrationEngine(t)

	first := eng.Execute(context.Background(), `x = 41`)
	require.NoError(t, first.Err)

	second := eng.Execute(context.Background(), `print(x)`)
	require.Error(t, second.Err, "state must not leak between runs")
}
