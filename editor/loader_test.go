package editor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runboxd/runbox/editor"
)

func bundleServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			hits.Add(1)
		}
		w.Write([]byte("editor-engine-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func deadServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	return srv
}

func TestInitLoadsOnce(t *testing.T) {
	srv, hits := bundleServer(t)

	l := editor.NewLoader([]string{srv.URL + "/engine.js"}, t.TempDir())
	require.NoError(t, l.Init(context.Background()))
	assert.Equal(t, editor.StateReady, l.State())
	assert.NotEmpty(t, l.Path())

	// Idempotent: a second Init does not reload.
	require.NoError(t, l.Init(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
}

func TestInitConcurrentCallsShareOneLoad(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			hits.Add(1)
			<-release
		}
		w.Write([]byte("engine"))
	}))
	defer srv.Close()

	l := editor.NewLoader([]string{srv.URL + "/engine.js"}, t.TempDir())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Init(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return l.State() == editor.StateLoading }, waitFor, tick)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestInitFallsBackOnceWhenMirrorsFail(t *testing.T) {
	bad := deadServer(t)
	fallback, hits := bundleServer(t)

	l := editor.NewLoader(
		[]string{bad.URL + "/engine.js"},
		t.TempDir(),
		editor.WithFallbackURL(fallback.URL+"/engine.js"),
	)
	require.NoError(t, l.Init(context.Background()))
	assert.Equal(t, editor.StateReady, l.State())
	assert.Equal(t, int32(1), hits.Load())
}

func TestInitErrorIsTerminal(t *testing.T) {
	bad := deadServer(t)

	l := editor.NewLoader([]string{bad.URL + "/engine.js"}, t.TempDir())
	require.Error(t, l.Init(context.Background()))
	assert.Equal(t, editor.StateError, l.State())
	assert.Error(t, l.Err())

	// No retry loop hides behind Init; the error persists.
	require.Error(t, l.Init(context.Background()))
}

func TestSubscribeFiresOnReady(t *testing.T) {
	srv, _ := bundleServer(t)
	l := editor.NewLoader([]string{srv.URL + "/engine.js"}, t.TempDir())

	var fired atomic.Bool
	l.Subscribe(func() { fired.Store(true) })
	assert.False(t, fired.Load())

	require.NoError(t, l.Init(context.Background()))
	assert.True(t, fired.Load())
}

func TestSubscribeAfterReadyFiresImmediately(t *testing.T) {
	srv, _ := bundleServer(t)
	l := editor.NewLoader([]string{srv.URL + "/engine.js"}, t.TempDir())
	require.NoError(t, l.Init(context.Background()))

	fired := false
	l.Subscribe(func() { fired = true })
	assert.True(t, fired)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv, _ := bundleServer(t)
	l := editor.NewLoader([]string{srv.URL + "/engine.js"}, t.TempDir())

	fired := false
	unsub := l.Subscribe(func() { fired = true })
	unsub()
	unsub()

	require.NoError(t, l.Init(context.Background()))
	assert.False(t, fired)
}
