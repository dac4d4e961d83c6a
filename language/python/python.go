// Package python runs code on an embedded WebAssembly Python interpreter.
//
// The interpreter bundle is not shipped with the binary: the factory resolves
// a CDN mirror on first acquisition, downloads the bundle into a local cache
// directory, and compiles it once. Imports detected in user code are
// installed from the configured package index before each run.
package python

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/runboxd/runbox/cdn"
	"github.com/runboxd/runbox/engine"
	"github.com/runboxd/runbox/internal/logger"
)

const bundleName = "python.wasm"

type config struct {
	mirrors    []string
	bundlePath string
	cacheDir   string
	indexURL   string
	client     *http.Client
	resolver   *cdn.Resolver
	preload    []string
}

// Option configures the Python engine factory.
type Option func(*config)

// WithMirrors sets the ordered CDN mirror URLs for the interpreter bundle.
func WithMirrors(urls []string) Option {
	return func(c *config) {
		c.mirrors = urls
	}
}

// WithBundlePath uses a local interpreter bundle instead of resolving a CDN
// mirror. Used by tests and air-gapped deployments.
func WithBundlePath(path string) Option {
	return func(c *config) {
		c.bundlePath = path
	}
}

// WithCacheDir overrides the directory the bundle and packages are kept in.
func WithCacheDir(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithIndexURL sets the package index base URL (default https://pypi.org/pypi).
func WithIndexURL(url string) Option {
	return func(c *config) {
		c.indexURL = url
	}
}

// WithClient sets the HTTP client used for bundle and package downloads.
func WithClient(client *http.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithPreload overrides the set of modules considered already available in
// the interpreter. The dependency installer never fetches these.
func WithPreload(modules []string) Option {
	return func(c *config) {
		c.preload = modules
	}
}

// NewFactory returns an engine.Factory for the embedded interpreter.
// Construction downloads and compiles the bundle, so it should only run
// through a memoizing registry.
func NewFactory(opts ...Option) engine.Factory {
	cfg := config{
		indexURL: "https://pypi.org/pypi",
		client:   http.DefaultClient,
		preload:  preloadedModules(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cacheDir == "" {
		cfg.cacheDir = defaultCacheDir()
	}
	if cfg.resolver == nil {
		cfg.resolver = cdn.New(cdn.WithClient(cfg.client))
	}

	return func(ctx context.Context) (engine.Engine, error) {
		return newEngine(ctx, cfg)
	}
}

// Engine executes Python source on a wazero-hosted interpreter. The compiled
// module is shared; each Execute instantiates a fresh module with its own
// captured stdout, so runs do not observe each other's state.
type Engine struct {
	runtime     wazero.Runtime
	compiled    wazero.CompiledModule
	installer   *installer
	preloaded   map[string]struct{}
	packagesDir string
}

func newEngine(ctx context.Context, cfg config) (*Engine, error) {
	bundle, err := loadBundle(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, bundle)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compile interpreter: %w", err)
	}

	preloaded := make(map[string]struct{}, len(cfg.preload))
	for _, m := range cfg.preload {
		preloaded[m] = struct{}{}
	}

	packagesDir := filepath.Join(cfg.cacheDir, "packages")
	e := &Engine{
		runtime:     rt,
		compiled:    compiled,
		installer:   newInstaller(cfg.indexURL, packagesDir, cfg.client),
		preloaded:   preloaded,
		packagesDir: packagesDir,
	}

	// Warm-up run pages in the preloaded stdlib modules so the first user
	// execution does not pay their import cost.
	if warm := warmupSource(cfg.preload); warm != "" {
		e.run(ctx, warm)
	}

	return e, nil
}

// loadBundle returns the interpreter wasm bytes, downloading them through the
// CDN resolver unless a local bundle is configured or already cached.
func loadBundle(ctx context.Context, cfg config) ([]byte, error) {
	path := cfg.bundlePath
	if path == "" {
		path = filepath.Join(cfg.cacheDir, bundleName)
		if _, err := os.Stat(path); err != nil {
			url, err := cfg.resolver.Resolve(ctx, cfg.mirrors)
			if err != nil {
				return nil, fmt.Errorf("resolve interpreter mirror: %w", err)
			}
			if err := cfg.resolver.Download(ctx, url, path); err != nil {
				return nil, fmt.Errorf("download interpreter: %w", err)
			}
		}
	}

	bundle, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read interpreter bundle: %w", err)
	}
	return bundle, nil
}

// Language returns "python".
func (e *Engine) Language() string {
	return "python"
}

// Execute installs any imports the source needs, runs it, and returns the
// captured stdout. Interpreter errors come back in Result.Err with the
// traceback text; output is empty in that case.
func (e *Engine) Execute(ctx context.Context, source string) engine.Result {
	start := time.Now()

	for _, pkg := range e.missingPackages(source) {
		if err := e.installer.Install(ctx, pkg); err != nil {
			// Partial degradation: the run proceeds and the interpreter
			// reports the import failure itself if the module is truly needed.
			logger.G(ctx).WithField("package", pkg).WithError(err).Warn("package install failed, continuing")
		}
	}

	output, err := e.run(ctx, source)
	result := engine.Result{Duration: time.Since(start)}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.Err = fmt.Errorf("execution: %w", engine.ErrTimedOut)
		} else {
			result.Err = err
		}
		return result
	}
	result.Output = output
	return result
}

// run instantiates the compiled interpreter with a per-run stdout buffer.
func (e *Engine) run(ctx context.Context, source string) (string, error) {
	var stdout, stderr bytes.Buffer

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs("python", "-c", source).
		WithName("")

	if _, err := os.Stat(e.packagesDir); err == nil {
		moduleConfig = moduleConfig.
			WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(e.packagesDir, "/packages")).
			WithEnv("PYTHONPATH", "/packages")
	}

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, moduleConfig)
	if mod != nil {
		mod.Close(ctx)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.New(msg)
	}
	return stdout.String(), nil
}

// missingPackages maps the source's imports to installable package names,
// dropping preloaded modules and anything already installed.
func (e *Engine) missingPackages(source string) []string {
	var missing []string
	for _, mod := range scanImports(source) {
		if _, ok := e.preloaded[mod]; ok {
			continue
		}
		pkg := mod
		if mapped, ok := moduleToPackage[mod]; ok {
			pkg = mapped
		}
		if e.installer.Installed(pkg) {
			continue
		}
		missing = append(missing, pkg)
	}
	return missing
}

// Close releases the wazero runtime.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func warmupSource(preload []string) string {
	if len(preload) == 0 {
		return ""
	}
	return "import " + strings.Join(preload, ", ")
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "runbox", "python")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "runbox", "python")
	}
	return filepath.Join(os.TempDir(), "runbox-python")
}
