package python

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// installer fetches pure-Python wheels from a package index and unpacks them
// into the packages directory mounted into the interpreter. Packages with
// native extensions cannot run inside the WASM interpreter and are rejected.
type installer struct {
	indexURL string
	dir      string
	client   *http.Client

	mu        sync.Mutex
	installed map[string]struct{}
}

func newInstaller(indexURL, dir string, client *http.Client) *installer {
	return &installer{
		indexURL:  strings.TrimRight(indexURL, "/"),
		dir:       dir,
		client:    client,
		installed: make(map[string]struct{}),
	}
}

type indexRelease struct {
	PackageType string `json:"packagetype"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
}

type indexResponse struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	Urls []indexRelease `json:"urls"`
}

// Installed reports whether name was already installed this process.
func (in *installer) Installed(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.installed[name]
	return ok
}

// Install fetches and unpacks one package. It is idempotent per process.
func (in *installer) Install(ctx context.Context, name string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, ok := in.installed[name]; ok {
		return nil
	}

	meta, err := in.lookup(ctx, name)
	if err != nil {
		return err
	}

	wheelURL := findWheel(meta.Urls)
	if wheelURL == "" {
		return fmt.Errorf("no pure-Python wheel for %s", name)
	}

	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return err
	}
	if err := in.fetchAndExtract(ctx, wheelURL); err != nil {
		return err
	}

	in.installed[name] = struct{}{}
	return nil
}

func (in *installer) lookup(ctx context.Context, name string) (*indexResponse, error) {
	url := fmt.Sprintf("%s/%s/json", in.indexURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := in.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch package info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("package %s not found on index", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index returned status %s", resp.Status)
	}

	var meta indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("parse index response: %w", err)
	}
	return &meta, nil
}

func (in *installer) fetchAndExtract(ctx context.Context, wheelURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wheelURL, nil)
	if err != nil {
		return err
	}

	resp, err := in.client.Do(req)
	if err != nil {
		return fmt.Errorf("download wheel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download wheel: status %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "runbox-*.whl")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download wheel: %w", err)
	}
	tmp.Close()

	return extractWheel(tmpPath, in.dir)
}

// findWheel picks a pure-Python wheel; nothing with native extensions works
// inside the WASM interpreter.
func findWheel(urls []indexRelease) string {
	for _, u := range urls {
		if u.PackageType != "bdist_wheel" {
			continue
		}
		filename := strings.ToLower(u.Filename)
		if strings.Contains(filename, "-py3-none-any") || strings.Contains(filename, "-py2.py3-none-any") {
			return u.URL
		}
	}
	return ""
}

func extractWheel(wheelPath, destDir string) error {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := strings.ToLower(f.Name)
		if strings.HasSuffix(name, ".so") || strings.HasSuffix(name, ".pyd") || strings.HasSuffix(name, ".dylib") {
			return fmt.Errorf("package contains native extension %s", filepath.Base(f.Name))
		}
	}

	for _, f := range r.File {
		if strings.Contains(f.Name, ".dist-info/") {
			continue
		}

		destPath := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("wheel entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}

		out, err := os.Create(destPath)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			out.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}

	return nil
}
