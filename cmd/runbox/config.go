package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/runboxd/runbox/language/python"
	"github.com/runboxd/runbox/language/remote"
	"github.com/runboxd/runbox/language/tengo"
	"github.com/runboxd/runbox/runtime"
)

// Config is the CLI configuration, loaded from runbox.yaml and RUNBOX_*
// environment variables.
type Config struct {
	CacheDir       string        `mapstructure:"cache_dir"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`

	Python struct {
		Mirrors []string `mapstructure:"mirrors"`
		Bundle  string   `mapstructure:"bundle"`
		Index   string   `mapstructure:"index"`
	} `mapstructure:"python"`

	Services []ServiceConfig `mapstructure:"services"`
}

// ServiceConfig describes one hosted compiler endpoint.
type ServiceConfig struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Schema  string        `mapstructure:"schema"`
	Wrap    string        `mapstructure:"wrap"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("runbox")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/runbox")
	}
	v.SetEnvPrefix("RUNBOX")
	v.AutomaticEnv()

	v.SetDefault("acquire_timeout", 2*time.Minute)
	v.SetDefault("python.mirrors", []string{
		"https://cdn.jsdelivr.net/gh/runboxd/runtimes@main/python.wasm",
		"https://fastly.jsdelivr.net/gh/runboxd/runtimes@main/python.wasm",
	})
	v.SetDefault("python.index", "https://pypi.org/pypi")
	v.SetDefault("services", []map[string]any{
		{"name": "go", "url": "https://play.golang.org/compile", "schema": "play", "wrap": "go"},
	})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// buildRegistry wires every configured language into a fresh registry.
func buildRegistry(cfg *Config) (*runtime.Registry, error) {
	reg := runtime.New(runtime.WithAcquireTimeout(cfg.AcquireTimeout))

	pyOpts := []python.Option{
		python.WithMirrors(cfg.Python.Mirrors),
	}
	if cfg.Python.Bundle != "" {
		pyOpts = append(pyOpts, python.WithBundlePath(cfg.Python.Bundle))
	}
	if cfg.Python.Index != "" {
		pyOpts = append(pyOpts, python.WithIndexURL(cfg.Python.Index))
	}
	if cfg.CacheDir != "" {
		pyOpts = append(pyOpts, python.WithCacheDir(cfg.CacheDir))
	}
	reg.Register("python", python.NewFactory(pyOpts...))

	reg.Register("tengo", tengo.NewFactory())

	for _, sc := range cfg.Services {
		svc, err := buildService(sc)
		if err != nil {
			return nil, err
		}
		reg.Register(sc.Name, remote.NewFactory(svc))
	}

	return reg, nil
}

func buildService(sc ServiceConfig) (remote.Service, error) {
	svc := remote.Service{
		Name:        sc.Name,
		URL:         sc.URL,
		ExecTimeout: sc.Timeout,
	}

	switch sc.Schema {
	case "", "play":
		svc.Schema = remote.SchemaPlay
	case "judge":
		svc.Schema = remote.SchemaJudge
	default:
		return svc, fmt.Errorf("service %s: unknown schema %q", sc.Name, sc.Schema)
	}

	switch sc.Wrap {
	case "":
	case "go":
		svc.Wrap = remote.WrapGo
	case "c":
		svc.Wrap = remote.WrapC
	default:
		return svc, fmt.Errorf("service %s: unknown wrap %q", sc.Name, sc.Wrap)
	}

	return svc, nil
}
