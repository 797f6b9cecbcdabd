package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RAGD_"
)

// nestedSections are config sections that contain a sub-section, so their
// env keys need a second dot.
var nestedSections = []string{"vectorstore.chromem_"}

// Load reads configuration from path (YAML or TOML by extension), then
// applies RAGD_* environment overrides on top.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RAGD_CHUNKING_MAX_CHARS, RAGD_QDRANT_HOST, ...)
//  2. Config file
//  3. Default()
//
// An empty path looks for ./ragd.yaml and then ~/.config/ragd/config.yaml;
// when neither exists only defaults and environment apply. An explicit path
// that does not exist is an error.
//
// Environment keys split on the first underscore after the prefix:
//
//	RAGD_CHUNKING_MAX_CHARS       -> chunking.max_chars
//	RAGD_VECTORSTORE_CHROMEM_PATH -> vectorstore.chromem.path
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		if err := loadFile(k, path, explicit); err != nil {
			return nil, fmt.Errorf("%w: %w", ragerr.ErrConfiguration, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("%w: loading environment: %w", ragerr.ErrConfiguration, err)
	}

	// Unmarshal over the defaults so keys absent from every source keep their
	// default and explicit zeros (e.g. overlap: 0) survive.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %w", ragerr.ErrConfiguration, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPath returns the first existing default config file, or "".
func DefaultPath() string {
	candidates := []string{"ragd.yaml", "ragd.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "ragd", "config.yaml"),
			filepath.Join(home, ".config", "ragd", "config.toml"),
		)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func loadFile(k *koanf.Koanf, path string, required bool) error {
	// Open once and validate the descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parser = TOMLParser()
	}

	if err := k.Load(rawbytes.Provider(content), parser); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// validateConfigFileProperties checks size and write permissions.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure permissions %v: must not be group or world writable", perm)
		}
	}
	return nil
}

// envKey maps RAGD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	key := parts[0] + "." + parts[1]
	for _, nested := range nestedSections {
		if strings.HasPrefix(key, nested) {
			return strings.TrimSuffix(nested, "_") + "." + strings.TrimPrefix(key, nested)
		}
	}
	return key
}
