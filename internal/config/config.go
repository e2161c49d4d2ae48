// Package config loads the tddb command configuration from JSONC files and
// command-line overrides.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrStoreEmpty         = errors.New("store cannot be empty")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrInvalidValue       = errors.New("invalid config value")
)

// Backends accepted in the backend field.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMem    = "mem"
)

var backends = []string{BackendFile, BackendSQLite, BackendBolt, BackendMem}

// FileName is the project config file looked up in the working directory.
const FileName = ".tddb.json"

// Config holds all configuration options.
type Config struct {
	Store      string   `json:"store"`
	Backend    string   `json:"backend"`
	MaxDevices int      `json:"max_devices,omitempty"`
	Layout     string   `json:"layout"`
	Features   []string `json:"features,omitempty"`
	LogLevel   string   `json:"log_level"`
	LogFormat  string   `json:"log_format"`

	// StoreAbs is Store resolved against the working directory.
	StoreAbs string `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Store:     "tddb.img",
		Backend:   BackendFile,
		Layout:    tddb.LayoutExtended.String(),
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir    string            // empty means os.Getwd()
	ConfigPath string            // -c/--config flag value
	Overrides  Config            // non-zero fields win over every file
	Env        map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/tddb/config.json or
//     ~/.config/tddb/config.json)
//  3. Project config (.tddb.json in the working directory), or the file
//     named by ConfigPath instead
//  4. Overrides
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	globalPath := globalConfigPath(input.Env)
	if globalPath != "" {
		globalCfg, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, globalCfg)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	projectCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, projectCfg)
		cfg.Sources.Project = projectPath
	}

	cfg = merge(cfg, input.Overrides)

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.StoreAbs = cfg.Store
	if !filepath.IsAbs(cfg.StoreAbs) {
		cfg.StoreAbs = filepath.Join(workDir, cfg.StoreAbs)
	}

	return cfg, nil
}

// globalConfigPath returns $XDG_CONFIG_HOME/tddb/config.json, falling back
// to ~/.config/tddb/config.json. Empty if neither variable is set.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "tddb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "tddb", "config.json")
	}

	return ""
}

// loadFile loads one config file. A missing optional file is not an error.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !mustExist && errors.Is(err, os.ErrNotExist) {
			return Config{}, false, nil
		}

		if errors.Is(err, os.ErrNotExist) {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if cfg.Store == "" && hasEmptyString(data, "store") {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrStoreEmpty)
	}

	return cfg, true, nil
}

// Parse decodes a JSONC document. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var cfg Config

	err = dec.Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

// hasEmptyString reports whether the document sets field to "".
func hasEmptyString(data []byte, field string) bool {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return false
	}

	var raw map[string]any

	if json.Unmarshal(standardized, &raw) != nil {
		return false
	}

	s, ok := raw[field].(string)

	return ok && s == ""
}

func merge(base, overlay Config) Config {
	if overlay.Store != "" {
		base.Store = overlay.Store
	}

	if overlay.Backend != "" {
		base.Backend = overlay.Backend
	}

	if overlay.MaxDevices != 0 {
		base.MaxDevices = overlay.MaxDevices
	}

	if overlay.Layout != "" {
		base.Layout = overlay.Layout
	}

	if overlay.Features != nil {
		base.Features = overlay.Features
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.LogFormat != "" {
		base.LogFormat = overlay.LogFormat
	}

	return base
}

// Validate checks every field of cfg.
func Validate(cfg Config) error {
	if cfg.Store == "" && cfg.Backend != BackendMem {
		return ErrStoreEmpty
	}

	if !slices.Contains(backends, cfg.Backend) {
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownBackend, cfg.Backend, strings.Join(backends, ", "))
	}

	if cfg.MaxDevices < 0 {
		return fmt.Errorf("%w: max_devices %d", ErrInvalidValue, cfg.MaxDevices)
	}

	layout, err := tddb.ParseLayout(cfg.Layout)
	if err != nil {
		return fmt.Errorf("%w: layout %q", ErrInvalidValue, cfg.Layout)
	}

	if cfg.MaxDevices > layout.Slots() {
		return fmt.Errorf("%w: max_devices %d exceeds %d slots of %s layout",
			ErrInvalidValue, cfg.MaxDevices, layout.Slots(), layout)
	}

	_, err = tddb.ParseFeatures(cfg.Features)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidValue, cfg.LogLevel)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidValue, cfg.LogFormat)
	}

	return nil
}

// DirectoryOptions converts cfg into [tddb.Options]. cfg must be valid.
func (cfg Config) DirectoryOptions() tddb.Options {
	layout, _ := tddb.ParseLayout(cfg.Layout)
	features, _ := tddb.ParseFeatures(cfg.Features)

	return tddb.Options{
		MaxDevices: cfg.MaxDevices,
		Layout:     layout,
		Features:   features,
	}
}

// Format renders cfg as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}
