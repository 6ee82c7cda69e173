package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppName names the global config directory.
const AppName = "cfnsanitizer"

// ErrNotFound is returned when no config file exists at the searched
// locations.
var ErrNotFound = errors.New("no config file")

// FileConfig is the on-disk configuration shape. Pointer fields distinguish
// "unset" from zero values so files can be layered.
type FileConfig struct {
	Rules           *string `yaml:"rules,omitempty" toml:"rules,omitempty"`
	Include         *string `yaml:"include,omitempty" toml:"include,omitempty"`
	Exclude         *string `yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	Threads         *int    `yaml:"threads,omitempty" toml:"threads,omitempty"`
	FailOn          *string `yaml:"fail_on,omitempty" toml:"fail_on,omitempty"`
	Enable          *string `yaml:"enable,omitempty" toml:"enable,omitempty"`
	Disable         *string `yaml:"disable,omitempty" toml:"disable,omitempty"`
	CleanCDK        *bool   `yaml:"clean_cdk,omitempty" toml:"clean_cdk,omitempty"`
	KeepCDKMetadata *bool   `yaml:"keep_cdk_metadata,omitempty" toml:"keep_cdk_metadata,omitempty"`
	OutputDir       *string `yaml:"output_dir,omitempty" toml:"output_dir,omitempty"`
	Format          *string `yaml:"format,omitempty" toml:"format,omitempty"`
	Baseline        *string `yaml:"baseline,omitempty" toml:"baseline,omitempty"`
	MatchTimeout    *string `yaml:"match_timeout,omitempty" toml:"match_timeout,omitempty"`
	NoColor         *bool   `yaml:"no_color,omitempty" toml:"no_color,omitempty"`
}

// LocalNames are the file names searched in the working root, in order.
var LocalNames = []string{
	".cfnsanitizer.yml",
	".cfnsanitizer.yaml",
	".cfnsanitizer.toml",
}

// LoadFile reads a config file; the format follows the extension (.toml is
// TOML, anything else YAML). Unknown keys are rejected.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.NewDecoder(bytes.NewReader(b)).DisallowUnknownFields().Decode(&cfg)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return FileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadLocal loads the first of LocalNames found in root.
func LoadLocal(root string) (FileConfig, error) {
	for _, name := range LocalNames {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return FileConfig{}, ErrNotFound
}

// GlobalDir is the per-user config directory, $XDG_CONFIG_HOME/cfnsanitizer.
func GlobalDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// LoadGlobal loads config.yml, config.yaml or config.toml from GlobalDir.
func LoadGlobal() (FileConfig, error) {
	if xdg.ConfigHome == "" {
		return FileConfig{}, ErrNotFound
	}
	for _, name := range []string{"config.yml", "config.yaml", "config.toml"} {
		p := filepath.Join(GlobalDir(), name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return FileConfig{}, ErrNotFound
}

// Merge returns base with every field set in over replacing it.
func Merge(base, over FileConfig) FileConfig {
	out := base
	setString(&out.Rules, over.Rules)
	setString(&out.Include, over.Include)
	setString(&out.Exclude, over.Exclude)
	setString(&out.FailOn, over.FailOn)
	setString(&out.Enable, over.Enable)
	setString(&out.Disable, over.Disable)
	setString(&out.OutputDir, over.OutputDir)
	setString(&out.Format, over.Format)
	setString(&out.Baseline, over.Baseline)
	setString(&out.MatchTimeout, over.MatchTimeout)
	if over.Threads != nil {
		out.Threads = over.Threads
	}
	if over.CleanCDK != nil {
		out.CleanCDK = over.CleanCDK
	}
	if over.KeepCDKMetadata != nil {
		out.KeepCDKMetadata = over.KeepCDKMetadata
	}
	if over.NoColor != nil {
		out.NoColor = over.NoColor
	}
	return out
}

func setString(dst **string, v *string) {
	if v != nil {
		*dst = v
	}
}

// Load merges the global file and the local file found in root, local
// winning. Missing files are not an error; malformed ones are.
func Load(root string) (FileConfig, error) {
	global, err := LoadGlobal()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return FileConfig{}, err
	}
	local, err := LoadLocal(root)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return FileConfig{}, err
	}
	return Merge(global, local), nil
}

// MatchTimeoutDuration parses match_timeout. ok is false when unset.
func (c FileConfig) MatchTimeoutDuration() (d time.Duration, ok bool, err error) {
	if c.MatchTimeout == nil {
		return 0, false, nil
	}
	d, err = time.ParseDuration(*c.MatchTimeout)
	if err != nil {
		return 0, false, fmt.Errorf("match_timeout: %w", err)
	}
	if d <= 0 {
		return 0, false, fmt.Errorf("match_timeout must be positive, got %s", d)
	}
	return d, true, nil
}
