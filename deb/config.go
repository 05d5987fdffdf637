package deb

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config holds the repository-wide metadata and tooling selection that the
// Layout Manager, Release Writer and Repository Operations draw on
// (spec.md §3's Repository metadata, §6's configuration surface).
type Config struct {
	Architectures []string `yaml:"architectures"`
	Codename      string   `yaml:"codename"`
	Suite         string   `yaml:"suite"`
	Components    []string `yaml:"components"`
	Label         string   `yaml:"label"`
	Origin        string   `yaml:"origin"`
	Description   string   `yaml:"description"`

	// Date overrides the Release file's Date: field, mainly for
	// deterministic tests. Zero means "use time.Now() at write time".
	Date time.Time `yaml:"-"`

	// HashAlgorithms lists which digests are computed and written to
	// Packages entries and the suite Release. Defaults to
	// DefaultHashAlgorithms. Sources entries do not use it: the synthetic
	// .dsc line goes into whichever of Files, Checksums-Sha1 and
	// Checksums-Sha256 the .dsc itself carries.
	HashAlgorithms []HashAlgorithm `yaml:"-"`

	// UseExternalTools switches every HashProbe/DebInspector/SourceInspector
	// from the in-process default to the literal external-tool contract of
	// spec.md §6 (dpkg-deb, md5sum/sha1sum/sha256sum).
	UseExternalTools bool `yaml:"use_external_tools"`

	// SigningKey is an ASCII-armored OpenPGP private key used by the sign
	// operation (spec.md §4.6A). May also be supplied via the
	// APTREPO_SIGNING_KEY environment variable.
	SigningKey string `yaml:"-"`
}

// DefaultConfig returns a Config with the hash algorithms and tooling
// selection every operation assumes absent an explicit override.
func DefaultConfig() *Config {
	return &Config{
		Architectures:  []string{"amd64"},
		Components:     []string{"main"},
		HashAlgorithms: DefaultHashAlgorithms,
	}
}

// LoadConfig reads a YAML configuration file and layers it on top of
// DefaultConfig, matching spec.md §6's "human-editable configuration file"
// description.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.HashAlgorithms) == 0 {
		cfg.HashAlgorithms = DefaultHashAlgorithms
	}
	if key := os.Getenv("APTREPO_SIGNING_KEY"); key != "" {
		cfg.SigningKey = key
	}
	return cfg, nil
}

func (c *Config) hashAlgorithms() []HashAlgorithm {
	if len(c.HashAlgorithms) == 0 {
		return DefaultHashAlgorithms
	}
	return c.HashAlgorithms
}

func (c *Config) debInspector() DebInspector {
	if c.UseExternalTools {
		return execDebInspector{}
	}
	return arDebInspector{}
}

func (c *Config) hashProbe() HashProbe {
	if c.UseExternalTools {
		return execHashProbe{}
	}
	return cryptoHashProbe{}
}

func (c *Config) sourceInspector() SourceInspector {
	if c.UseExternalTools {
		return execSourceInspector{}
	}
	return clearsignSourceInspector{}
}

// releaseDate returns Date if set, otherwise the current time in UTC
// (spec.md §4.6). SuiteRelease.WriteTo formats it for the Date: field.
func (c *Config) releaseDate() time.Time {
	if !c.Date.IsZero() {
		return c.Date
	}
	return time.Now().UTC()
}
